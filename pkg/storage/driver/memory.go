/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
)

var _ Driver = (*Memory)(nil)

const (
	// MemoryDriverName is the string name of this driver.
	MemoryDriverName = "Memory"

	defaultNamespace = "default"

	keyPrefix = "sh.helm.release.v1."
)

// A map of release names to list of release records
type memReleases map[string]records

// Memory is the in-memory storage driver implementation.
type Memory struct {
	sync.RWMutex
	namespace string
	// A map of namespaces to releases
	cache map[string]memReleases
	logging.LogHolder
}

// NewMemory initializes a new memory driver.
func NewMemory() *Memory {
	m := &Memory{cache: map[string]memReleases{}, namespace: defaultNamespace}
	m.SetLogger(slog.Default().Handler())
	return m
}

// SetNamespace sets a specific namespace in which releases will be accessed.
// An empty string indicates all namespaces for List and Query.
func (mem *Memory) SetNamespace(ns string) {
	defer unlock(mem.wlock())
	mem.namespace = ns
}

// Name returns the name of the driver.
func (mem *Memory) Name() string {
	return MemoryDriverName
}

// Get returns the release named by key or returns ErrReleaseNotFound.
func (mem *Memory) Get(key string) (*rspb.Release, error) {
	defer unlock(mem.rlock())

	name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	if recs, ok := mem.cache[mem.writeNamespace()][name]; ok {
		if r := recs.Get(key); r != nil {
			return r.release(), nil
		}
	}
	return nil, ErrReleaseNotFound
}

// List returns the list of all releases such that filter(release) == true
func (mem *Memory) List(filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	defer unlock(mem.rlock())

	var ls []*rspb.Release
	mem.each(func(rec *record) {
		if filter(rec.rls) {
			ls = append(ls, rec.release())
		}
	})
	return ls, nil
}

// Query returns the set of releases that match the provided set of labels.
// No match yields an empty result.
func (mem *Memory) Query(keyvals map[string]string) ([]*rspb.Release, error) {
	defer unlock(mem.rlock())

	var lbs labels

	lbs.init()
	lbs.fromMap(keyvals)

	var ls []*rspb.Release
	mem.each(func(rec *record) {
		if rec.lbs.match(lbs) {
			ls = append(ls, rec.release())
		}
	})
	return ls, nil
}

// Create creates a new release or returns ErrReleaseExists. The driver
// keeps its own copy of rls.
func (mem *Memory) Create(key string, rls *rspb.Release) error {
	rls, err := copyRelease(rls)
	if err != nil {
		return errors.WithMessagef(err, "create: failed to copy release %q", key)
	}

	defer unlock(mem.wlock())

	namespace := mem.writeNamespace()
	if _, ok := mem.cache[namespace]; !ok {
		mem.cache[namespace] = memReleases{}
	}

	recs := mem.cache[namespace][rls.Name]
	if err := recs.Add(newRecord(key, rls)); err != nil {
		return err
	}
	mem.cache[namespace][rls.Name] = recs
	mem.Logger().Debug("created release record", slog.String("key", key), slog.String("namespace", namespace))
	return nil
}

// Update updates a release or returns ErrReleaseNotFound.
func (mem *Memory) Update(key string, rls *rspb.Release) error {
	rls, err := copyRelease(rls)
	if err != nil {
		return errors.WithMessagef(err, "update: failed to copy release %q", key)
	}

	defer unlock(mem.wlock())

	if rs, ok := mem.cache[mem.writeNamespace()][rls.Name]; ok && rs.Exists(key) {
		rs.Replace(key, newRecord(key, rls))
		return nil
	}
	return ErrReleaseNotFound
}

// Delete deletes a release or returns ErrReleaseNotFound.
func (mem *Memory) Delete(key string) (*rspb.Release, error) {
	defer unlock(mem.wlock())

	name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	namespace := mem.writeNamespace()
	if recs, ok := mem.cache[namespace][name]; ok {
		if r := recs.Remove(key); r != nil {
			// recs.Remove changes the slice reference, so we have to re-assign it.
			if len(recs) == 0 {
				delete(mem.cache[namespace], name)
			} else {
				mem.cache[namespace][name] = recs
			}
			return r.rls, nil
		}
	}
	return nil, ErrReleaseNotFound
}

// writeNamespace is the namespace single-key operations act on. Reads
// and writes by key never span namespaces.
func (mem *Memory) writeNamespace() string {
	if mem.namespace == "" {
		return defaultNamespace
	}
	return mem.namespace
}

// each calls fn for every record visible from the current namespace.
func (mem *Memory) each(fn func(*record)) {
	for namespace, rels := range mem.cache {
		if mem.namespace != "" && namespace != mem.namespace {
			continue
		}
		for _, recs := range rels {
			recs.Iter(func(_ int, rec *record) bool {
				fn(rec)
				return true
			})
		}
	}
}

// parseKey returns the release name encoded in a storage key of the form
// sh.helm.release.v1.<name>.v<version>.
func parseKey(key string) (string, error) {
	rest := strings.TrimPrefix(key, keyPrefix)
	i := strings.LastIndex(rest, ".v")
	if i <= 0 {
		return "", ErrInvalidKey
	}
	if _, err := strconv.Atoi(rest[i+2:]); err != nil {
		return "", ErrInvalidKey
	}
	return rest[:i], nil
}

// wlock locks mem for writing
func (mem *Memory) wlock() func() {
	mem.Lock()
	return func() { mem.Unlock() }
}

// rlock locks mem for reading
func (mem *Memory) rlock() func() {
	mem.RLock()
	return func() { mem.RUnlock() }
}

// unlock calls fn which reverses a mem.rlock or mem.wlock. e.g:
// ```defer unlock(mem.rlock())```, locks mem for reading at the
// call point of defer and unlocks upon exiting the block.
func unlock(fn func()) { fn() }
