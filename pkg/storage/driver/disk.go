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
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
)

var _ Driver = (*Disk)(nil)

// DiskDriverName is the string name of this driver.
const DiskDriverName = "Disk"

// Disk is a storage driver keeping releases in a single bbolt database
// file, one bucket per namespace.
type Disk struct {
	db        *bolt.DB
	namespace string
	logging.LogHolder
}

// diskEntry is the value stored under each release key.
type diskEntry struct {
	Labels  map[string]string `json:"labels"`
	Release string            `json:"release"`
}

// NewDisk opens, creating if needed, the database at path. An empty
// namespace lists and queries across all namespaces.
func NewDisk(path, namespace string) (*Disk, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("disk driver: database path is required")
	}

	db, err := bolt.Open(filepath.Clean(path), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &BackendError{Op: "open", Err: err}
	}

	disk := &Disk{db: db, namespace: namespace}
	disk.SetLogger(slog.Default().Handler())
	return disk, nil
}

// Close closes the underlying database file.
func (disk *Disk) Close() error {
	if disk == nil || disk.db == nil {
		return nil
	}
	return disk.db.Close()
}

// Name returns the name of the driver.
func (disk *Disk) Name() string {
	return DiskDriverName
}

func (disk *Disk) bucket() []byte {
	if disk.namespace == "" {
		return []byte(defaultNamespace)
	}
	return []byte(disk.namespace)
}

// Get returns the release named by key or returns ErrReleaseNotFound.
func (disk *Disk) Get(key string) (*rspb.Release, error) {
	var entry diskEntry
	err := disk.db.View(func(tx *bolt.Tx) error {
		return readEntry(tx.Bucket(disk.bucket()), key, &entry)
	})
	if err != nil {
		return nil, err
	}
	return decodeRelease([]byte(entry.Release), decodeBase64)
}

// List returns the list of all releases such that filter(release) == true
func (disk *Disk) List(filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	return disk.list("list", labels{"owner": owner}, filter)
}

// Query returns the set of releases that match the provided set of labels
func (disk *Disk) Query(keyvals map[string]string) ([]*rspb.Release, error) {
	var lbs labels

	lbs.init()
	lbs.fromMap(keyvals)
	return disk.list("query", lbs, func(*rspb.Release) bool { return true })
}

func (disk *Disk) list(op string, lbs labels, filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	var ls []*rspb.Release
	visit := func(b *bolt.Bucket) error {
		return b.ForEach(func(k, v []byte) error {
			var entry diskEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				disk.Logger().Warn("skipping unreadable entry", slog.String("op", op), slog.String("key", string(k)), slog.Any("error", err))
				return nil
			}
			if !labels(entry.Labels).match(lbs) {
				return nil
			}
			rls, err := decodeRelease([]byte(entry.Release), decodeBase64)
			if err != nil {
				disk.Logger().Warn("skipping release that failed to decode", slog.String("op", op), slog.String("key", string(k)), slog.Any("error", err))
				return nil
			}
			if filter(rls) {
				ls = append(ls, rls)
			}
			return nil
		})
	}

	err := disk.db.View(func(tx *bolt.Tx) error {
		if disk.namespace != "" {
			if b := tx.Bucket(disk.bucket()); b != nil {
				return visit(b)
			}
			return nil
		}
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			return visit(b)
		})
	})
	if err != nil {
		return nil, &BackendError{Op: op, Err: err}
	}
	return ls, nil
}

// Create creates a new release or returns ErrReleaseExists.
func (disk *Disk) Create(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("createdAt", strconv.FormatInt(time.Now().Unix(), 10))

	value, err := newDiskEntry(rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "create: failed to encode release %q", rls.Name)
	}

	err = disk.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(disk.bucket())
		if err != nil {
			return &BackendError{Op: "create", Err: err}
		}
		if b.Get([]byte(key)) != nil {
			return ErrReleaseExists
		}
		if err := b.Put([]byte(key), value); err != nil {
			return &BackendError{Op: "create", Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}
	disk.Logger().Debug("created release entry", slog.String("key", key))
	return nil
}

// Update updates a release or returns ErrReleaseNotFound.
func (disk *Disk) Update(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("modifiedAt", strconv.FormatInt(time.Now().Unix(), 10))

	value, err := newDiskEntry(rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "update: failed to encode release %q", rls.Name)
	}

	return disk.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(disk.bucket())
		if b == nil || b.Get([]byte(key)) == nil {
			return ErrReleaseNotFound
		}
		if err := b.Put([]byte(key), value); err != nil {
			return &BackendError{Op: "update", Err: err}
		}
		return nil
	})
}

// Delete deletes a release or returns ErrReleaseNotFound.
// An entry that fails to decode is left in place.
func (disk *Disk) Delete(key string) (*rspb.Release, error) {
	var rls *rspb.Release
	err := disk.db.Update(func(tx *bolt.Tx) error {
		var entry diskEntry
		b := tx.Bucket(disk.bucket())
		if err := readEntry(b, key, &entry); err != nil {
			return err
		}
		var err error
		if rls, err = decodeRelease([]byte(entry.Release), decodeBase64); err != nil {
			return err
		}
		if err := b.Delete([]byte(key)); err != nil {
			return &BackendError{Op: "delete", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rls, nil
}

func readEntry(b *bolt.Bucket, key string, entry *diskEntry) error {
	if b == nil {
		return ErrReleaseNotFound
	}
	v := b.Get([]byte(key))
	if v == nil {
		return ErrReleaseNotFound
	}
	if err := json.Unmarshal(v, entry); err != nil {
		return errors.WithMessagef(ErrInvalidData, "entry %q: %s", key, err)
	}
	if entry.Release == "" {
		return errors.WithMessagef(ErrInvalidData, "entry %q has no %q field", key, releaseDataKey)
	}
	return nil
}

func newDiskEntry(rls *rspb.Release, lbs labels) ([]byte, error) {
	s, err := encodeRelease(rls)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(diskEntry{Labels: releaseLabels(lbs, rls).toMap(), Release: s})
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return b, nil
}
