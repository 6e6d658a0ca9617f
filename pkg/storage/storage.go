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

package storage // import "helm.sh/release-store/pkg/storage"

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
	relutil "helm.sh/release-store/pkg/releaseutil"
	"helm.sh/release-store/pkg/storage/driver"
)

// HelmStorageType is the type field of the Kubernetes storage object which stores the Helm release
// version. It is modified slightly replacing the '/': sh.helm/release.v1
// Note: The version 'v1' is incremented if the release object metadata is
// modified between major releases.
// This constant is used as a prefix for the Kubernetes storage object name.
const HelmStorageType = "sh.helm.release.v1"

// Storage represents a storage engine for a Release.
type Storage struct {
	driver.Driver

	// MaxHistory specifies the maximum number of historical releases that will be retained, including the most recent release.
	// Values of 0 or less are ignored (meaning no limits are imposed).
	MaxHistory int

	logging.LogHolder
}

// Get retrieves the release from storage. An error is returned
// if the storage driver failed to fetch the release, or the
// release identified by the key, version pair does not exist.
func (s *Storage) Get(name string, version int) (*rspb.Release, error) {
	s.Logger().Debug("getting release", slog.String("key", makeKey(name, version)))
	return s.Driver.Get(makeKey(name, version))
}

// Create creates a new storage entry holding the release. An
// error is returned if the storage driver fails to store the
// release, or a release with an identical key already exists.
func (s *Storage) Create(rls *rspb.Release) error {
	s.Logger().Debug("creating release", slog.String("key", makeKey(rls.Name, rls.Version)))
	if err := s.removeLeastRecent(rls.Name, s.MaxHistory); err != nil {
		return err
	}
	return s.Driver.Create(makeKey(rls.Name, rls.Version), rls)
}

// Update updates the release in storage. An error is returned if the
// storage backend fails to update the release or if the release
// does not exist.
func (s *Storage) Update(rls *rspb.Release) error {
	s.Logger().Debug("updating release", slog.String("key", makeKey(rls.Name, rls.Version)))
	return s.Driver.Update(makeKey(rls.Name, rls.Version), rls)
}

// Delete deletes the release from storage. An error is returned if
// the storage backend fails to delete the release or if the release
// does not exist.
func (s *Storage) Delete(name string, version int) (*rspb.Release, error) {
	s.Logger().Debug("deleting release", slog.String("key", makeKey(name, version)))
	return s.Driver.Delete(makeKey(name, version))
}

// ListReleases returns all releases from storage. An error is returned if the
// storage backend fails to retrieve the releases.
func (s *Storage) ListReleases() ([]*rspb.Release, error) {
	s.Logger().Debug("listing all releases in storage")
	return s.Driver.List(func(_ *rspb.Release) bool { return true })
}

// ListUninstalled returns all releases with Status == UNINSTALLED. An error is returned
// if the storage backend fails to retrieve the releases.
func (s *Storage) ListUninstalled() ([]*rspb.Release, error) {
	s.Logger().Debug("listing uninstalled releases in storage")
	return s.Driver.List(StatusFilter(rspb.StatusUninstalled))
}

// ListDeployed returns all releases with Status == DEPLOYED. An error is returned
// if the storage backend fails to retrieve the releases.
func (s *Storage) ListDeployed() ([]*rspb.Release, error) {
	s.Logger().Debug("listing all deployed releases in storage")
	return s.Driver.List(StatusFilter(rspb.StatusDeployed))
}

// Deployed returns the last deployed release with the provided release name, or
// returns driver.NewErrNoDeployedReleases if not found.
func (s *Storage) Deployed(name string) (*rspb.Release, error) {
	ls, err := s.DeployedAll(name)
	if err != nil {
		return nil, err
	}

	if len(ls) == 0 {
		return nil, driver.NewErrNoDeployedReleases(name)
	}

	// Concurrent writers can leave more than one revision
	// DEPLOYED. Take the latest.
	relutil.Reverse(ls, relutil.SortByRevision)

	return ls[0], nil
}

// DeployedAll returns all deployed releases with the provided name. No
// match yields an empty result.
func (s *Storage) DeployedAll(name string) ([]*rspb.Release, error) {
	s.Logger().Debug("getting deployed releases", slog.String("name", name))

	ls, err := s.Driver.Query(map[string]string{
		"name":   name,
		"owner":  "helm",
		"status": rspb.StatusDeployed.String(),
	})
	if err != nil {
		return nil, err
	}
	return ls, nil
}

// History returns the revision history for the release with the provided
// name. An unknown name yields an empty history.
func (s *Storage) History(name string) ([]*rspb.Release, error) {
	s.Logger().Debug("getting release history", slog.String("name", name))

	return s.Driver.Query(map[string]string{"name": name, "owner": "helm"})
}

// Prune deletes the oldest revisions of the named release until at most
// keep remain, and returns the revisions it deleted. keep must be positive.
func (s *Storage) Prune(name string, keep int) ([]*rspb.Release, error) {
	if keep <= 0 {
		return nil, errors.Errorf("prune %q: number of revisions to keep must be positive, got %d", name, keep)
	}
	return s.prune(name, keep)
}

// removeLeastRecent removes items from history until the length number of releases
// does not exceed max. A max of 0 or less disables it.
func (s *Storage) removeLeastRecent(name string, max int) error {
	if max <= 0 {
		return nil
	}
	_, err := s.prune(name, max)
	return err
}

func (s *Storage) prune(name string, max int) ([]*rspb.Release, error) {
	h, err := s.History(name)
	if err != nil {
		return nil, err
	}
	if len(h) <= max {
		return nil, nil
	}

	// We want oldest to newest
	relutil.SortByRevision(h)

	var deleted []*rspb.Release
	for _, rel := range h[:len(h)-max] {
		// Failures are logged and the next revision is tried; a later
		// create retries whatever is left.
		rls, err := s.Delete(rel.Name, rel.Version)
		if err != nil {
			s.Logger().Error("error pruning release revision",
				slog.String("key", makeKey(rel.Name, rel.Version)),
				slog.Any("error", err),
			)
			continue
		}
		deleted = append(deleted, rls)
	}

	s.Logger().Debug("pruned records",
		slog.String("release", name),
		slog.Int("count", len(deleted)),
		slog.Int("failed", len(h)-max-len(deleted)),
	)
	return deleted, nil
}

// Last fetches the last revision of the named release.
func (s *Storage) Last(name string) (*rspb.Release, error) {
	s.Logger().Debug("getting last revision", slog.String("name", name))
	h, err := s.History(name)
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, &driver.StorageDriverError{ReleaseName: name, Err: driver.ErrReleaseNotFound}
	}

	relutil.Reverse(h, relutil.SortByRevision)
	return h[0], nil
}

// makeKey concatenates the Kubernetes storage object type, a release name and version
// into a string with format:```<helm_storage_type>.<release_name>.v<release_version>```.
// The storage type is prepended to keep name uniqueness between different
// release storage types. An example of clash when not using the type:
// https://github.com/helm/helm/issues/6435.
// This key is used to uniquely identify storage objects.
func makeKey(rlsname string, version int) string {
	return fmt.Sprintf("%s.%s.v%d", HelmStorageType, rlsname, version)
}

// Init initializes a new storage backend with the driver d.
// If d is nil, the default in-memory driver is used.
func Init(d driver.Driver) *Storage {
	// default driver is in memory
	if d == nil {
		d = driver.NewMemory()
	}
	s := &Storage{
		Driver: d,
	}
	s.SetLogger(slog.Default().Handler())
	return s
}
