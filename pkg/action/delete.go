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

package action

import (
	"log/slog"

	"github.com/pkg/errors"

	rspb "helm.sh/release-store/pkg/release"
)

// Delete is the action for removing a single stored revision.
//
// It provides the implementation of 'helm-releases delete'. Only the
// record is removed; nothing deployed to the cluster is touched.
type Delete struct {
	cfg *Configuration

	Version int
}

// NewDelete creates a new Delete object with the given configuration.
func NewDelete(cfg *Configuration) *Delete {
	return &Delete{
		cfg: cfg,
	}
}

// Run deletes the configured revision of the named release and returns it.
func (d *Delete) Run(name string) (*rspb.Release, error) {
	if err := validateReleaseName(name); err != nil {
		return nil, errors.Wrapf(err, "release name is invalid: %s", name)
	}
	if d.Version <= 0 {
		return nil, errInvalidRevision
	}

	rls, err := d.cfg.Releases.Delete(name, d.Version)
	if err != nil {
		return nil, err
	}
	d.cfg.Logger().Debug("deleted release record", slog.String("release", name), slog.Int("revision", d.Version))
	return rls, nil
}
