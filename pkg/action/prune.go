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
	"github.com/pkg/errors"

	rspb "helm.sh/release-store/pkg/release"
)

// Prune is the action for trimming a release's history down to its most
// recent revisions.
//
// It provides the implementation of 'helm-releases prune'.
type Prune struct {
	cfg *Configuration

	// Keep is the number of revisions left in place.
	Keep int
}

// NewPrune creates a new Prune object with the given configuration.
func NewPrune(cfg *Configuration) *Prune {
	return &Prune{
		cfg: cfg,
	}
}

// Run deletes the oldest revisions of name beyond Keep and returns them.
// Revisions that fail to delete are logged by the storage engine and left
// in place.
func (p *Prune) Run(name string) ([]*rspb.Release, error) {
	if err := validateReleaseName(name); err != nil {
		return nil, errors.Wrapf(err, "release name is invalid: %s", name)
	}
	return p.cfg.Releases.Prune(name, p.Keep)
}
