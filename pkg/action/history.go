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
	"helm.sh/release-store/pkg/releaseutil"
)

// History is the action for checking the release's ledger.
//
// It provides the implementation of 'helm-releases history'.
type History struct {
	cfg *Configuration

	// Max limits the result to the most recent revisions. 0 means all.
	Max int
}

// NewHistory creates a new History object with the given configuration.
func NewHistory(cfg *Configuration) *History {
	return &History{
		cfg: cfg,
	}
}

// Run returns the revisions of the named release, oldest first.
func (h *History) Run(name string) ([]*rspb.Release, error) {
	if err := validateReleaseName(name); err != nil {
		return nil, errors.Wrapf(err, "release name is invalid: %s", name)
	}

	h.cfg.Logger().Debug("getting history for release", slog.String("release", name))
	hist, err := h.cfg.Releases.History(name)
	if err != nil {
		return nil, err
	}

	releaseutil.SortByRevision(hist)
	if h.Max > 0 && len(hist) > h.Max {
		hist = hist[len(hist)-h.Max:]
	}
	return hist, nil
}
