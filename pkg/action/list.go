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
	"fmt"

	"github.com/gosuri/uitable"

	rspb "helm.sh/release-store/pkg/release"
	"helm.sh/release-store/pkg/releaseutil"
	"helm.sh/release-store/pkg/storage"
)

// List is the action for listing stored release records.
//
// It provides the implementation of 'helm-releases list'.
type List struct {
	cfg *Configuration

	// Deployed keeps records in the deployed state.
	Deployed bool
	// Uninstalled keeps records in the uninstalled state.
	Uninstalled bool
	// Failed keeps records in the failed state.
	Failed bool
	// SortByDate orders by last deployment instead of by name.
	SortByDate bool
}

// NewList constructs a new *List
func NewList(cfg *Configuration) *List {
	return &List{
		cfg: cfg,
	}
}

// Run lists every record that passes the state filters. With no state
// filter set every record is returned.
func (l *List) Run() ([]*rspb.Release, error) {
	var filters []storage.FilterFunc
	if l.Deployed {
		filters = append(filters, storage.StatusFilter(rspb.StatusDeployed))
	}
	if l.Uninstalled {
		filters = append(filters, storage.StatusFilter(rspb.StatusUninstalled))
	}
	if l.Failed {
		filters = append(filters, storage.StatusFilter(rspb.StatusFailed))
	}

	var (
		results []*rspb.Release
		err     error
	)
	if len(filters) == 0 {
		results, err = l.cfg.Releases.ListReleases()
	} else {
		results, err = l.cfg.Releases.List(storage.Any(filters...))
	}
	if err != nil {
		return nil, err
	}

	if l.SortByDate {
		releaseutil.SortByDate(results)
	} else {
		releaseutil.SortByName(results)
	}
	return results, nil
}

// FormatList renders releases as a table.
func FormatList(rels []*rspb.Release) string {
	table := uitable.New()
	table.AddRow("NAME", "NAMESPACE", "REVISION", "UPDATED", "STATUS")
	for _, r := range rels {
		t := "-"
		if r.Info != nil && r.Info.LastDeployed != nil && !r.Info.LastDeployed.IsZero() {
			t = r.Info.LastDeployed.String()
		}
		table.AddRow(r.Name, r.Namespace, fmt.Sprint(r.Version), t, r.CurrentStatus().String())
	}
	return table.String()
}
