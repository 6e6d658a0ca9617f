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

package release

import (
	"github.com/pkg/errors"
)

// Status is the status of a release
type Status int

// Describe the status of a release
// NOTE: the string forms are stored as label values, so existing records
// depend on them staying stable.
const (
	// StatusUnknown indicates that a release is in an uncertain state.
	StatusUnknown Status = iota
	// StatusDeployed indicates that the release has been pushed to Kubernetes.
	StatusDeployed
	// StatusUninstalled indicates that a release has been uninstalled from Kubernetes.
	StatusUninstalled
	// StatusSuperseded indicates that this release object is outdated and a newer one exists.
	StatusSuperseded
	// StatusFailed indicates that the release was not successfully deployed.
	StatusFailed
	// StatusUninstalling indicates that an uninstall operation is underway.
	StatusUninstalling
	// StatusPendingInstall indicates that an install operation is underway.
	StatusPendingInstall
	// StatusPendingUpgrade indicates that an upgrade operation is underway.
	StatusPendingUpgrade
	// StatusPendingRollback indicates that a rollback operation is underway.
	StatusPendingRollback
)

var statusNames = [...]string{
	StatusUnknown:         "unknown",
	StatusDeployed:        "deployed",
	StatusUninstalled:     "uninstalled",
	StatusSuperseded:      "superseded",
	StatusFailed:          "failed",
	StatusUninstalling:    "uninstalling",
	StatusPendingInstall:  "pending-install",
	StatusPendingUpgrade:  "pending-upgrade",
	StatusPendingRollback: "pending-rollback",
}

// variantNames are the enumeration names some older writers put in the
// JSON body instead of the canonical form.
var variantNames = map[string]Status{
	"Unknown":         StatusUnknown,
	"Deployed":        StatusDeployed,
	"Uninstalled":     StatusUninstalled,
	"Superseded":      StatusSuperseded,
	"Failed":          StatusFailed,
	"Uninstalling":    StatusUninstalling,
	"PendingInstall":  StatusPendingInstall,
	"PendingUpgrade":  StatusPendingUpgrade,
	"PendingRollback": StatusPendingRollback,
}

func (x Status) String() string {
	if x < 0 || int(x) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}
	return statusNames[x]
}

// IsPending determines if this status is a state or a transition.
func (x Status) IsPending() bool {
	return x == StatusPendingInstall || x == StatusPendingUpgrade || x == StatusPendingRollback
}

// ParseStatus returns the Status named by s. Both the canonical form
// ("pending-install") and the enumeration name ("PendingInstall") are
// accepted. An empty string is StatusUnknown.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusUnknown, nil
	}
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	if st, ok := variantNames[s]; ok {
		return st, nil
	}
	return StatusUnknown, errors.Errorf("unknown release status %q", s)
}

// MarshalText encodes the status in its canonical form.
func (x Status) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText decodes a status written by MarshalText or by a writer
// using the enumeration names.
func (x *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*x = st
	return nil
}
