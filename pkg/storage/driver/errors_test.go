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
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

type kubeFailureCase struct {
	desc  string
	op    string
	err   error
	check func(*testing.T, error)
}

func expectIs(target error) func(*testing.T, error) {
	return func(t *testing.T, err error) {
		t.Helper()
		if !errors.Is(err, target) {
			t.Errorf("Expected {%v}, got {%v}", target, err)
		}
	}
}

func expectBackendError(t *testing.T, err error) {
	t.Helper()
	var be *BackendError
	if !errors.As(err, &be) {
		t.Errorf("Expected *BackendError, got {%T: %v}", err, err)
	}
}

// kubeFailureCases lists API failures and the driver error each maps to.
func kubeFailureCases() []kubeFailureCase {
	invalid := apierrors.NewInvalid(schema.GroupKind{Kind: "Secret"}, "smug-pigeon",
		field.ErrorList{field.Invalid(field.NewPath("metadata", "labels"), "x", "bad label")})

	return []kubeFailureCase{
		{"update conflict", "update", apierrors.NewConflict(testResource, "smug-pigeon", errors.New("stale")), expectIs(ErrOutOfSync)},
		{"delete gone", "delete", apierrors.NewGone("resource version too old"), expectIs(ErrOutOfSync)},
		{"create invalid", "create", invalid, expectIs(ErrMalformedData)},
		{"create exists", "create", apierrors.NewAlreadyExists(testResource, "smug-pigeon"), expectIs(ErrReleaseExists)},
		{"get not found", "get", apierrors.NewNotFound(testResource, "smug-pigeon"), expectIs(ErrReleaseNotFound)},
		{"get internal error", "get", apierrors.NewInternalError(errors.New("boom")), expectBackendError},
		{"get transport error", "get", errors.New("connection refused"), expectBackendError},
		{"list timeout", "list", apierrors.NewTimeoutError("slow", 1), expectBackendError},
	}
}

func TestFromKubeError(t *testing.T) {
	for _, tt := range kubeFailureCases() {
		t.Run(tt.desc, func(t *testing.T) {
			tt.check(t, fromKubeError(tt.op, tt.err))
		})
	}

	var be *BackendError
	if err := fromKubeError("get", errors.New("boom")); !errors.As(err, &be) || be.Op != "get" {
		t.Errorf("Expected backend error for op get, got {%v}", err)
	}
}

func TestFromSQLError(t *testing.T) {
	expectIs(ErrReleaseNotFound)(t, fromSQLError("get", sql.ErrNoRows))
	expectIs(ErrReleaseExists)(t, fromSQLError("create", &pq.Error{Code: "23505"}))
	expectBackendError(t, fromSQLError("create", &pq.Error{Code: "42P01"}))
	expectBackendError(t, fromSQLError("get", errors.New("driver: bad connection")))
}

func TestNoDeployedReleasesIsNotFound(t *testing.T) {
	err := NewErrNoDeployedReleases("smug-pigeon")
	if !errors.Is(err, ErrReleaseNotFound) {
		t.Errorf("Expected %v to match %v", err, ErrReleaseNotFound)
	}
	if !errors.Is(err, ErrNoDeployedReleases) {
		t.Errorf("Expected %v to match %v", err, ErrNoDeployedReleases)
	}

	var sde *StorageDriverError
	if !errors.As(err, &sde) || sde.ReleaseName != "smug-pigeon" {
		t.Errorf("Expected storage driver error for smug-pigeon, got {%v}", err)
	}
	if got, want := err.Error(), `"smug-pigeon" release: not found: has no deployed releases`; got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
