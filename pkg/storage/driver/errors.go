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

package driver // import "helm.sh/release-store/pkg/storage/driver"

import (
	"fmt"

	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var (
	// ErrReleaseNotFound indicates that a release is not found.
	ErrReleaseNotFound = errors.New("release: not found")
	// ErrReleaseExists indicates that a release already exists.
	ErrReleaseExists = errors.New("release: already exists")
	// ErrInvalidKey indicates that a release key could not be parsed.
	ErrInvalidKey = errors.New("release: invalid key")
	// ErrInvalidData indicates that a storage object carries no release payload.
	ErrInvalidData = errors.New("release: invalid or missing data")
	// ErrMalformedData indicates that the backend rejected the object as invalid.
	ErrMalformedData = errors.New("release: storage object has malformed data")
	// ErrOutOfSync indicates that the client view of the object is stale.
	ErrOutOfSync = errors.New("release: client is out of sync with server and/or has stale data")
	// ErrNoDeployedReleases indicates that there are no releases with the given key in the deployed state.
	// It matches ErrReleaseNotFound with errors.Is.
	ErrNoDeployedReleases = errors.WithMessage(ErrReleaseNotFound, "has no deployed releases")
)

// StorageDriverError records an error and the release name that caused it
type StorageDriverError struct {
	ReleaseName string
	Err         error
}

func (e *StorageDriverError) Error() string {
	return fmt.Sprintf("%q %s", e.ReleaseName, e.Err.Error())
}

func (e *StorageDriverError) Unwrap() error { return e.Err }

// NewErrNoDeployedReleases returns an error stating releaseName has no deployed revision.
func NewErrNoDeployedReleases(releaseName string) error {
	return &StorageDriverError{
		ReleaseName: releaseName,
		Err:         ErrNoDeployedReleases,
	}
}

// DecodeStep names the stage of the decode pipeline that failed.
type DecodeStep string

const (
	DecodeStepBase64 DecodeStep = "base64"
	DecodeStepGzip   DecodeStep = "gzip"
	DecodeStepJSON   DecodeStep = "json"
)

// DecodeError is returned when a stored payload cannot be turned back into a release.
type DecodeError struct {
	Step DecodeStep
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode release (%s): %s", e.Step, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError is returned when a release cannot be serialized.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("unable to encode release: %s", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// BackendError wraps a failure of the backing store that has no more
// specific meaning.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: backend error: %s", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// fromKubeError maps a Kubernetes API failure onto the driver error kinds
// by its status reason.
func fromKubeError(op string, err error) error {
	switch apierrors.ReasonForError(err) {
	case metav1.StatusReasonAlreadyExists:
		return ErrReleaseExists
	case metav1.StatusReasonNotFound:
		return ErrReleaseNotFound
	case metav1.StatusReasonInvalid:
		return errors.WithMessagef(ErrMalformedData, "%s: %s", op, err)
	case metav1.StatusReasonConflict, metav1.StatusReasonGone:
		return errors.WithMessagef(ErrOutOfSync, "%s: %s", op, err)
	}
	return &BackendError{Op: op, Err: err}
}
