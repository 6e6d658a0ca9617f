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
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
)

var _ Driver = (*Secrets)(nil)

// SecretsDriverName is the string name of the driver.
const SecretsDriverName = "Secret"

// Secrets is a wrapper around an implementation of a kubernetes
// SecretsInterface.
type Secrets struct {
	impl corev1.SecretInterface
	logging.LogHolder
}

// NewSecrets initializes a new Secrets wrapping an implementation of
// the kubernetes SecretsInterface.
func NewSecrets(impl corev1.SecretInterface) *Secrets {
	s := &Secrets{impl: impl}
	s.SetLogger(slog.Default().Handler())
	return s
}

// Name returns the name of the driver.
func (secrets *Secrets) Name() string {
	return SecretsDriverName
}

// Get fetches the release named by key. The corresponding release is returned
// or error if not found.
func (secrets *Secrets) Get(key string) (*rspb.Release, error) {
	obj, err := secrets.impl.Get(context.Background(), key, metav1.GetOptions{})
	if err != nil {
		return nil, fromKubeError("get", err)
	}
	return decodeSecret(obj)
}

// List fetches all releases and returns the list releases such
// that filter(release) == true. An error is returned if the
// secret fails to retrieve the releases.
func (secrets *Secrets) List(filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	return secrets.list("list", ownerSelector, filter)
}

// Query fetches all releases that match the provided map of labels.
// An error is returned if the secret fails to retrieve the releases.
func (secrets *Secrets) Query(labels map[string]string) ([]*rspb.Release, error) {
	sel, err := labelSelector(labels)
	if err != nil {
		return nil, err
	}
	return secrets.list("query", sel, func(*rspb.Release) bool { return true })
}

func (secrets *Secrets) list(op, selector string, filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	list, err := secrets.impl.List(context.Background(), metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fromKubeError(op, err)
	}

	var results []*rspb.Release
	for i := range list.Items {
		rls, err := decodeSecret(&list.Items[i])
		if err != nil {
			secrets.Logger().Warn("skipping release that failed to decode",
				slog.String("op", op),
				slog.String("key", list.Items[i].Name),
				slog.Any("error", err),
			)
			continue
		}
		if filter(rls) {
			results = append(results, rls)
		}
	}
	return results, nil
}

// Create creates a new Secret holding the release. If the
// Secret already exists, ErrReleaseExists is returned.
func (secrets *Secrets) Create(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("createdAt", strconv.FormatInt(time.Now().Unix(), 10))

	obj, err := newSecretsObject(key, rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "create: failed to encode release %q", rls.Name)
	}
	if _, err := secrets.impl.Create(context.Background(), obj, metav1.CreateOptions{}); err != nil {
		return fromKubeError("create", err)
	}
	secrets.Logger().Debug("created release secret", slog.String("key", key))
	return nil
}

// Update updates the Secret holding the release. If not found
// ErrReleaseNotFound is returned.
func (secrets *Secrets) Update(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("modifiedAt", strconv.FormatInt(time.Now().Unix(), 10))

	obj, err := newSecretsObject(key, rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "update: failed to encode release %q", rls.Name)
	}
	if _, err := secrets.impl.Update(context.Background(), obj, metav1.UpdateOptions{}); err != nil {
		return fromKubeError("update", err)
	}
	secrets.Logger().Debug("updated release secret", slog.String("key", key))
	return nil
}

// Delete deletes the Secret holding the release named by key.
func (secrets *Secrets) Delete(key string) (*rspb.Release, error) {
	rls, err := secrets.Get(key)
	if err != nil {
		return nil, err
	}
	if err := secrets.impl.Delete(context.Background(), key, metav1.DeleteOptions{}); err != nil {
		return nil, fromKubeError("delete", err)
	}
	return rls, nil
}

// decodeSecret reads the release out of a secret. The client has already
// undone the base64 layer of secret data, so the payload is raw gzip.
func decodeSecret(obj *v1.Secret) (*rspb.Release, error) {
	data, ok := obj.Data[releaseDataKey]
	if !ok {
		return nil, errors.WithMessagef(ErrInvalidData, "secret %q has no %q entry", obj.Name, releaseDataKey)
	}
	return decodeRelease(data, decodeRaw)
}

// newSecretsObject constructs a kubernetes Secret object to store a
// release. The single data entry holds the gzipped release; on the wire
// the API server carries it as base64 text.
//
// Besides the labels set by releaseLabels, each secret carries one of:
//
//	"createdAt"  - timestamp indicating when this secret was created. (set in Create)
//	"modifiedAt" - timestamp indicating when this secret was last modified. (set in Update)
func newSecretsObject(key string, rls *rspb.Release, lbs labels) (*v1.Secret, error) {
	b, err := encodeReleaseBytes(rls)
	if err != nil {
		return nil, err
	}

	lbs = releaseLabels(lbs, rls)

	// The Type field is <domain>/<object>.v<version>; bump the version
	// only with a breaking change to the stored object.
	return &v1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:   key,
			Labels: lbs.toMap(),
		},
		Type: releaseObjectType,
		Data: map[string][]byte{releaseDataKey: b},
	}, nil
}
