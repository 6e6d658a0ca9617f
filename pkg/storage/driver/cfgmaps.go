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

var _ Driver = (*ConfigMaps)(nil)

// ConfigMapsDriverName is the string name of the driver.
const ConfigMapsDriverName = "ConfigMap"

// ConfigMaps is a wrapper around an implementation of a kubernetes
// ConfigMapsInterface.
type ConfigMaps struct {
	impl corev1.ConfigMapInterface
	logging.LogHolder
}

// NewConfigMaps initializes a new ConfigMaps wrapping an implementation of
// the kubernetes ConfigMapsInterface.
func NewConfigMaps(impl corev1.ConfigMapInterface) *ConfigMaps {
	c := &ConfigMaps{impl: impl}
	c.SetLogger(slog.Default().Handler())
	return c
}

// Name returns the name of the driver.
func (cfgmaps *ConfigMaps) Name() string {
	return ConfigMapsDriverName
}

// Get fetches the release named by key. The corresponding release is returned
// or error if not found.
func (cfgmaps *ConfigMaps) Get(key string) (*rspb.Release, error) {
	obj, err := cfgmaps.impl.Get(context.Background(), key, metav1.GetOptions{})
	if err != nil {
		return nil, fromKubeError("get", err)
	}
	return decodeConfigMap(obj)
}

// List fetches all releases and returns the list releases such
// that filter(release) == true. An error is returned if the
// configmap fails to retrieve the releases.
func (cfgmaps *ConfigMaps) List(filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	return cfgmaps.list("list", ownerSelector, filter)
}

// Query fetches all releases that match the provided map of labels.
// An error is returned if the configmap fails to retrieve the releases.
func (cfgmaps *ConfigMaps) Query(labels map[string]string) ([]*rspb.Release, error) {
	sel, err := labelSelector(labels)
	if err != nil {
		return nil, err
	}
	return cfgmaps.list("query", sel, func(*rspb.Release) bool { return true })
}

func (cfgmaps *ConfigMaps) list(op, selector string, filter func(*rspb.Release) bool) ([]*rspb.Release, error) {
	list, err := cfgmaps.impl.List(context.Background(), metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fromKubeError(op, err)
	}

	var results []*rspb.Release
	for i := range list.Items {
		rls, err := decodeConfigMap(&list.Items[i])
		if err != nil {
			cfgmaps.Logger().Warn("skipping release that failed to decode",
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

// Create creates a new ConfigMap holding the release. If the
// ConfigMap already exists, ErrReleaseExists is returned.
func (cfgmaps *ConfigMaps) Create(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("createdAt", strconv.FormatInt(time.Now().Unix(), 10))

	obj, err := newConfigMapsObject(key, rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "create: failed to encode release %q", rls.Name)
	}
	if _, err := cfgmaps.impl.Create(context.Background(), obj, metav1.CreateOptions{}); err != nil {
		return fromKubeError("create", err)
	}
	cfgmaps.Logger().Debug("created release configmap", slog.String("key", key))
	return nil
}

// Update updates the ConfigMap holding the release. If not found
// ErrReleaseNotFound is returned.
func (cfgmaps *ConfigMaps) Update(key string, rls *rspb.Release) error {
	var lbs labels

	lbs.init()
	lbs.set("modifiedAt", strconv.FormatInt(time.Now().Unix(), 10))

	obj, err := newConfigMapsObject(key, rls, lbs)
	if err != nil {
		return errors.WithMessagef(err, "update: failed to encode release %q", rls.Name)
	}
	if _, err := cfgmaps.impl.Update(context.Background(), obj, metav1.UpdateOptions{}); err != nil {
		return fromKubeError("update", err)
	}
	cfgmaps.Logger().Debug("updated release configmap", slog.String("key", key))
	return nil
}

// Delete deletes the ConfigMap holding the release named by key.
func (cfgmaps *ConfigMaps) Delete(key string) (*rspb.Release, error) {
	rls, err := cfgmaps.Get(key)
	if err != nil {
		return nil, err
	}
	if err := cfgmaps.impl.Delete(context.Background(), key, metav1.DeleteOptions{}); err != nil {
		return nil, fromKubeError("delete", err)
	}
	return rls, nil
}

// decodeConfigMap reads the release out of a configmap, whose data
// entries are plain strings still carrying the base64 layer.
func decodeConfigMap(obj *v1.ConfigMap) (*rspb.Release, error) {
	data, ok := obj.Data[releaseDataKey]
	if !ok {
		return nil, errors.WithMessagef(ErrInvalidData, "configmap %q has no %q entry", obj.Name, releaseDataKey)
	}
	return decodeRelease([]byte(data), decodeBase64)
}

// newConfigMapsObject constructs a kubernetes ConfigMap object
// to store a release. The data entry is the base64 encoded
// gzipped string of a release.
//
// Besides the labels set by releaseLabels, each configmap carries one of:
//
//	"createdAt"  - timestamp indicating when this configmap was created. (set in Create)
//	"modifiedAt" - timestamp indicating when this configmap was last modified. (set in Update)
func newConfigMapsObject(key string, rls *rspb.Release, lbs labels) (*v1.ConfigMap, error) {
	s, err := encodeRelease(rls)
	if err != nil {
		return nil, err
	}

	lbs = releaseLabels(lbs, rls)

	return &v1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   key,
			Labels: lbs.toMap(),
		},
		Data: map[string]string{releaseDataKey: s},
	}, nil
}
