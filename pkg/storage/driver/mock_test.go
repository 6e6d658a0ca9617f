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
	"fmt"
	"log/slog"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	kblabels "k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"

	rspb "helm.sh/release-store/pkg/release"
)

func releaseStub(name string, vers int, namespace string, status rspb.Status) *rspb.Release {
	return &rspb.Release{
		Name:      name,
		Version:   vers,
		Namespace: namespace,
		Info:      &rspb.Info{Status: status},
	}
}

func testKey(name string, vers int) string {
	return fmt.Sprintf("sh.helm.release.v1.%s.v%d", name, vers)
}

var testResource = schema.GroupResource{Resource: "tests"}

// mockFailures makes a mock return err from the named operation.
// Operations are "get", "list", "create", "update" and "delete".
type mockFailures map[string]error

func (f mockFailures) err(op string) error {
	if f == nil {
		return nil
	}
	return f[op]
}

func tsFixtureMemory(t *testing.T) *Memory {
	hs := []*rspb.Release{
		// rls-a
		releaseStub("rls-a", 4, "default", rspb.StatusDeployed),
		releaseStub("rls-a", 1, "default", rspb.StatusSuperseded),
		releaseStub("rls-a", 3, "default", rspb.StatusSuperseded),
		releaseStub("rls-a", 2, "default", rspb.StatusSuperseded),
		// rls-b
		releaseStub("rls-b", 4, "default", rspb.StatusDeployed),
		releaseStub("rls-b", 1, "default", rspb.StatusSuperseded),
		releaseStub("rls-b", 3, "default", rspb.StatusSuperseded),
		releaseStub("rls-b", 2, "default", rspb.StatusSuperseded),
	}
	// rls-c in other namespace
	others := []*rspb.Release{
		releaseStub("rls-c", 4, "mynamespace", rspb.StatusDeployed),
		releaseStub("rls-c", 1, "mynamespace", rspb.StatusSuperseded),
		releaseStub("rls-c", 3, "mynamespace", rspb.StatusSuperseded),
		releaseStub("rls-c", 2, "mynamespace", rspb.StatusSuperseded),
	}

	mem := NewMemory()
	mem.SetLogger(slog.DiscardHandler)
	create := func(rs []*rspb.Release) {
		for _, tt := range rs {
			if err := mem.Create(testKey(tt.Name, tt.Version), tt); err != nil {
				t.Fatalf("Test setup failed to create: %s\n", err)
			}
		}
	}
	create(hs)
	mem.SetNamespace("mynamespace")
	create(others)
	mem.SetNamespace("default")
	return mem
}

// newTestFixtureCfgMaps initializes a MockConfigMapsInterface.
// ConfigMaps are created for each release provided.
func newTestFixtureCfgMaps(t *testing.T, releases ...*rspb.Release) (*ConfigMaps, *MockConfigMapsInterface) {
	var mock MockConfigMapsInterface
	mock.Init(t, releases...)

	cfgmaps := NewConfigMaps(&mock)
	cfgmaps.SetLogger(slog.DiscardHandler)
	return cfgmaps, &mock
}

// MockConfigMapsInterface mocks a kubernetes ConfigMapsInterface
type MockConfigMapsInterface struct {
	corev1.ConfigMapInterface

	objects  map[string]*v1.ConfigMap
	failures mockFailures
	// selectors records the label selector of every List call.
	selectors []string
}

// Init initializes the MockConfigMapsInterface with the set of releases.
func (mock *MockConfigMapsInterface) Init(t *testing.T, releases ...*rspb.Release) {
	mock.objects = map[string]*v1.ConfigMap{}

	for _, rls := range releases {
		objkey := testKey(rls.Name, rls.Version)

		cfgmap, err := newConfigMapsObject(objkey, rls, nil)
		if err != nil {
			t.Fatalf("Failed to create configmap: %s", err)
		}
		mock.objects[objkey] = cfgmap
	}
}

// Get returns the ConfigMap by name.
func (mock *MockConfigMapsInterface) Get(_ context.Context, name string, _ metav1.GetOptions) (*v1.ConfigMap, error) {
	if err := mock.failures.err("get"); err != nil {
		return nil, err
	}
	object, ok := mock.objects[name]
	if !ok {
		return nil, apierrors.NewNotFound(testResource, name)
	}
	return object, nil
}

// List returns the a of ConfigMaps.
func (mock *MockConfigMapsInterface) List(_ context.Context, opts metav1.ListOptions) (*v1.ConfigMapList, error) {
	mock.selectors = append(mock.selectors, opts.LabelSelector)
	if err := mock.failures.err("list"); err != nil {
		return nil, err
	}

	var list v1.ConfigMapList

	labelSelector, err := kblabels.Parse(opts.LabelSelector)
	if err != nil {
		return nil, err
	}

	for _, cfgmap := range mock.objects {
		if labelSelector.Matches(kblabels.Set(cfgmap.ObjectMeta.Labels)) {
			list.Items = append(list.Items, *cfgmap)
		}
	}
	return &list, nil
}

// Create creates a new ConfigMap.
func (mock *MockConfigMapsInterface) Create(_ context.Context, cfgmap *v1.ConfigMap, _ metav1.CreateOptions) (*v1.ConfigMap, error) {
	if err := mock.failures.err("create"); err != nil {
		return nil, err
	}
	name := cfgmap.ObjectMeta.Name
	if object, ok := mock.objects[name]; ok {
		return object, apierrors.NewAlreadyExists(testResource, name)
	}
	mock.objects[name] = cfgmap
	return cfgmap, nil
}

// Update updates a ConfigMap.
func (mock *MockConfigMapsInterface) Update(_ context.Context, cfgmap *v1.ConfigMap, _ metav1.UpdateOptions) (*v1.ConfigMap, error) {
	if err := mock.failures.err("update"); err != nil {
		return nil, err
	}
	name := cfgmap.ObjectMeta.Name
	if _, ok := mock.objects[name]; !ok {
		return nil, apierrors.NewNotFound(testResource, name)
	}
	mock.objects[name] = cfgmap
	return cfgmap, nil
}

// Delete deletes a ConfigMap by name.
func (mock *MockConfigMapsInterface) Delete(_ context.Context, name string, _ metav1.DeleteOptions) error {
	if err := mock.failures.err("delete"); err != nil {
		return err
	}
	if _, ok := mock.objects[name]; !ok {
		return apierrors.NewNotFound(testResource, name)
	}
	delete(mock.objects, name)
	return nil
}

// newTestFixtureSecrets initializes a MockSecretsInterface.
// Secrets are created for each release provided.
func newTestFixtureSecrets(t *testing.T, releases ...*rspb.Release) (*Secrets, *MockSecretsInterface) {
	var mock MockSecretsInterface
	mock.Init(t, releases...)

	secrets := NewSecrets(&mock)
	secrets.SetLogger(slog.DiscardHandler)
	return secrets, &mock
}

// MockSecretsInterface mocks a kubernetes SecretsInterface
type MockSecretsInterface struct {
	corev1.SecretInterface

	objects   map[string]*v1.Secret
	failures  mockFailures
	selectors []string
}

// Init initializes the MockSecretsInterface with the set of releases.
func (mock *MockSecretsInterface) Init(t *testing.T, releases ...*rspb.Release) {
	mock.objects = map[string]*v1.Secret{}

	for _, rls := range releases {
		objkey := testKey(rls.Name, rls.Version)

		secret, err := newSecretsObject(objkey, rls, nil)
		if err != nil {
			t.Fatalf("Failed to create secret: %s", err)
		}
		mock.objects[objkey] = secret
	}
}

// Get returns the Secret by name.
func (mock *MockSecretsInterface) Get(_ context.Context, name string, _ metav1.GetOptions) (*v1.Secret, error) {
	if err := mock.failures.err("get"); err != nil {
		return nil, err
	}
	object, ok := mock.objects[name]
	if !ok {
		return nil, apierrors.NewNotFound(testResource, name)
	}
	return object, nil
}

// List returns the a of Secret.
func (mock *MockSecretsInterface) List(_ context.Context, opts metav1.ListOptions) (*v1.SecretList, error) {
	mock.selectors = append(mock.selectors, opts.LabelSelector)
	if err := mock.failures.err("list"); err != nil {
		return nil, err
	}

	var list v1.SecretList

	labelSelector, err := kblabels.Parse(opts.LabelSelector)
	if err != nil {
		return nil, err
	}

	for _, secret := range mock.objects {
		if labelSelector.Matches(kblabels.Set(secret.ObjectMeta.Labels)) {
			list.Items = append(list.Items, *secret)
		}
	}
	return &list, nil
}

// Create creates a new Secret.
func (mock *MockSecretsInterface) Create(_ context.Context, secret *v1.Secret, _ metav1.CreateOptions) (*v1.Secret, error) {
	if err := mock.failures.err("create"); err != nil {
		return nil, err
	}
	name := secret.ObjectMeta.Name
	if object, ok := mock.objects[name]; ok {
		return object, apierrors.NewAlreadyExists(testResource, name)
	}
	mock.objects[name] = secret
	return secret, nil
}

// Update updates a Secret.
func (mock *MockSecretsInterface) Update(_ context.Context, secret *v1.Secret, _ metav1.UpdateOptions) (*v1.Secret, error) {
	if err := mock.failures.err("update"); err != nil {
		return nil, err
	}
	name := secret.ObjectMeta.Name
	if _, ok := mock.objects[name]; !ok {
		return nil, apierrors.NewNotFound(testResource, name)
	}
	mock.objects[name] = secret
	return secret, nil
}

// Delete deletes a Secret by name.
func (mock *MockSecretsInterface) Delete(_ context.Context, name string, _ metav1.DeleteOptions) error {
	if err := mock.failures.err("delete"); err != nil {
		return err
	}
	if _, ok := mock.objects[name]; !ok {
		return apierrors.NewNotFound(testResource, name)
	}
	delete(mock.objects, name)
	return nil
}

// newTestFixtureSQL mocks the SQL database (for testing purposes)
func newTestFixtureSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error when opening stub database connection: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	sqlDriver := newSQLWithDB(sqlx.NewDb(sqlDB, "sqlmock"), "default")
	sqlDriver.SetLogger(slog.DiscardHandler)
	return sqlDriver, mock
}

// newTestFixtureDisk opens a Disk driver on a fresh database file.
func newTestFixtureDisk(t *testing.T, namespace string, releases ...*rspb.Release) *Disk {
	disk, err := NewDisk(t.TempDir()+"/releases.db", namespace)
	if err != nil {
		t.Fatalf("Failed to open disk driver: %s", err)
	}
	t.Cleanup(func() { disk.Close() })
	disk.SetLogger(slog.DiscardHandler)

	for _, rls := range releases {
		if err := disk.Create(testKey(rls.Name, rls.Version), rls); err != nil {
			t.Fatalf("Test setup failed to create: %s", err)
		}
	}
	return disk
}
