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
	"bytes"
	"errors"
	"reflect"
	"testing"

	rspb "helm.sh/release-store/pkg/release"
)

func TestSecretName(t *testing.T) {
	c, _ := newTestFixtureSecrets(t)
	if c.Name() != SecretsDriverName {
		t.Errorf("Expected name to be %q, got %q", SecretsDriverName, c.Name())
	}
}

func TestSecretGet(t *testing.T) {
	vers := 1
	name := "smug-pigeon"
	namespace := "default"
	key := testKey(name, vers)
	rel := releaseStub(name, vers, namespace, rspb.StatusDeployed)

	secrets, _ := newTestFixtureSecrets(t, []*rspb.Release{rel}...)

	// get release with key
	got, err := secrets.Get(key)
	if err != nil {
		t.Fatalf("Failed to get release: %s", err)
	}
	// compare fetched release with original
	if !reflect.DeepEqual(rel, got) {
		t.Errorf("Expected {%v}, got {%v}", rel, got)
	}

	// get a release that was never stored
	if _, err := secrets.Get(testKey(name, 2)); !errors.Is(err, ErrReleaseNotFound) {
		t.Errorf("Expected {%v}, got {%v}", ErrReleaseNotFound, err)
	}
}

func TestSecretGetCorruptData(t *testing.T) {
	key := testKey("smug-pigeon", 1)
	rel := releaseStub("smug-pigeon", 1, "default", rspb.StatusDeployed)

	secrets, mock := newTestFixtureSecrets(t, rel)

	// missing payload entry
	delete(mock.objects[key].Data, releaseDataKey)
	if _, err := secrets.Get(key); !errors.Is(err, ErrInvalidData) {
		t.Errorf("Expected {%v}, got {%v}", ErrInvalidData, err)
	}

	// payload that is not gzip
	mock.objects[key].Data[releaseDataKey] = []byte("not gzip")
	_, err := secrets.Get(key)
	var decErr *DecodeError
	if !errors.As(err, &decErr) || decErr.Step != DecodeStepGzip {
		t.Errorf("Expected gzip decode error, got {%v}", err)
	}
}

func TestSecretObjectFormat(t *testing.T) {
	key := testKey("smug-pigeon", 3)
	rel := releaseStub("smug-pigeon", 3, "default", rspb.StatusPendingUpgrade)

	secrets, mock := newTestFixtureSecrets(t)
	if err := secrets.Create(key, rel); err != nil {
		t.Fatalf("Failed to create release: %s", err)
	}

	obj := mock.objects[key]
	if obj.Name != key {
		t.Errorf("Expected object name %q, got %q", key, obj.Name)
	}
	if obj.Type != releaseObjectType {
		t.Errorf("Expected type %q, got %q", releaseObjectType, obj.Type)
	}
	if len(obj.Data) != 1 {
		t.Errorf("Expected exactly one data entry, got %d", len(obj.Data))
	}
	// secret data carries raw gzip bytes; the API server adds the base64 layer
	if !bytes.HasPrefix(obj.Data[releaseDataKey], []byte{0x1f, 0x8b}) {
		t.Errorf("Expected gzip payload, got %q", obj.Data[releaseDataKey])
	}

	lbs := obj.Labels
	expect := map[string]string{
		"name":    "smug-pigeon",
		"owner":   "helm",
		"status":  "pending-upgrade",
		"version": "3",
	}
	for k, v := range expect {
		if lbs[k] != v {
			t.Errorf("Expected label %s=%q, got %q", k, v, lbs[k])
		}
	}
	if lbs["createdAt"] == "" {
		t.Error("Expected createdAt label to be set")
	}
	if _, ok := lbs["modifiedAt"]; ok {
		t.Error("Expected no modifiedAt label on create")
	}
}

func TestSecretList(t *testing.T) {
	secrets, _ := newTestFixtureSecrets(t, []*rspb.Release{
		releaseStub("key-1", 1, "default", rspb.StatusUninstalled),
		releaseStub("key-2", 1, "default", rspb.StatusUninstalled),
		releaseStub("key-3", 1, "default", rspb.StatusDeployed),
		releaseStub("key-4", 1, "default", rspb.StatusDeployed),
		releaseStub("key-5", 1, "default", rspb.StatusSuperseded),
		releaseStub("key-6", 1, "default", rspb.StatusSuperseded),
	}...)

	// list all deleted releases
	del, err := secrets.List(func(rel *rspb.Release) bool {
		return rel.Info.Status == rspb.StatusUninstalled
	})
	// check
	if err != nil {
		t.Errorf("Failed to list deleted: %s", err)
	}
	if len(del) != 2 {
		t.Errorf("Expected 2 deleted, got %d:\n%v\n", len(del), del)
	}

	// list all deployed releases
	dpl, err := secrets.List(func(rel *rspb.Release) bool {
		return rel.Info.Status == rspb.StatusDeployed
	})
	// check
	if err != nil {
		t.Errorf("Failed to list deployed: %s", err)
	}
	if len(dpl) != 2 {
		t.Errorf("Expected 2 deployed, got %d", len(dpl))
	}

	// list all superseded releases
	ssd, err := secrets.List(func(rel *rspb.Release) bool {
		return rel.Info.Status == rspb.StatusSuperseded
	})
	// check
	if err != nil {
		t.Errorf("Failed to list superseded: %s", err)
	}
	if len(ssd) != 2 {
		t.Errorf("Expected 2 superseded, got %d", len(ssd))
	}
}

func TestSecretListSkipsUndecodable(t *testing.T) {
	secrets, mock := newTestFixtureSecrets(t,
		releaseStub("key-1", 1, "default", rspb.StatusDeployed),
		releaseStub("key-2", 1, "default", rspb.StatusDeployed),
	)
	mock.objects[testKey("key-2", 1)].Data[releaseDataKey] = []byte("garbage")

	rls, err := secrets.List(func(*rspb.Release) bool { return true })
	if err != nil {
		t.Fatalf("Failed to list: %s", err)
	}
	if len(rls) != 1 || rls[0].Name != "key-1" {
		t.Errorf("Expected only key-1, got %v", rls)
	}
}

func TestSecretQuery(t *testing.T) {
	secrets, mock := newTestFixtureSecrets(t, []*rspb.Release{
		releaseStub("key-1", 1, "default", rspb.StatusUninstalled),
		releaseStub("key-2", 1, "default", rspb.StatusUninstalled),
		releaseStub("key-3", 1, "default", rspb.StatusDeployed),
		releaseStub("key-4", 1, "default", rspb.StatusDeployed),
		releaseStub("key-5", 1, "default", rspb.StatusSuperseded),
		releaseStub("key-6", 1, "default", rspb.StatusSuperseded),
	}...)

	rls, err := secrets.Query(map[string]string{"status": "deployed", "owner": "helm"})
	if err != nil {
		t.Fatalf("Failed to query: %s", err)
	}
	if len(rls) != 2 {
		t.Fatalf("Expected 2 results, actual %d", len(rls))
	}
	if got := mock.selectors[len(mock.selectors)-1]; got != "owner=helm,status=deployed" {
		t.Errorf("Expected sorted selector, got %q", got)
	}

	rls, err = secrets.Query(map[string]string{"name": "notExist"})
	if err != nil {
		t.Errorf("Expected no error for empty result, got {%v}", err)
	}
	if len(rls) != 0 {
		t.Errorf("Expected no results, got %v", rls)
	}

	if _, err := secrets.Query(map[string]string{"name": "not a label value!"}); !errors.Is(err, ErrMalformedData) {
		t.Errorf("Expected {%v}, got {%v}", ErrMalformedData, err)
	}
}

func TestSecretCreate(t *testing.T) {
	secrets, _ := newTestFixtureSecrets(t)

	vers := 1
	name := "smug-pigeon"
	namespace := "default"
	key := testKey(name, vers)
	rel := releaseStub(name, vers, namespace, rspb.StatusDeployed)

	// store the release in a secret
	if err := secrets.Create(key, rel); err != nil {
		t.Fatalf("Failed to create release with key %q: %s", key, err)
	}

	// get the release back
	got, err := secrets.Get(key)
	if err != nil {
		t.Fatalf("Failed to get release with key %q: %s", key, err)
	}

	// compare created release with original
	if !reflect.DeepEqual(rel, got) {
		t.Errorf("Expected {%v}, got {%v}", rel, got)
	}

	// a second create with the same key is rejected
	if err := secrets.Create(key, rel); !errors.Is(err, ErrReleaseExists) {
		t.Errorf("Expected {%v}, got {%v}", ErrReleaseExists, err)
	}
}

func TestSecretUpdate(t *testing.T) {
	vers := 1
	name := "smug-pigeon"
	namespace := "default"
	key := testKey(name, vers)
	rel := releaseStub(name, vers, namespace, rspb.StatusDeployed)

	secrets, mock := newTestFixtureSecrets(t, []*rspb.Release{rel}...)

	// modify release status code
	rel.Info.Status = rspb.StatusSuperseded

	// perform the update
	if err := secrets.Update(key, rel); err != nil {
		t.Fatalf("Failed to update release: %s", err)
	}

	// fetch the updated release
	got, err := secrets.Get(key)
	if err != nil {
		t.Fatalf("Failed to get release with key %q: %s", key, err)
	}

	// check release has actually been updated by comparing modified fields
	if rel.Info.Status != got.Info.Status {
		t.Errorf("Expected status %s, got status %s", rel.Info.Status.String(), got.Info.Status.String())
	}

	lbs := mock.objects[key].Labels
	if lbs["status"] != "superseded" {
		t.Errorf("Expected status label to follow the release, got %q", lbs["status"])
	}
	if lbs["modifiedAt"] == "" {
		t.Error("Expected modifiedAt label to be set")
	}

	// updating a release that does not exist fails
	if err := secrets.Update(testKey(name, 9), rel); !errors.Is(err, ErrReleaseNotFound) {
		t.Errorf("Expected {%v}, got {%v}", ErrReleaseNotFound, err)
	}
}

func TestSecretDelete(t *testing.T) {
	vers := 1
	name := "smug-pigeon"
	namespace := "default"
	key := testKey(name, vers)
	rel := releaseStub(name, vers, namespace, rspb.StatusDeployed)

	secrets, _ := newTestFixtureSecrets(t, []*rspb.Release{rel}...)

	// perform the delete on a non-existing release
	_, err := secrets.Delete("nonexistent")
	if err != ErrReleaseNotFound {
		t.Fatalf("Expected ErrReleaseNotFound, got: {%v}", err)
	}

	// perform the delete
	rls, err := secrets.Delete(key)
	if err != nil {
		t.Fatalf("Failed to delete release with key %q: %s", key, err)
	}
	if !reflect.DeepEqual(rel, rls) {
		t.Errorf("Expected {%v}, got {%v}", rel, rls)
	}
	_, err = secrets.Get(key)
	if !errors.Is(err, ErrReleaseNotFound) {
		t.Errorf("Expected {%v}, got {%v}", ErrReleaseNotFound, err)
	}
}

func TestSecretBackendErrors(t *testing.T) {
	key := testKey("smug-pigeon", 1)
	rel := releaseStub("smug-pigeon", 1, "default", rspb.StatusDeployed)

	for _, tt := range kubeFailureCases() {
		t.Run(tt.desc, func(t *testing.T) {
			secrets, mock := newTestFixtureSecrets(t, rel)
			mock.failures = mockFailures{tt.op: tt.err}

			var err error
			switch tt.op {
			case "get":
				_, err = secrets.Get(key)
			case "list":
				_, err = secrets.List(func(*rspb.Release) bool { return true })
			case "create":
				err = secrets.Create(testKey("smug-pigeon", 2), rel)
			case "update":
				err = secrets.Update(key, rel)
			case "delete":
				_, err = secrets.Delete(key)
			}
			tt.check(t, err)
		})
	}
}
