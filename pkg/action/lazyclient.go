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
	"context"
	"sync"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	corev1 "k8s.io/client-go/kubernetes/typed/core/v1"
)

// lazyClient defers building the Kubernetes client until a driver first
// talks to the API server, so that commands run against the sql, disk or
// memory drivers never need a kubeconfig.
type lazyClient struct {
	// client caches an initialized kubernetes client
	initClient sync.Once
	client     kubernetes.Interface
	clientErr  error

	// clientFn loads a kubernetes client
	clientFn func() (kubernetes.Interface, error)

	// namespace passed to each client request
	namespace string
}

func (s *lazyClient) init() error {
	s.initClient.Do(func() {
		s.client, s.clientErr = s.clientFn()
	})
	return s.clientErr
}

// secretClient implements the calls the Secrets driver makes on a
// corev1.SecretInterface. The remaining methods are left to the nil
// embedded interface and must not be called.
type secretClient struct {
	corev1.SecretInterface
	*lazyClient
}

var _ corev1.SecretInterface = (*secretClient)(nil)

func newSecretClient(lc *lazyClient) *secretClient {
	return &secretClient{lazyClient: lc}
}

func (s *secretClient) secrets() (corev1.SecretInterface, error) {
	if err := s.init(); err != nil {
		return nil, err
	}
	return s.client.CoreV1().Secrets(s.namespace), nil
}

func (s *secretClient) Create(ctx context.Context, secret *v1.Secret, opts metav1.CreateOptions) (*v1.Secret, error) {
	c, err := s.secrets()
	if err != nil {
		return nil, err
	}
	return c.Create(ctx, secret, opts)
}

func (s *secretClient) Update(ctx context.Context, secret *v1.Secret, opts metav1.UpdateOptions) (*v1.Secret, error) {
	c, err := s.secrets()
	if err != nil {
		return nil, err
	}
	return c.Update(ctx, secret, opts)
}

func (s *secretClient) Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	c, err := s.secrets()
	if err != nil {
		return err
	}
	return c.Delete(ctx, name, opts)
}

func (s *secretClient) Get(ctx context.Context, name string, opts metav1.GetOptions) (*v1.Secret, error) {
	c, err := s.secrets()
	if err != nil {
		return nil, err
	}
	return c.Get(ctx, name, opts)
}

func (s *secretClient) List(ctx context.Context, opts metav1.ListOptions) (*v1.SecretList, error) {
	c, err := s.secrets()
	if err != nil {
		return nil, err
	}
	return c.List(ctx, opts)
}

// configMapClient implements the calls the ConfigMaps driver makes on a
// corev1.ConfigMapInterface.
type configMapClient struct {
	corev1.ConfigMapInterface
	*lazyClient
}

var _ corev1.ConfigMapInterface = (*configMapClient)(nil)

func newConfigMapClient(lc *lazyClient) *configMapClient {
	return &configMapClient{lazyClient: lc}
}

func (c *configMapClient) configMaps() (corev1.ConfigMapInterface, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	return c.client.CoreV1().ConfigMaps(c.namespace), nil
}

func (c *configMapClient) Create(ctx context.Context, configMap *v1.ConfigMap, opts metav1.CreateOptions) (*v1.ConfigMap, error) {
	cm, err := c.configMaps()
	if err != nil {
		return nil, err
	}
	return cm.Create(ctx, configMap, opts)
}

func (c *configMapClient) Update(ctx context.Context, configMap *v1.ConfigMap, opts metav1.UpdateOptions) (*v1.ConfigMap, error) {
	cm, err := c.configMaps()
	if err != nil {
		return nil, err
	}
	return cm.Update(ctx, configMap, opts)
}

func (c *configMapClient) Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	cm, err := c.configMaps()
	if err != nil {
		return err
	}
	return cm.Delete(ctx, name, opts)
}

func (c *configMapClient) Get(ctx context.Context, name string, opts metav1.GetOptions) (*v1.ConfigMap, error) {
	cm, err := c.configMaps()
	if err != nil {
		return nil, err
	}
	return cm.Get(ctx, name, opts)
}

func (c *configMapClient) List(ctx context.Context, opts metav1.ListOptions) (*v1.ConfigMapList, error) {
	cm, err := c.configMaps()
	if err != nil {
		return nil, err
	}
	return cm.List(ctx, opts)
}
