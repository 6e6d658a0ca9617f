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
	"io"
	"regexp"

	"github.com/pkg/errors"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"

	"helm.sh/release-store/internal/logging"
	rspb "helm.sh/release-store/pkg/release"
	"helm.sh/release-store/pkg/storage"
	"helm.sh/release-store/pkg/storage/driver"
)

// releaseNameMaxLen is the maximum length of a release name. Storage object
// names are the release name plus the key prefix and revision suffix, and
// must stay within the 63 character limit Kubernetes puts on label values.
const releaseNameMaxLen = 53

var (
	// errMissingRelease indicates that a release (name) was not provided.
	errMissingRelease = errors.New("no release provided")
	// errInvalidRevision indicates that an invalid release revision number was provided.
	errInvalidRevision = errors.New("invalid release revision")
	// errInvalidName indicates that a release name does not follow the naming rules.
	errInvalidName = errors.New("invalid release name, must match regex ^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$ and the length must not be longer than 53")
)

// validName is the DNS-1123 subdomain rule release names follow.
var validName = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

// Configuration injects the dependencies that all actions share.
type Configuration struct {
	// RESTClientGetter is an interface that loads Kubernetes clients.
	RESTClientGetter genericclioptions.RESTClientGetter

	// Releases stores records of releases.
	Releases *storage.Storage

	// KubernetesClientSet builds the client used by the secret and
	// configmap drivers. When nil, one is built from RESTClientGetter.
	KubernetesClientSet func() (kubernetes.Interface, error)

	// SQLConnectionString is the postgres DSN used by the sql driver.
	SQLConnectionString string

	// DiskPath is the database file used by the disk driver.
	DiskPath string

	// RedisURL is the server URL used by the redis driver.
	RedisURL string

	// MaxHistory is copied onto the storage engine built by Init.
	MaxHistory int

	// LogHolder supplies the logger handed to the driver and the storage
	// engine. The zero value discards everything.
	logging.LogHolder
}

// Init initializes the action configuration
func (cfg *Configuration) Init(getter genericclioptions.RESTClientGetter, namespace, helmDriver string) error {
	handler := cfg.Logger().Handler()

	clientFn := cfg.KubernetesClientSet
	if clientFn == nil {
		clientFn = func() (kubernetes.Interface, error) {
			if getter == nil {
				return nil, errors.New("no kubernetes configuration available")
			}
			restConfig, err := getter.ToRESTConfig()
			if err != nil {
				return nil, errors.Wrap(err, "unable to load kubernetes configuration")
			}
			return kubernetes.NewForConfig(restConfig)
		}
	}
	lazyClient := &lazyClient{
		namespace: namespace,
		clientFn:  clientFn,
	}

	var d driver.Driver
	switch helmDriver {
	case "secret", "secrets", "":
		sd := driver.NewSecrets(newSecretClient(lazyClient))
		sd.SetLogger(handler)
		d = sd
	case "configmap", "configmaps":
		cd := driver.NewConfigMaps(newConfigMapClient(lazyClient))
		cd.SetLogger(handler)
		d = cd
	case "memory":
		var md *driver.Memory
		if cfg.Releases != nil {
			if mem, ok := cfg.Releases.Driver.(*driver.Memory); ok {
				// Init may run more than once against the same process; keep the
				// records already written and only move to the new namespace.
				md = mem
			}
		}
		if md == nil {
			md = driver.NewMemory()
		}
		md.SetNamespace(namespace)
		md.SetLogger(handler)
		d = md
	case "sql":
		sd, err := driver.NewSQL(cfg.SQLConnectionString, namespace)
		if err != nil {
			return errors.Wrap(err, "unable to instantiate SQL driver")
		}
		sd.SetLogger(handler)
		d = sd
	case "disk":
		dd, err := driver.NewDisk(cfg.DiskPath, namespace)
		if err != nil {
			return errors.Wrap(err, "unable to instantiate disk driver")
		}
		dd.SetLogger(handler)
		d = dd
	case "redis":
		rd, err := driver.NewRedis(cfg.RedisURL, namespace)
		if err != nil {
			return errors.Wrap(err, "unable to instantiate redis driver")
		}
		rd.SetLogger(handler)
		d = rd
	default:
		return errors.Errorf("unknown driver %q", helmDriver)
	}

	store := storage.Init(d)
	store.SetLogger(handler)
	store.MaxHistory = cfg.MaxHistory

	cfg.RESTClientGetter = getter
	cfg.Releases = store
	return nil
}

// Close releases the resources held by the storage driver, if any.
func (cfg *Configuration) Close() error {
	if cfg.Releases == nil {
		return nil
	}
	if c, ok := cfg.Releases.Driver.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// releaseContent returns the given revision of a release, or its latest
// revision when version is 0 or less.
func (cfg *Configuration) releaseContent(name string, version int) (*rspb.Release, error) {
	if err := validateReleaseName(name); err != nil {
		return nil, errors.Wrapf(err, "releaseContent: release name is invalid: %s", name)
	}

	if version <= 0 {
		return cfg.Releases.Last(name)
	}

	return cfg.Releases.Get(name, version)
}

func validateReleaseName(name string) error {
	if name == "" {
		return errMissingRelease
	}
	if len(name) > releaseNameMaxLen || !validName.MatchString(name) {
		return errInvalidName
	}
	return nil
}
