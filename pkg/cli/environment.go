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

/*
Package cli describes the operating environment for the release store
command line.

The environment selects the storage driver and carries everything the
drivers need to reach their backend: Kubernetes client flags for the
Secret and ConfigMap drivers, a connection string for the SQL driver, a
file path for the disk driver and a server URL for the redis driver.
*/
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"k8s.io/cli-runtime/pkg/genericclioptions"
)

// defaultMaxHistory sets the maximum number of releases to 0: unlimited
const defaultMaxHistory = 0

// EnvSettings describes all of the environment settings.
type EnvSettings struct {
	namespace string
	config    *genericclioptions.ConfigFlags

	// KubeConfig is the path to the kubeconfig file
	KubeConfig string
	// KubeContext is the name of the kubeconfig context.
	KubeContext string
	// Bearer KubeToken used for authentication
	KubeToken string
	// Kubernetes API Server Endpoint for authentication
	KubeAPIServer string
	// Driver is the name of the storage driver: secret, configmap, memory, sql, disk or redis.
	Driver string
	// SQLConnectionString is the postgres DSN used by the sql driver.
	SQLConnectionString string
	// DiskPath is the database file used by the disk driver.
	DiskPath string
	// RedisURL is the redis:// URL used by the redis driver.
	RedisURL string
	// MaxHistory is the max release history maintained.
	MaxHistory int
	// Debug indicates whether or not debug logging is enabled.
	Debug bool
}

func New() *EnvSettings {
	env := &EnvSettings{
		namespace:           os.Getenv("HELM_NAMESPACE"),
		KubeContext:         os.Getenv("HELM_KUBECONTEXT"),
		KubeToken:           os.Getenv("HELM_KUBETOKEN"),
		KubeAPIServer:       os.Getenv("HELM_KUBEAPISERVER"),
		Driver:              os.Getenv("HELM_DRIVER"),
		SQLConnectionString: os.Getenv("HELM_DRIVER_SQL_CONNECTION_STRING"),
		DiskPath:            os.Getenv("HELM_DRIVER_DISK_PATH"),
		RedisURL:            os.Getenv("HELM_DRIVER_REDIS_URL"),
		MaxHistory:          envIntOr("HELM_MAX_HISTORY", defaultMaxHistory),
		Debug:               envBoolOr("HELM_DEBUG", false),
	}

	// bind to kubernetes config flags
	env.config = &genericclioptions.ConfigFlags{
		Namespace:   &env.namespace,
		Context:     &env.KubeContext,
		BearerToken: &env.KubeToken,
		APIServer:   &env.KubeAPIServer,
		KubeConfig:  &env.KubeConfig,
	}
	return env
}

// AddFlags binds flags to the given flagset.
func (s *EnvSettings) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&s.namespace, "namespace", "n", s.namespace, "namespace scope for this request")
	fs.StringVar(&s.KubeConfig, "kubeconfig", "", "path to the kubeconfig file")
	fs.StringVar(&s.KubeContext, "kube-context", s.KubeContext, "name of the kubeconfig context to use")
	fs.StringVar(&s.KubeToken, "kube-token", s.KubeToken, "bearer token used for authentication")
	fs.StringVar(&s.KubeAPIServer, "kube-apiserver", s.KubeAPIServer, "the address and the port for the Kubernetes API server")
	fs.StringVar(&s.Driver, "driver", s.Driver, "storage driver: secret, configmap, memory, sql, disk or redis")
	fs.StringVar(&s.SQLConnectionString, "sql-connection-string", s.SQLConnectionString, "postgres connection string for the sql driver")
	fs.StringVar(&s.DiskPath, "disk-path", s.DiskPath, "database file for the disk driver")
	fs.StringVar(&s.RedisURL, "redis-url", s.RedisURL, "server URL for the redis driver")
	fs.IntVar(&s.MaxHistory, "max-history", s.MaxHistory, "limit the maximum number of revisions saved per release. Use 0 for no limit")
	fs.BoolVar(&s.Debug, "debug", s.Debug, "enable verbose output")
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envBoolOr(name string, def bool) bool {
	if name == "" {
		return def
	}
	envVal := envOr(name, strconv.FormatBool(def))
	ret, err := strconv.ParseBool(envVal)
	if err != nil {
		return def
	}
	return ret
}

func envIntOr(name string, def int) int {
	if name == "" {
		return def
	}
	envVal := envOr(name, strconv.Itoa(def))
	ret, err := strconv.Atoi(envVal)
	if err != nil {
		return def
	}
	return ret
}

// EnvVars returns the environment this configuration corresponds to.
func (s *EnvSettings) EnvVars() map[string]string {
	envvars := map[string]string{
		"HELM_DEBUG":                        fmt.Sprint(s.Debug),
		"HELM_NAMESPACE":                    s.Namespace(),
		"HELM_DRIVER":                       s.Driver,
		"HELM_DRIVER_SQL_CONNECTION_STRING": s.SQLConnectionString,
		"HELM_DRIVER_DISK_PATH":             s.DiskPath,
		"HELM_DRIVER_REDIS_URL":             s.RedisURL,
		"HELM_MAX_HISTORY":                  strconv.Itoa(s.MaxHistory),

		// broken, these are populated from helm flags and not kubeconfig.
		"HELM_KUBECONTEXT":   s.KubeContext,
		"HELM_KUBETOKEN":     s.KubeToken,
		"HELM_KUBEAPISERVER": s.KubeAPIServer,
	}
	if s.KubeConfig != "" {
		envvars["KUBECONFIG"] = s.KubeConfig
	}
	return envvars
}

// Namespace gets the namespace from the configuration
func (s *EnvSettings) Namespace() string {
	if ns, _, err := s.config.ToRawKubeConfigLoader().Namespace(); err == nil {
		return ns
	}
	return "default"
}

// SetNamespace sets the namespace in the configuration
func (s *EnvSettings) SetNamespace(namespace string) {
	s.namespace = namespace
}

// RESTClientGetter gets the kubeconfig from EnvSettings
func (s *EnvSettings) RESTClientGetter() genericclioptions.RESTClientGetter {
	return s.config
}
