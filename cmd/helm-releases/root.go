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

package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"helm.sh/release-store/internal/logging"
	"helm.sh/release-store/pkg/action"
	"helm.sh/release-store/pkg/cli"
)

var globalUsage = `Inspect and maintain the release records kept by Helm.

Release records are stored by the configured driver. Common actions:

- helm-releases list:     list stored release records
- helm-releases history:  show the revisions of a release
- helm-releases get:      print a stored revision
- helm-releases delete:   remove a single revision
- helm-releases prune:    keep only the most recent revisions of a release

Environment variables:

| Name                               | Description                                                             |
|------------------------------------|-------------------------------------------------------------------------|
| $HELM_DRIVER                       | storage driver: secret (default), configmap, memory, sql, disk or redis |
| $HELM_DRIVER_SQL_CONNECTION_STRING | postgres connection string for the sql driver                           |
| $HELM_DRIVER_DISK_PATH             | database file for the disk driver                                       |
| $HELM_DRIVER_REDIS_URL             | server URL for the redis driver                                         |
| $HELM_MAX_HISTORY                  | maximum number of revisions kept per release                            |
| $HELM_NAMESPACE                    | namespace used for the helm operations                                  |
| $HELM_KUBECONTEXT                  | name of the kubeconfig context                                          |
| $HELM_KUBETOKEN                    | bearer token used for authentication                                    |
| $HELM_KUBEAPISERVER                | the Kubernetes API server endpoint                                      |
| $HELM_DEBUG                        | enable verbose output                                                   |
`

var settings = cli.New()

func newRootCmd(out io.Writer, args []string) (*cobra.Command, error) {
	return newRootCmdWithConfig(new(action.Configuration), out, args)
}

func newRootCmdWithConfig(actionConfig *action.Configuration, out io.Writer, args []string) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:          "helm-releases",
		Short:        "Inspect and maintain Helm release records.",
		Long:         globalUsage,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initActionConfig(actionConfig)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return actionConfig.Close()
		},
	}

	flags := cmd.PersistentFlags()
	settings.AddFlags(flags)

	// Errors from this early parse are reported again by cmd.Execute. It
	// only has to pick up the driver settings before any subcommand runs.
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Parse(args)

	cmd.AddCommand(
		newListCmd(actionConfig, out),
		newHistoryCmd(actionConfig, out),
		newGetCmd(actionConfig, out),
		newDeleteCmd(actionConfig, out),
		newPruneCmd(actionConfig, out),
	)

	return cmd, nil
}

// initActionConfig wires the logger and, unless a storage engine was
// injected, builds one from the current settings.
func initActionConfig(actionConfig *action.Configuration) error {
	logger := logging.NewLogger(os.Stderr, func() bool { return settings.Debug })
	slog.SetDefault(logger)
	actionConfig.SetLogger(logger.Handler())

	if actionConfig.Releases != nil {
		actionConfig.Releases.SetLogger(logger.Handler())
		return nil
	}

	actionConfig.SQLConnectionString = settings.SQLConnectionString
	actionConfig.DiskPath = settings.DiskPath
	actionConfig.RedisURL = settings.RedisURL
	actionConfig.MaxHistory = settings.MaxHistory
	return actionConfig.Init(settings.RESTClientGetter(), settings.Namespace(), settings.Driver)
}
