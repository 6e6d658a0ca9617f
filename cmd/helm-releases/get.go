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

	"github.com/spf13/cobra"

	"helm.sh/release-store/pkg/action"
)

var getHelp = `
This command prints a stored release record.

Without --revision the latest revision is printed. The record is printed
as YAML unless '-o json' is given. The table format is not available.
`

func newGetCmd(cfg *action.Configuration, out io.Writer) *cobra.Command {
	client := action.NewGet(cfg)
	var outfmt outputFormat

	cmd := &cobra.Command{
		Use:   "get RELEASE_NAME",
		Short: "print a stored release record",
		Long:  getHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rls, err := client.Run(args[0])
			if err != nil {
				return err
			}
			return outfmt.write(out, rls, nil)
		},
	}

	f := cmd.Flags()
	f.IntVar(&client.Version, "revision", 0, "get the named release with revision")
	bindOutputFlag(cmd, &outfmt, outputYAML)

	return cmd
}

