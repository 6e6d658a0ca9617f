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
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"helm.sh/release-store/pkg/action"
)

var deleteHelp = `
This command removes a single revision of a release from storage.

Only the stored record is removed. Resources deployed to the cluster are
left untouched.
`

func newDeleteCmd(cfg *action.Configuration, out io.Writer) *cobra.Command {
	client := action.NewDelete(cfg)

	cmd := &cobra.Command{
		Use:   "delete RELEASE_NAME --revision N",
		Short: "remove a stored release revision",
		Long:  deleteHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rls, err := client.Run(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "release %q revision %d deleted\n", rls.Name, rls.Version)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&client.Version, "revision", 0, "revision to delete")
	cmd.MarkFlagRequired("revision")

	return cmd
}
