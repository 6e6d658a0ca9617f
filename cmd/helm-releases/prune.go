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

var pruneHelp = `
This command deletes the oldest revisions of a release, keeping the
newest ones.

    $ helm-releases prune angry-bird --keep 3

Revisions that fail to delete are logged and left in place; running the
command again retries them.
`

func newPruneCmd(cfg *action.Configuration, out io.Writer) *cobra.Command {
	client := action.NewPrune(cfg)

	cmd := &cobra.Command{
		Use:   "prune RELEASE_NAME --keep N",
		Short: "delete old revisions of a release",
		Long:  pruneHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			deleted, err := client.Run(args[0])
			if err != nil {
				return err
			}
			for _, rls := range deleted {
				fmt.Fprintf(out, "release %q revision %d deleted\n", rls.Name, rls.Version)
			}
			fmt.Fprintf(out, "pruned %d revision(s) of %q\n", len(deleted), args[0])
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&client.Keep, "keep", 0, "number of most recent revisions to keep")
	cmd.MarkFlagRequired("keep")

	return cmd
}
