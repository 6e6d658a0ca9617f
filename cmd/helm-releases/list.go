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
	rspb "helm.sh/release-store/pkg/release"
)

var listHelp = `
This command lists every stored release record.

By default it lists every revision of every release in the namespace. Use
the state flags to narrow the list; several flags together are combined
with OR.

    $ helm-releases list --deployed --failed
`

type releaseListElement struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Revision  int    `json:"revision"`
	Updated   string `json:"updated"`
	Status    string `json:"status"`
}

func newListCmd(cfg *action.Configuration, out io.Writer) *cobra.Command {
	client := action.NewList(cfg)
	var outfmt outputFormat

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "list stored release records",
		Long:    listHelp,
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			results, err := client.Run()
			if err != nil {
				return err
			}
			return outfmt.write(out, newReleaseListWriter(results), func() string {
				return action.FormatList(results)
			})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&client.Deployed, "deployed", false, "show deployed releases")
	f.BoolVar(&client.Uninstalled, "uninstalled", false, "show uninstalled releases")
	f.BoolVar(&client.Failed, "failed", false, "show failed releases")
	f.BoolVarP(&client.SortByDate, "date", "d", false, "sort by release date")
	bindOutputFlag(cmd, &outfmt, outputTable)

	return cmd
}

func newReleaseListWriter(releases []*rspb.Release) []releaseListElement {
	elements := make([]releaseListElement, 0, len(releases))
	for _, r := range releases {
		element := releaseListElement{
			Name:      r.Name,
			Namespace: r.Namespace,
			Revision:  r.Version,
			Status:    r.CurrentStatus().String(),
		}
		if r.Info != nil && r.Info.LastDeployed != nil && !r.Info.LastDeployed.IsZero() {
			element.Updated = r.Info.LastDeployed.String()
		}
		elements = append(elements, element)
	}
	return elements
}
