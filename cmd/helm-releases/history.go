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

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"helm.sh/release-store/pkg/action"
	rspb "helm.sh/release-store/pkg/release"
)

var historyHelp = `
History prints historical revisions for a given release.

A default maximum of 256 revisions will be returned. Setting '--max'
configures the maximum length of the revision list returned.

The historical release set is printed as a formatted table, e.g:

    $ helm-releases history angry-bird
    REVISION    UPDATED                     STATUS          DESCRIPTION
    1           Mon Oct 3 10:15:13 2016     superseded      Initial install
    2           Mon Oct 3 10:15:13 2016     superseded      Upgraded successfully
    3           Mon Oct 3 10:15:13 2016     superseded      Rolled back to 2
    4           Mon Oct 3 10:15:13 2016     deployed        Upgraded successfully
`

type releaseInfo struct {
	Revision    int    `json:"revision"`
	Updated     string `json:"updated"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

type releaseHistory []releaseInfo

func newHistoryCmd(cfg *action.Configuration, out io.Writer) *cobra.Command {
	client := action.NewHistory(cfg)
	var outfmt outputFormat
	var colWidth uint

	cmd := &cobra.Command{
		Use:     "history RELEASE_NAME",
		Long:    historyHelp,
		Short:   "fetch release history",
		Aliases: []string{"hist"},
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rels, err := client.Run(args[0])
			if err != nil {
				return err
			}
			history := getReleaseHistory(rels)
			return outfmt.write(out, history, func() string {
				return formatAsTable(history, colWidth)
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&client.Max, "max", 256, "maximum number of revision to include in history")
	f.UintVar(&colWidth, "col-width", 60, "specifies the max column width of output")
	bindOutputFlag(cmd, &outfmt, outputTable)

	return cmd
}

func getReleaseHistory(rls []*rspb.Release) releaseHistory {
	history := make(releaseHistory, 0, len(rls))
	for _, r := range rls {
		rInfo := releaseInfo{
			Revision: r.Version,
			Status:   r.CurrentStatus().String(),
		}
		if r.Info != nil {
			rInfo.Description = r.Info.Description
			if r.Info.LastDeployed != nil && !r.Info.LastDeployed.IsZero() {
				rInfo.Updated = r.Info.LastDeployed.String()
			}
		}
		history = append(history, rInfo)
	}
	return history
}

func formatAsTable(releases releaseHistory, colWidth uint) string {
	tbl := uitable.New()

	tbl.MaxColWidth = colWidth
	tbl.AddRow("REVISION", "UPDATED", "STATUS", "DESCRIPTION")
	for _, r := range releases {
		tbl.AddRow(r.Revision, r.Updated, r.Status, r.Description)
	}
	return tbl.String()
}
