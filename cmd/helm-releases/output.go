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
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

// outputFormat is the --output flag value.
type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func (o outputFormat) String() string { return string(o) }

func (o *outputFormat) Set(s string) error {
	switch outputFormat(s) {
	case outputTable, outputJSON, outputYAML:
		*o = outputFormat(s)
		return nil
	}
	return errors.Errorf("invalid format type %q, expected one of table, json, yaml", s)
}

func (o outputFormat) Type() string { return "format" }

func bindOutputFlag(cmd *cobra.Command, o *outputFormat, def outputFormat) {
	*o = def
	cmd.Flags().VarP(o, "output", "o", "prints the output in the specified format. Allowed values: table, json, yaml")
}

// write renders obj in the chosen format. table is only called for the
// table format.
func (o outputFormat) write(out io.Writer, obj interface{}, table func() string) error {
	var (
		b   []byte
		err error
	)
	switch o {
	case outputTable:
		if table == nil {
			return errors.New("table output is not supported for this command")
		}
		_, err = fmt.Fprintln(out, table())
		return err
	case outputJSON:
		b, err = json.MarshalIndent(obj, "", "  ")
	case outputYAML:
		b, err = yaml.Marshal(obj)
	default:
		return errors.Errorf("unknown output format %q", o)
	}
	if err != nil {
		return errors.Wrapf(err, "unable to render %s output", o)
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}
