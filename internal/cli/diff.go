/*
Copyright 2025.

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

package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/chazu/topoc/pkg/inventory"
	"github.com/chazu/topoc/pkg/output"
)

type diffOptions struct {
	documentFlags

	previous string
	save     bool
}

func (a *app) diffCommand() *cobra.Command {
	o := &diffOptions{}
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare a fresh render with a previous inventory",
		Long: `Render the topology and compare its objects with an inventory written by
"render --inventory". Removed objects are the ones a deployment would prune.`,
		Example: `  topoc render -f topology.cue --inventory last.json > manifests.yaml
  topoc diff -f topology.cue -o prod.cue --previous last.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			previous, err := inventory.Load(o.previous)
			if err != nil {
				return err
			}

			res, err := a.compile(cmd, o.request())
			if err != nil {
				return err
			}
			current := inventory.FromGraph(res.Graph)
			d := inventory.Diff(previous, current)

			if a.cfg.Output.Format == string(output.FormatJSON) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(d); err != nil {
					return err
				}
			} else {
				output.WriteDiff(cmd.OutOrStdout(), d)
			}

			if o.save {
				return current.Save(o.previous)
			}
			return nil
		},
	}
	o.register(cmd)
	cmd.Flags().StringVar(&o.previous, "previous", "", "inventory file from an earlier render")
	cmd.Flags().BoolVar(&o.save, "save", false, "replace the previous inventory with the current one")
	cmd.Flags().String("format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("previous")
	return cmd
}
