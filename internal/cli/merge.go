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
	"github.com/spf13/cobra"

	"github.com/chazu/topoc/pkg/output"
)

func (a *app) mergeCommand() *cobra.Command {
	d := &documentFlags{}
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Print the merged topology as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			merged, _, err := a.compiler.Merge(cmd.Context(), d.request())
			if err != nil {
				return err
			}
			return output.WriteYAML(cmd.OutOrStdout(), merged)
		},
	}
	d.register(cmd)
	return cmd
}
