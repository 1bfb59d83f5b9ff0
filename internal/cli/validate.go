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
	"github.com/chazu/topoc/pkg/validate"
)

func (a *app) validateCommand() *cobra.Command {
	d := &documentFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a merged topology for consistency",
		Long: `Merge the base topology with its overlays and report every consistency
issue. Exits non-zero when any issue is an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.compiler.Compile(cmd.Context(), d.request())
			if _, ok := validate.AsError(err); ok && res != nil {
				output.WriteIssues(cmd.OutOrStdout(), res.Issues)
				return errInvalid
			}
			if err != nil {
				return err
			}
			output.WriteIssues(cmd.OutOrStdout(), res.Issues)
			return nil
		},
	}
	d.register(cmd)
	return cmd
}
