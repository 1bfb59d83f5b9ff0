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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/topoc/pkg/compiler"
	"github.com/chazu/topoc/pkg/inventory"
	"github.com/chazu/topoc/pkg/output"
	"github.com/chazu/topoc/pkg/validate"
)

type renderOptions struct {
	documentFlags

	out       string
	inventory string
	watch     bool
}

func (a *app) renderCommand() *cobra.Command {
	o := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a topology into ordered manifests",
		Example: `  topoc render -f embedded://airflow/base.cue -o embedded://airflow/prod.cue
  topoc render -f topology.cue -o prod.yaml --format json --out graph.json
  topoc render -f topology.cue --watch --out manifests.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !o.watch {
				return a.render(cmd, o)
			}
			paths, err := filePaths(o.request())
			if err != nil {
				return err
			}
			return watchFiles(cmd.Context(), paths, func() {
				if err := a.render(cmd, o); err != nil && !errors.Is(err, errInvalid) {
					printError(cmd.ErrOrStderr(), err)
				}
			})
		},
	}
	o.register(cmd)
	cmd.Flags().String("format", "yaml", "output format: yaml (manifest stream) or json (graph document)")
	cmd.Flags().StringVar(&o.out, "out", "", "write output to this file instead of stdout")
	cmd.Flags().StringVar(&o.inventory, "inventory", "", "also write the object inventory to this file")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "render again whenever an input file changes")
	return cmd
}

func (a *app) render(cmd *cobra.Command, o *renderOptions) error {
	format, err := output.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return err
	}

	res, err := a.compile(cmd, o.request())
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := output.Write(&buf, res.Graph, format); err != nil {
		return err
	}
	if err := writeOutput(cmd.OutOrStdout(), o.out, buf.Bytes()); err != nil {
		return err
	}

	if o.inventory != "" {
		if err := inventory.FromGraph(res.Graph).Save(o.inventory); err != nil {
			return err
		}
	}
	log.FromContext(cmd.Context()).V(1).Info("rendered", "objects", len(res.Graph.Nodes), "out", o.out)
	return nil
}

// compile runs the pipeline and writes any validation issues to stderr.
// It returns errInvalid when validation found errors.
func (a *app) compile(cmd *cobra.Command, req compiler.Request) (*compiler.Result, error) {
	res, err := a.compiler.Compile(cmd.Context(), req)
	if _, ok := validate.AsError(err); ok && res != nil {
		output.WriteIssues(cmd.ErrOrStderr(), res.Issues)
		return nil, errInvalid
	}
	if err != nil {
		return nil, err
	}
	if len(res.Issues) > 0 {
		output.WriteIssues(cmd.ErrOrStderr(), res.Issues)
	}
	return res, nil
}

// writeOutput writes data to path, or to stdout when path is empty
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
