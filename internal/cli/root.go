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

// Package cli implements the topoc command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/chazu/topoc/internal/config"
	"github.com/chazu/topoc/pkg/compiler"
	"github.com/chazu/topoc/pkg/metrics"
	"github.com/chazu/topoc/pkg/output"
	"github.com/chazu/topoc/pkg/source"
	"github.com/chazu/topoc/pkg/validate"
)

// errInvalid reports that validation found errors; the report has already been written
var errInvalid = errors.New("topology is invalid")

// app holds state shared by all subcommands
type app struct {
	configFile  string
	metricsFile string
	zapOpts     zap.Options

	cfg      *config.Config
	compiler *compiler.Compiler
}

// Execute runs the command line and exits with its status
func Execute() {
	os.Exit(Run(ctrl.SetupSignalHandler(), os.Args[1:], os.Stdout, os.Stderr))
}

// Run executes the command line with args and returns the exit status
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		// Console output at warning level unless --zap-log-level says otherwise
		zapOpts: zap.Options{
			Development:     true,
			Level:           zapcore.WarnLevel,
			StacktraceLevel: zapcore.PanicLevel,
		},
	}
	cmd := a.rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)

	if a.metricsFile != "" {
		if werr := metrics.WriteTextfile(a.metricsFile); werr != nil {
			fmt.Fprintf(stderr, "%s %v\n", output.ErrorColor.Sprint("error:"), werr)
		}
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errInvalid):
		return 1
	default:
		printError(stderr, err)
		return 1
	}
}

func printError(w io.Writer, err error) {
	var loadErr *source.LoadError
	if errors.As(err, &loadErr) {
		fmt.Fprintf(w, "%s %s\n%s\n", output.ErrorColor.Sprint("error:"), loadErr.Source,
			output.Indent(loadErr.Detail, "  "))
		return
	}
	fmt.Fprintf(w, "%s %v\n", output.ErrorColor.Sprint("error:"), err)
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topoc",
		Short: "Compile service topologies into ordered Kubernetes manifests",
		Long: `topoc merges a base topology with environment overlays, checks it for
consistency and renders the infrastructure objects it describes in an order
that places every object after its dependencies.

Documents are CUE, JSON or YAML and are read from files, the examples built
into the binary (embedded://), inline text (inline:), git repositories
(git+https://) or ConfigMaps (configmap://).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default is $HOME/.topoc/config.yaml)")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write compile metrics to this file in Prometheus text format")
	flags.String("cache-dir", source.DefaultCacheDir(), "directory caching documents fetched from git")
	flags.Int("concurrency", compiler.DefaultConcurrency, "maximum number of overlays fetched at once")
	flags.String("namespace", "default", "namespace of configmap:// references that name none")
	flags.String("color", config.ColorAuto, "colorize output: auto, always or never")

	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	a.zapOpts.BindFlags(zapFlags)
	flags.AddGoFlagSet(zapFlags)

	cmd.AddCommand(
		a.renderCommand(),
		a.validateCommand(),
		a.mergeCommand(),
		a.diffCommand(),
		a.examplesCommand(),
	)
	return cmd
}

// setup configures logging, loads settings and builds the compiler
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	logger := zap.New(zap.UseFlagOptions(&a.zapOpts), zap.WriteTo(cmd.ErrOrStderr()))
	ctrl.SetLogger(logger)
	cmd.SetContext(log.IntoContext(cmd.Context(), logger.WithName("topoc")))

	flags := cmd.Flags()
	cfg, err := config.Load(a.configFile, map[string]*pflag.Flag{
		config.KeyCacheDir:    flags.Lookup("cache-dir"),
		config.KeyConcurrency: flags.Lookup("concurrency"),
		config.KeyNamespace:   flags.Lookup("namespace"),
		config.KeyColor:       flags.Lookup("color"),
		config.KeyFormat:      flags.Lookup("format"),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	if cfg.File != "" {
		log.FromContext(cmd.Context()).V(1).Info("using config file", "path", cfg.File)
	}

	switch cfg.Output.Color {
	case config.ColorAlways:
		color.NoColor = false
	case config.ColorNever:
		color.NoColor = true
	}

	opts, err := cfg.RegistryOptions()
	if err != nil {
		return err
	}
	opts.NewClient = newKubeClient

	loader, err := source.NewLoader(source.NewRegistry(opts))
	if err != nil {
		return err
	}
	a.compiler = compiler.New(loader,
		compiler.WithConcurrency(cfg.Fetch.Concurrency),
		compiler.WithValidator(validate.New(validate.WithMaxReplicas(cfg.Validate.MaxReplicas))),
	)
	return nil
}

// newKubeClient reads the kubeconfig from the environment
func newKubeClient() (client.Client, error) {
	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, err
	}
	return client.New(restConfig, client.Options{})
}

// documentFlags are the flags naming the documents to compile
type documentFlags struct {
	base     string
	overlays []string
}

func (d *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&d.base, "file", "f", "", "base topology reference")
	cmd.Flags().StringArrayVarP(&d.overlays, "overlay", "o", nil, "overlay reference, applied in the order given (repeatable)")
	_ = cmd.MarkFlagRequired("file")
}

func (d *documentFlags) request() compiler.Request {
	return compiler.Request{Base: d.base, Overlays: d.overlays}
}
