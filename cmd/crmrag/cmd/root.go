// Package cmd provides the CLI commands for crmrag.
package cmd

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/crmrag/internal/config"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/logging"
	"github.com/Aman-CERP/crmrag/internal/profiling"
	"github.com/Aman-CERP/crmrag/pkg/version"
)

const skipConfigAnnotation = "skip-config"

// rootOptions carries the persistent flags and the loaded configuration to
// every subcommand.
type rootOptions struct {
	configPath   string
	artifactPath string
	debug        bool
	profile      profiling.Options

	cfg            *config.Config
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the crmrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "crmrag",
		Short: "Graph-aware hybrid retrieval over a CIDOC-CRM corpus",
		Long: `crmrag retrieves the documents that best answer a question about a
CIDOC-CRM knowledge graph. Dense and keyword search are fused, widened with
category-aware candidates, and narrowed to a set that is relevant, connected
in the graph, and not redundant.

It reads a prebuilt SQLite artifact (see 'crmrag inspect').`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("crmrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: .crmrag.yaml in the working directory)")
	cmd.PersistentFlags().StringVar(&opts.artifactPath, "artifact", "", "Artifact path (overrides artifact.path)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.crmrag/logs/")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = opts.setup
	cmd.PersistentPostRunE = opts.teardown

	cmd.AddCommand(newRetrieveCmd(opts))
	cmd.AddCommand(newChatCmd(opts))
	cmd.AddCommand(newAggregateCmd(opts))
	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup starts profiling, loads configuration and installs the logger.
func (o *rootOptions) setup(cmd *cobra.Command, _ []string) error {
	if o.profile.Enabled() {
		session, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = session
	}

	if cmd.Annotations[skipConfigAnnotation] == "true" {
		return nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := config.Load(wd, o.configPath)
	if err != nil {
		return err
	}
	if o.artifactPath != "" {
		cfg.Artifact.Path = o.artifactPath
	}
	o.cfg = cfg

	logCfg := cfg.LoggingConfig()
	if o.debug {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)

	slog.Debug("config_loaded",
		slog.String("artifact", cfg.Artifact.Path),
		slog.String("embeddings_provider", cfg.Embeddings.Provider),
		slog.String("analyzer", cfg.Analyzer.Mode))
	return nil
}

func (o *rootOptions) teardown(_ *cobra.Command, _ []string) error {
	err := o.profiler.Stop()
	o.profiler = nil

	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	var reported reportedError
	if err != nil && !stderrors.As(err, &reported) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), errors.FormatForCLI(err))
	}
	return err
}

// reportedError marks an error the command has already written out.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }
