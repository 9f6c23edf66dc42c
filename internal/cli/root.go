// Package cli provides the entitycore command line interface
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nainya/entitycore/internal/config"
	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/schema"
	"github.com/nainya/entitycore/pkg/model"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

type envKey struct{}

// env is what PersistentPreRunE hands to subcommands
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *schema.Registry
}

func envFrom(cmd *cobra.Command) *env {
	e, _ := cmd.Context().Value(envKey{}).(*env)
	return e
}

// NewRootCmd creates the root command. registry supplies the modifiers
// schema files may name; nil means the built-in set.
func NewRootCmd(registry *schema.Registry) *cobra.Command {
	if registry == nil {
		registry = schema.NewRegistry()
	}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "entitycore",
		Short: "entitycore - schema driven entity storage",
		Long: `entitycore compiles YAML entity schemas, ingests records through their
field pipelines and serves the configured storage backend over gRPC.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logger.NewLogger(logger.Config{
				Level:  cfg.Log.Level,
				Pretty: cfg.Log.Pretty,
				Output: cmd.ErrOrStderr(),
			})
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, envKey{}, &env{cfg: cfg, log: log, registry: registry}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}} (" + GitCommit + ")\n")

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./entitycore.yaml)")
	flags.String("schema", "", "schema file")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.Bool("log-pretty", false, "human readable logs")
	flags.String("provider", "", "storage provider (memory|kv|sqlite|postgres|remote)")
	flags.String("url", "", "database DSN or remote server address")
	flags.String("wal", "", "journal path for the kv provider")
	flags.Duration("checkpoint", 0, "kv checkpoint interval (0 disables)")

	_ = rootCmd.RegisterFlagCompletionFunc("provider", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"memory", "kv", "sqlite", "postgres", "remote"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCmd(nil)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadModels compiles the schema named by path, falling back to the
// configured one
func (e *env) loadModels(path string) ([]*model.Model, error) {
	if path == "" {
		path = e.cfg.Schema
	}
	if path == "" {
		return nil, fmt.Errorf("no schema file: pass one or set schema in the config")
	}
	models, err := schema.LoadFile(path, e.registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return models, nil
}
