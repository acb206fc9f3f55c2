// Package cli defines the medirec command tree: reconcile, diff, migrate,
// and version. The root command owns config loading and logger setup; the
// subcommands wire the pipeline from configuration.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmedi/medirec/internal/config"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the global flags.
type rootOptions struct {
	configPath string
	logLevel   string
	output     string
}

// runtime carries the initialized dependencies into subcommands.
type runtime struct {
	cfg    *config.Config
	logger logging.Logger
	opts   *rootOptions
}

// NewRootCommand creates the medirec root command.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	rt := &runtime{opts: opts}

	cmd := &cobra.Command{
		Use:   "medirec",
		Short: "Drug identity reconciliation across regulatory registries",
		Long: "medirec resolves, normalizes, expands, and merges drug ingredient\n" +
			"tables from multiple regulatory registries into one canonical list,\n" +
			"and tracks how that list drifts between runs.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return rt.init()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (default: env-only)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVarP(&opts.output, "output", "o", "text", "output format (text, json)")

	cmd.AddCommand(
		newReconcileCmd(rt),
		newDiffCmd(rt),
		newMigrateCmd(rt),
		newVersionCmd(),
	)
	return cmd
}

// init loads configuration and builds the logger; flags beat config.
func (rt *runtime) init() error {
	var (
		cfg *config.Config
		err error
	)
	if rt.opts.configPath != "" {
		cfg, err = config.Load(rt.opts.configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	logCfg := cfg.Log
	if rt.opts.logLevel != "" {
		logCfg.Level = strings.ToLower(rt.opts.logLevel)
	}
	if len(logCfg.OutputPaths) == 0 {
		// Keep stdout clean for command output.
		logCfg.OutputPaths = []string{"stderr"}
	}
	logger, err := logging.NewLogger(logCfg)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)

	rt.cfg = cfg
	rt.logger = logger
	return nil
}

// Execute runs the command tree.
func Execute() error {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
