// Package cli holds the cobra commands behind the gitlab-ldap-sync and
// gitlab-ldap-sync-scheduler binaries.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MrBE4R/gitlab-ldap-sync/config"
	"github.com/MrBE4R/gitlab-ldap-sync/logging"
	"github.com/MrBE4R/gitlab-ldap-sync/runner"
)

// Version is set at build time.
var Version = "dev"

type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
}

func (g *globalFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "config.json", "path to the JSON configuration file")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "override log.level")
}

// load reads the configuration and builds the logger it describes.
func (g *globalFlags) load() (*config.Configuration, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(g.configFile, g.envFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	mode, err := logging.ParseMode(cfg.ExecutedFrom)
	if err != nil {
		return nil, zerolog.Nop(), nil, &config.Error{Field: "executed_from", Message: err.Error()}
	}
	logger, closer, err := logging.New(logging.Options{Mode: mode, Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, zerolog.Nop(), nil, &config.Error{Field: "log.file", Message: "could not open log file", Err: err}
	}
	return cfg, logger, closer, nil
}

// Execute runs cmd with a context cancelled on SIGINT and SIGTERM and
// returns the process exit code.
func Execute(cmd *cobra.Command) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return runner.ExitCode(err)
}

// NewRootCommand builds the one-shot sync command.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gitlab-ldap-sync",
		Short: "Synchronise GitLab group membership from LDAP",
		Long: `gitlab-ldap-sync reads groups and their members from an LDAP directory and
brings the GitLab groups of the same name in line: missing groups are created,
missing members added and members that left the LDAP group removed. Members
that do not come from the LDAP users base are never removed.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncOnce(cmd.Context(), flags, dryRun)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "log the plan without applying it")

	cmd.AddCommand(newPlanCommand(flags), newCheckConfigCommand(flags))
	return cmd
}

func newPlanCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the changes a sync would make without applying them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return syncOnce(cmd.Context(), flags, true)
		},
	}
}

func newCheckConfigCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration without connecting anywhere",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := cfg.Validate(); err != nil {
				return err
			}
			logger.Info().Str("config", flags.configFile).Msg("Configuration is valid")
			fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
			return nil
		},
	}
}

func syncOnce(ctx context.Context, flags *globalFlags, dryRun bool) error {
	cfg, logger, closer, err := flags.load()
	if err != nil {
		return err
	}
	defer closer.Close()

	_, err = runner.New(cfg, runner.Dependencies{}, logger).Run(ctx, dryRun)
	if err != nil {
		logger.Error().Err(err).Int("exit_code", runner.ExitCode(err)).Msg("Sync aborted")
	}
	return err
}
