package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrBE4R/gitlab-ldap-sync/config"
	"github.com/MrBE4R/gitlab-ldap-sync/runner"
	"github.com/MrBE4R/gitlab-ldap-sync/scheduler"
)

// NewSchedulerCommand builds the long-running command that syncs on the
// schedule.cron expression.
func NewSchedulerCommand() *cobra.Command {
	flags := &globalFlags{}
	var runNow bool

	cmd := &cobra.Command{
		Use:           "gitlab-ldap-sync-scheduler",
		Short:         "Run gitlab-ldap-sync periodically",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := flags.load()
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Schedule.Cron == "" {
				return &config.Error{Field: "schedule.cron", Message: "no schedule configured"}
			}

			job := func(ctx context.Context) {
				// a pass's failure is logged and the next tick tries again
				if _, err := runner.New(cfg, runner.Dependencies{}, logger).Run(ctx, false); err != nil {
					logger.Error().Err(err).Int("exit_code", runner.ExitCode(err)).Msg("Scheduled sync failed")
				}
			}

			s, err := scheduler.New(scheduler.Options{Spec: cfg.Schedule.Cron, RunOnStart: runNow}, job, logger)
			if err != nil {
				return &config.Error{Field: "schedule.cron", Message: err.Error(), Err: err}
			}
			return s.Run(cmd.Context())
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run a pass immediately instead of waiting for the first tick")
	return cmd
}
