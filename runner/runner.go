// Package runner wires one synchronisation pass together: read the directory,
// read GitLab, plan, and apply.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrBE4R/gitlab-ldap-sync/apply"
	"github.com/MrBE4R/gitlab-ldap-sync/config"
	"github.com/MrBE4R/gitlab-ldap-sync/database"
	"github.com/MrBE4R/gitlab-ldap-sync/directory"
	"github.com/MrBE4R/gitlab-ldap-sync/directory/ldaphelpers"
	"github.com/MrBE4R/gitlab-ldap-sync/logging"
	"github.com/MrBE4R/gitlab-ldap-sync/reconcile"
	"github.com/MrBE4R/gitlab-ldap-sync/retry"
	"github.com/MrBE4R/gitlab-ldap-sync/target"
)

// Journal records runs. *database.Journal implements it.
type Journal interface {
	StartRun(ctx context.Context, run database.RunRecord) error
	RecordAction(ctx context.Context, rec database.ActionRecord) error
	FinishRun(ctx context.Context, res database.RunResult) error
	Close()
}

// Dependencies replaces the network-facing constructors. Nil fields use the
// real implementations.
type Dependencies struct {
	Dial        directory.Dialer
	NewAPI      func(opts target.ClientOptions) (target.API, error)
	OpenJournal func(ctx context.Context, dsn string, logger zerolog.Logger) (Journal, error)
	// Sleep replaces the wait between retries of GitLab calls
	Sleep func(ctx context.Context, d time.Duration) error
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Dial == nil {
		d.Dial = directory.DialURL
	}
	if d.NewAPI == nil {
		d.NewAPI = func(opts target.ClientOptions) (target.API, error) {
			return target.NewGitLab(opts)
		}
	}
	if d.OpenJournal == nil {
		d.OpenJournal = func(ctx context.Context, dsn string, logger zerolog.Logger) (Journal, error) {
			return database.Open(ctx, dsn, logger)
		}
	}
	return d
}

// Report describes a finished pass.
type Report struct {
	RunID   uuid.UUID
	DryRun  bool
	Plan    *reconcile.Plan
	Summary apply.Summary
}

type Runner struct {
	cfg    *config.Configuration
	deps   Dependencies
	logger zerolog.Logger
}

func New(cfg *config.Configuration, deps Dependencies, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		deps:   deps.withDefaults(),
		logger: logger,
	}
}

// Run performs one pass. With dryRun the plan is logged but not applied.
// Configuration is validated before anything touches the network.
func (r *Runner) Run(ctx context.Context, dryRun bool) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.New(), DryRun: dryRun}
	logger := r.logger.With().Str("run_id", report.RunID.String()).Logger()
	logger.Info().Bool("dry_run", dryRun).Msg("Starting sync")

	journal := r.openJournal(ctx, report, logger)
	if journal != nil {
		defer journal.Close()
	}

	err := r.run(ctx, report, journal, logger)
	r.finishJournal(journal, report, err, logger)
	return report, err
}

func (r *Runner) run(ctx context.Context, report *Report, journal Journal, logger zerolog.Logger) error {
	api, err := r.gitlab(logging.Component(logger, "gitlab"))
	if err != nil {
		return err
	}

	gitlabReader := target.NewReader(api, target.ReaderOptions{PerPage: r.cfg.GitLab.PerPage}, logging.Component(logger, "gitlab"))
	if _, err := gitlabReader.Authenticate(ctx); err != nil {
		return &BackendError{Backend: "gitlab", Err: err}
	}

	dir, err := directory.Connect(directory.Options{
		URL:        r.cfg.LDAP.URL,
		BindDN:     r.cfg.LDAP.BindDN,
		Password:   r.cfg.LDAP.Password,
		StartTLS:   r.cfg.LDAP.StartTLS,
		SkipVerify: !r.cfg.LDAP.SSLVerify,
		PageSize:   r.cfg.LDAP.PageSize,
		Retry:      r.retryPolicy(),
	}, r.deps.Dial, logging.Component(logger, "ldap"))
	if err != nil {
		return err
	}
	defer dir.Close()

	ldapReader := directory.NewReader(dir, directory.ReaderOptions{
		GroupsBaseDN: r.cfg.LDAP.GroupsBaseDN,
		UsersBaseDN:  r.cfg.LDAP.UsersBaseDN,
		Selector: ldaphelpers.GroupSelector{
			Attribute: r.cfg.LDAP.GroupAttribute,
			Marker:    r.cfg.LDAP.GroupAttributeValue,
			Prefix:    r.cfg.LDAP.GroupPrefix,
		},
		UserFilter:      r.cfg.LDAP.UserFilter,
		WithDescription: r.cfg.GitLab.AddDescription,
	}, logging.Component(logger, "ldap"))

	desired, err := ldapReader.Read(ctx)
	if err != nil {
		return fmt.Errorf("read LDAP groups: %w", err)
	}
	current, err := gitlabReader.Read(ctx)
	if err != nil {
		return fmt.Errorf("read GitLab groups: %w", err)
	}
	users, err := gitlabReader.ResolveUsers(ctx, desired.Usernames())
	if err != nil {
		return fmt.Errorf("resolve GitLab users: %w", err)
	}

	reconciler := reconcile.New(reconcile.Options{
		UsersBaseDN:          r.cfg.LDAP.UsersBaseDN,
		CreateUsers:          r.cfg.GitLab.CreateUser,
		PropagateDescription: r.cfg.GitLab.AddDescription,
		Provider:             r.cfg.GitLab.LDAPProvider,
	}, logging.Component(logger, "reconcile"))
	report.Plan = reconciler.Plan(desired, current, users)

	if report.DryRun {
		for _, action := range report.Plan.Actions {
			logger.Info().Str("action", action.Kind.String()).Msg(action.String())
		}
		logger.Info().Int("actions", len(report.Plan.Actions)).Msg("Dry run, nothing applied")
		return nil
	}

	accessLevel, err := config.ParseAccessLevel(r.cfg.GitLab.AccessLevel)
	if err != nil {
		return &config.Error{Field: "gitlab.access_level", Message: err.Error()}
	}
	executor := apply.New(api, apply.Options{
		Visibility:  r.cfg.GitLab.GroupVisibility,
		AccessLevel: accessLevel,
	}, logging.Component(logger, "apply"))
	if journal != nil {
		executor.WithRecorder(&journalRecorder{journal: journal, runID: report.RunID, logger: logger})
	}

	report.Summary, err = executor.Execute(ctx, report.Plan)
	return err
}

func (r *Runner) gitlab(logger zerolog.Logger) (target.API, error) {
	client, err := r.deps.NewAPI(target.ClientOptions{
		BaseURL:      r.cfg.GitLab.API,
		PrivateToken: r.cfg.GitLab.PrivateToken,
		OAuthToken:   r.cfg.GitLab.OAuthToken,
		VerifyTLS:    r.cfg.GitLab.SSLVerify,
		Timeout:      r.cfg.GitLab.Timeout,
	})
	if err != nil {
		return nil, &config.Error{Field: "gitlab", Message: "could not create GitLab client", Err: err}
	}

	reads := retry.New(r.retryPolicy(), target.IsTransient, logger)
	writes := retry.New(r.retryPolicy(), target.IsThrottled, logger)
	if r.deps.Sleep != nil {
		reads.WithSleep(r.deps.Sleep)
		writes.WithSleep(r.deps.Sleep)
	}
	return target.NewGuard(client, target.NewLimiter(r.cfg.GitLab.RequestsPerSecond), reads, writes), nil
}

func (r *Runner) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	if r.cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = r.cfg.Retry.MaxAttempts
	}
	if r.cfg.Retry.BaseDelay > 0 {
		policy.BaseDelay = r.cfg.Retry.BaseDelay
	}
	return policy
}
