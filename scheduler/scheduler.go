// Package scheduler runs sync passes on a cron schedule, one at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one scheduled pass.
type Job func(ctx context.Context)

type Options struct {
	// Spec is a standard five-field cron expression or a descriptor such as @hourly
	Spec string
	// RunOnStart triggers a pass as soon as the scheduler starts
	RunOnStart bool
}

// Scheduler triggers a Job on a cron schedule. A tick that fires while the
// previous pass is still running is skipped.
type Scheduler struct {
	cron   *cron.Cron
	opts   Options
	job    Job
	logger zerolog.Logger
}

func New(opts Options, job Job, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(opts.Spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", opts.Spec, err)
	}

	l := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		opts:   opts,
		job:    job,
		logger: logger,
	}, nil
}

// Run schedules the job and blocks until ctx is done, then waits for a
// running pass to return. The pass receives ctx, so cancelling it also
// interrupts the pass.
func (s *Scheduler) Run(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.opts.Spec, func() { s.job(ctx) })
	if err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}

	s.cron.Start()
	s.logger.Info().Str("schedule", s.opts.Spec).Time("next", s.cron.Entry(id).Next).Msg("Scheduler started")

	var initial sync.WaitGroup
	if s.opts.RunOnStart {
		initial.Add(1)
		// through the wrapped job so the overlap guard applies
		go func() {
			defer initial.Done()
			s.cron.Entry(id).WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	<-s.cron.Stop().Done()
	initial.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
