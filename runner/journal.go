package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrBE4R/gitlab-ldap-sync/apply"
	"github.com/MrBE4R/gitlab-ldap-sync/database"
)

// The journal is best effort: its failures are logged and never fail a run.

func (r *Runner) openJournal(ctx context.Context, report *Report, logger zerolog.Logger) Journal {
	if r.cfg.Journal.DSN == "" {
		return nil
	}

	journal, err := r.deps.OpenJournal(ctx, r.cfg.Journal.DSN, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Run journal unavailable, continuing without it")
		return nil
	}

	mode := r.cfg.ExecutedFrom
	if mode == "" {
		mode = "terminal"
	}
	err = journal.StartRun(ctx, database.RunRecord{
		RunID:     report.RunID,
		StartedAt: time.Now().UTC(),
		Mode:      mode,
		DryRun:    report.DryRun,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Could not journal run start, continuing without journal")
		journal.Close()
		return nil
	}
	return journal
}

func (r *Runner) finishJournal(journal Journal, report *Report, runErr error, logger zerolog.Logger) {
	if journal == nil {
		return
	}

	res := database.RunResult{
		RunID:      report.RunID,
		FinishedAt: time.Now().UTC(),
		Status:     database.StatusCompleted,
		Applied:    report.Summary.Applied,
		Skipped:    report.Summary.Skipped,
		Failed:     report.Summary.Failed,
	}
	if runErr != nil {
		res.Status = database.StatusFailed
		res.Error = runErr.Error()
	}

	// the run context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := journal.FinishRun(ctx, res); err != nil {
		logger.Warn().Err(err).Msg("Could not journal run result")
	}
}

type journalRecorder struct {
	journal Journal
	runID   uuid.UUID
	seq     int
	logger  zerolog.Logger
}

func (j *journalRecorder) Record(ctx context.Context, result apply.Result) {
	j.seq++
	rec := database.ActionRecord{
		ActionID:   uuid.New(),
		RunID:      j.runID,
		Seq:        j.seq,
		Kind:       result.Action.Kind.String(),
		GroupName:  result.Action.Group,
		Username:   result.Action.Member.Username,
		Outcome:    string(result.Outcome),
		Reason:     result.Reason,
		RecordedAt: time.Now().UTC(),
	}
	if result.Err != nil {
		rec.Error = result.Err.Error()
	}
	if err := j.journal.RecordAction(ctx, rec); err != nil {
		j.logger.Warn().Err(err).Int("seq", j.seq).Msg("Could not journal action")
	}
}
