// Package database keeps an optional Postgres journal of sync runs and the
// outcome of every action they applied.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Journal struct {
	db     Execer
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to dsn and makes sure the journal tables exist.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Journal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to journal database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	j := &Journal{db: pool, pool: pool, logger: logger}
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

// New wraps an existing connection.
func New(db Execer, logger zerolog.Logger) *Journal {
	return &Journal{db: db, logger: logger}
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create journal tables: %w", err)
	}
	return nil
}

func (j *Journal) StartRun(ctx context.Context, run RunRecord) error {
	_, err := j.db.Exec(ctx, InsertRun, run.RunID, run.StartedAt, run.Mode, run.DryRun)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	j.logger.Debug().Str("run_id", run.RunID.String()).Msg("Run journaled")
	return nil
}

func (j *Journal) RecordAction(ctx context.Context, rec ActionRecord) error {
	_, err := j.db.Exec(ctx, InsertAction,
		rec.ActionID,
		rec.RunID,
		rec.Seq,
		rec.Kind,
		nullable(rec.GroupName),
		nullable(rec.Username),
		rec.Outcome,
		nullable(rec.Reason),
		nullable(rec.Error),
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action %d of run %s: %w", rec.Seq, rec.RunID, err)
	}
	return nil
}

func (j *Journal) FinishRun(ctx context.Context, res RunResult) error {
	tag, err := j.db.Exec(ctx, FinishRun,
		res.RunID,
		res.FinishedAt,
		res.Status,
		res.Applied,
		res.Skipped,
		res.Failed,
		nullable(res.Error),
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", res.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: run was never started", res.RunID)
	}
	return nil
}

// Close releases the pool opened by Open.
func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
