package database

import _ "embed"

//go:embed schema.sql
var schemaSQL string

const (
	InsertRun = `
		INSERT INTO sync_runs (run_id, started_at, mode, dry_run)
		VALUES ($1, $2, $3, $4)`

	InsertAction = `
		INSERT INTO sync_actions (action_id, run_id, seq, kind, group_name, username, outcome, reason, error, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	FinishRun = `
		UPDATE sync_runs
		SET finished_at = $2, status = $3, applied = $4, skipped = $5, failed = $6, error = $7
		WHERE run_id = $1`
)
