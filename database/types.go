package database

import (
	"time"

	"github.com/google/uuid"
)

// Run statuses stored in sync_runs.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunRecord represents a row in the sync_runs table when a run starts.
type RunRecord struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Mode      string
	DryRun    bool
}

// ActionRecord represents a row in the sync_actions table.
// Seq is the action's position in the plan.
type ActionRecord struct {
	ActionID   uuid.UUID
	RunID      uuid.UUID
	Seq        int
	Kind       string
	GroupName  string
	Username   string
	Outcome    string
	Reason     string
	Error      string
	RecordedAt time.Time
}

// RunResult closes a sync_runs row.
type RunResult struct {
	RunID      uuid.UUID
	FinishedAt time.Time
	Status     string
	Applied    int
	Skipped    int
	Failed     int
	Error      string
}
