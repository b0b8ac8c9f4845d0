package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Run is the bookkeeping row for one pipeline invocation.
type Run struct {
	ID          uuid.UUID
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
	Videos      int
	FailedItems int
}

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (id, status, started_at, videos, failed_items)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID.String(), string(run.Status), run.StartedAt.UnixNano(),
		run.Videos, run.FailedItems,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *Run) error {
	query := `
		UPDATE runs SET status=?, finished_at=?, videos=?, failed_items=?
		WHERE id=?`

	var finished sql.NullInt64
	if run.FinishedAt != nil {
		finished = sql.NullInt64{Int64: run.FinishedAt.UnixNano(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		string(run.Status), finished, run.Videos, run.FailedItems, run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (r *RunRepository) FindByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	query := `
		SELECT id, status, started_at, finished_at, videos, failed_items
		FROM runs WHERE id=?`

	var (
		rawID    string
		status   string
		started  int64
		finished sql.NullInt64
		run      Run
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID, &status, &started, &finished, &run.Videos, &run.FailedItems,
	)
	if err != nil {
		return nil, fmt.Errorf("find run by id: %w", err)
	}
	run.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	run.Status = RunStatus(status)
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}
