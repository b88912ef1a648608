package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

// SyncRunRepository implements ports.SyncRunStoragePort using SQLite.
type SyncRunRepository struct {
	db        *sql.DB
	machineID string
}

// NewSyncRunRepository creates a new SyncRunRepository.
func NewSyncRunRepository(db *sql.DB, machineID string) ports.SyncRunStoragePort {
	return &SyncRunRepository{db: db, machineID: machineID}
}

// Save persists a completed run along with its full report.
func (r *SyncRunRepository) Save(ctx context.Context, report *reconcile.SyncReport) error {
	if report == nil {
		return fmt.Errorf("sync report is nil")
	}

	s := report.Summarize()
	kindsJSON, err := json.Marshal(s.Kinds)
	if err != nil {
		return fmt.Errorf("failed to marshal kinds: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	query := `
		INSERT INTO sync_runs (
			id, checkpoint_id, started_at, completed_at, kinds,
			pushed, failed, conflicts, kind_errors, report, machine_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		nullableString(s.CheckpointID),
		formatTime(s.StartedAt),
		nullableTime(s.CompletedAt),
		string(kindsJSON),
		s.Pushed,
		s.Failed,
		s.Conflicts,
		s.KindErrors,
		string(reportJSON),
		nullableString(r.machineID),
	)
	if err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}

	return nil
}

// List retrieves the most recent runs.
func (r *SyncRunRepository) List(ctx context.Context, limit int) ([]reconcile.RunSummary, error) {
	query := `
		SELECT id, checkpoint_id, started_at, completed_at, kinds,
			pushed, failed, conflicts, kind_errors, machine_id
		FROM sync_runs
		ORDER BY started_at DESC, rowid DESC
	`
	args := make([]any, 0)

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	runs := []reconcile.RunSummary{}
	for rows.Next() {
		var (
			s                         reconcile.RunSummary
			startedAt, kinds          string
			checkpointID, completedAt sql.NullString
			machineID                 sql.NullString
		)
		err := rows.Scan(&s.ID, &checkpointID, &startedAt, &completedAt, &kinds,
			&s.Pushed, &s.Failed, &s.Conflicts, &s.KindErrors, &machineID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if s.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if s.CompletedAt, err = parseNullableTime(completedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kinds), &s.Kinds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal kinds: %w", err)
		}
		s.CheckpointID = checkpointID.String
		s.MachineID = machineID.String
		runs = append(runs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}
