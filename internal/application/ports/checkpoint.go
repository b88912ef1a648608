package ports

import (
	"context"

	"github.com/jbctechsolutions/invsync/internal/domain/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

// CheckpointStoragePort persists checkpoints durably.
type CheckpointStoragePort interface {
	// Create writes a complete checkpoint. Either every part is written or
	// nothing is; a partial checkpoint is never observable.
	Create(ctx context.Context, cp *checkpoint.Checkpoint) error

	// Get loads a checkpoint with its content.
	// Returns an error with code CHECKPOINT_NOT_FOUND if absent.
	Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error)

	// List returns summaries of all checkpoints, newest first.
	List(ctx context.Context) ([]checkpoint.Summary, error)

	// Delete removes one checkpoint.
	// Returns an error with code CHECKPOINT_NOT_FOUND if absent.
	Delete(ctx context.Context, id string) error

	// DeleteAllExcept removes all checkpoints except the newest retain ones
	// and returns the removed identifiers.
	DeleteAllExcept(ctx context.Context, retain int) ([]string, error)
}

// SyncRunStoragePort keeps the history of completed sync runs.
type SyncRunStoragePort interface {
	// Save records a completed run.
	Save(ctx context.Context, report *reconcile.SyncReport) error

	// List returns the most recent runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]reconcile.RunSummary, error)
}
