package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	domainErrors "github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Compile-time check that CheckpointRepository implements CheckpointStoragePort.
var _ ports.CheckpointStoragePort = (*CheckpointRepository)(nil)

// CheckpointRepository implements CheckpointStoragePort using SQLite.
// A checkpoint is spread over three tables and always written in one
// transaction.
type CheckpointRepository struct {
	db *sql.DB
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(db *sql.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Create persists a complete checkpoint.
func (r *CheckpointRepository) Create(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}

	kindsJSON, err := json.Marshal(cp.Kinds())
	if err != nil {
		return fmt.Errorf("failed to marshal kinds: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return writeFailed(cp.ID(), "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (id, created_at, machine_id, reason, kinds, link_count, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		cp.ID(),
		formatTime(cp.CreatedAt()),
		nullableString(cp.MachineID()),
		nullableString(cp.Reason()),
		string(kindsJSON),
		len(cp.Links()),
		cp.Size(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return domainErrors.NewError(domainErrors.CodeValidation, "checkpoint already exists", err)
		}
		return writeFailed(cp.ID(), "failed to insert checkpoint", err)
	}

	for _, col := range cp.Collections() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoint_collections (checkpoint_id, kind, present, data)
			VALUES (?, ?, ?, ?)
		`, cp.ID(), string(col.Kind), col.Present, col.Data)
		if err != nil {
			return writeFailed(cp.ID(), fmt.Sprintf("failed to insert %s collection", col.Kind), err)
		}
	}

	for _, link := range cp.Links() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO checkpoint_links (checkpoint_id, kind, local_id, remote_id, baseline_hash, remote_revision, last_pushed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			cp.ID(),
			string(link.Kind),
			link.LocalID,
			link.RemoteID,
			nullableString(link.BaselineHash),
			nullableTime(link.RemoteRevision),
			nullableTime(link.LastPushedAt),
		)
		if err != nil {
			return writeFailed(cp.ID(), fmt.Sprintf("failed to insert link %s/%s", link.Kind, link.LocalID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return writeFailed(cp.ID(), "failed to commit checkpoint", err)
	}
	return nil
}

// Get retrieves a checkpoint with its collections and links.
func (r *CheckpointRepository) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	var (
		createdAt         string
		machineID, reason sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT created_at, machine_id, reason FROM checkpoints WHERE id = ?`, id,
	).Scan(&createdAt, &machineID, &reason)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	cp, err := checkpoint.NewCheckpoint(id, created)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}
	cp.SetMachineID(machineID.String)
	cp.SetReason(reason.String)

	if err := r.loadCollections(ctx, cp); err != nil {
		return nil, err
	}
	if err := r.loadLinks(ctx, cp); err != nil {
		return nil, err
	}

	return cp, nil
}

func (r *CheckpointRepository) loadCollections(ctx context.Context, cp *checkpoint.Checkpoint) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT kind, present, data FROM checkpoint_collections WHERE checkpoint_id = ?`, cp.ID())
	if err != nil {
		return fmt.Errorf("failed to query checkpoint collections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind    string
			present bool
			data    []byte
		)
		if err := rows.Scan(&kind, &present, &data); err != nil {
			return fmt.Errorf("failed to scan checkpoint collection: %w", err)
		}
		cp.AddCollection(entity.Kind(kind), data, present)
	}
	return rows.Err()
}

func (r *CheckpointRepository) loadLinks(ctx context.Context, cp *checkpoint.Checkpoint) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, local_id, remote_id, baseline_hash, remote_revision, last_pushed_at
		FROM checkpoint_links
		WHERE checkpoint_id = ?
		ORDER BY kind, local_id
	`, cp.ID())
	if err != nil {
		return fmt.Errorf("failed to query checkpoint links: %w", err)
	}
	defer rows.Close()

	links := []entity.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating checkpoint links: %w", err)
	}

	cp.SetLinks(links)
	return nil
}

// List returns summaries of all checkpoints, newest first.
func (r *CheckpointRepository) List(ctx context.Context) ([]checkpoint.Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, created_at, machine_id, reason, kinds, link_count, size_bytes
		FROM checkpoints
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	summaries := []checkpoint.Summary{}
	for rows.Next() {
		var (
			s                 checkpoint.Summary
			createdAt, kinds  string
			machineID, reason sql.NullString
		)
		if err := rows.Scan(&s.ID, &createdAt, &machineID, &reason, &kinds, &s.LinkCount, &s.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(kinds), &s.Kinds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal kinds: %w", err)
		}
		s.MachineID = machineID.String
		s.Reason = reason.String
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	return summaries, nil
}

// Delete removes a checkpoint and, through the cascade, its content.
func (r *CheckpointRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if rows == 0 {
		return notFound(id)
	}

	return nil
}

// DeleteAllExcept removes every checkpoint but the newest retain ones.
func (r *CheckpointRepository) DeleteAllExcept(ctx context.Context, retain int) ([]string, error) {
	if retain < 1 {
		return nil, domainErrors.NewError(domainErrors.CodeValidation,
			fmt.Sprintf("retention must be at least 1, got %d", retain), nil)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM checkpoints
		ORDER BY created_at DESC, rowid DESC
		LIMIT -1 OFFSET ?
	`, retain)
	if err != nil {
		return nil, fmt.Errorf("failed to query old checkpoints: %w", err)
	}
	removed := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan checkpoint id: %w", err)
		}
		removed = append(removed, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}

	for _, id := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return removed, nil
}

func notFound(id string) error {
	return domainErrors.WithContext(
		domainErrors.NewError(domainErrors.CodeCheckpointNotFound, fmt.Sprintf("checkpoint not found: %s", id), nil),
		"checkpoint_id", id,
	)
}

func writeFailed(id, msg string, cause error) error {
	return domainErrors.WithContext(
		domainErrors.NewError(domainErrors.CodeCheckpointWriteFailed, msg, cause),
		"checkpoint_id", id,
	)
}
