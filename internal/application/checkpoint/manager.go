// Package checkpoint provides checkpoint management: snapshotting local
// state before a sync run and restoring it on demand.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/application/runlock"
	"github.com/jbctechsolutions/invsync/internal/domain/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/tracing"
)

// Reasons recorded on checkpoints.
const (
	ReasonSync   = "sync"
	ReasonManual = "manual"
)

// ManagerConfig holds the dependencies of a Manager.
type ManagerConfig struct {
	Registry  ports.KindRegistryPort
	Links     ports.LinkStoragePort
	Storage   ports.CheckpointStoragePort
	Lock      *runlock.Lock
	Logger    *logging.Logger
	Tracer    *tracing.Tracer
	MachineID string

	// Now and NewID are overridable in tests.
	Now   func() time.Time
	NewID func() (string, error)
}

// Manager creates, lists, restores and prunes checkpoints.
type Manager struct {
	registry  ports.KindRegistryPort
	links     ports.LinkStoragePort
	storage   ports.CheckpointStoragePort
	lock      *runlock.Lock
	logger    *logging.Logger
	tracer    *tracing.Tracer
	machineID string
	now       func() time.Time
	newID     func() (string, error)
}

// NewManager creates a new checkpoint manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Links == nil {
		return nil, fmt.Errorf("link storage is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("checkpoint storage is required")
	}

	m := &Manager{
		registry:  cfg.Registry,
		links:     cfg.Links,
		storage:   cfg.Storage,
		lock:      cfg.Lock,
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		machineID: cfg.MachineID,
		now:       cfg.Now,
		newID:     cfg.NewID,
	}
	if m.lock == nil {
		m.lock = runlock.New()
	}
	if m.logger == nil {
		m.logger = logging.Default()
	}
	if m.tracer == nil {
		m.tracer = tracing.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = newCheckpointID
	}
	return m, nil
}

// newCheckpointID returns a UUIDv7 so ids sort by creation time.
func newCheckpointID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Lock returns the run lock shared with the sync orchestrator.
func (m *Manager) Lock() *runlock.Lock {
	return m.lock
}

// Create snapshots every registered local collection together with the
// whole link table and stores it durably. Any failure, including a failed
// export, is reported as CHECKPOINT_WRITE_FAILED and leaves nothing behind.
func (m *Manager) Create(ctx context.Context, reason string) (*checkpoint.Checkpoint, error) {
	id, err := m.newID()
	if err != nil {
		return nil, errors.NewError(errors.CodeCheckpointWriteFailed, "failed to generate checkpoint id", err)
	}

	ctx = logging.WithCheckpointID(ctx, id)
	ctx, span := m.tracer.StartCheckpointSpan(ctx, "create", id)

	cp, err := m.snapshot(ctx, id, reason)
	if err == nil {
		err = m.storage.Create(ctx, cp)
	}
	if err != nil {
		err = asWriteFailed(id, err)
		m.logger.ErrorContext(ctx, "checkpoint failed", "error", err.Error())
		span.EndWithError(err)
		return nil, err
	}

	logging.LogCheckpointCreated(ctx, m.logger, id, len(cp.Kinds()), len(cp.Links()), cp.Size())
	span.End()
	return cp, nil
}

func (m *Manager) snapshot(ctx context.Context, id, reason string) (*checkpoint.Checkpoint, error) {
	cp, err := checkpoint.NewCheckpoint(id, m.now())
	if err != nil {
		return nil, err
	}
	cp.SetMachineID(m.machineID)
	cp.SetReason(reason)

	for _, store := range m.registry.Stores() {
		data, present, err := store.Export(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to export %s: %w", store.Kind(), err)
		}
		cp.AddCollection(store.Kind(), data, present)
	}

	links, err := m.links.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}
	cp.SetLinks(links)

	return cp, nil
}

func asWriteFailed(id string, err error) error {
	if errors.CodeOf(err) == errors.CodeCheckpointWriteFailed {
		return err
	}
	return errors.WithContext(
		errors.NewError(errors.CodeCheckpointWriteFailed, "failed to write checkpoint", err),
		"checkpoint_id", id,
	)
}

// Get loads one checkpoint with its content.
func (m *Manager) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	return m.storage.Get(ctx, id)
}

// List returns every checkpoint, newest first.
func (m *Manager) List(ctx context.Context) ([]checkpoint.Summary, error) {
	return m.storage.List(ctx)
}

// Restore overwrites every local collection and the link table with the
// content of checkpoint id. It is rejected with SYNC_IN_PROGRESS while a
// sync run holds the lock. Kinds registered after the checkpoint was taken
// are left untouched.
func (m *Manager) Restore(ctx context.Context, id string) error {
	release, err := m.lock.TryAcquire("restore")
	if err != nil {
		return err
	}
	defer release()

	ctx = logging.WithCheckpointID(ctx, id)
	ctx, span := m.tracer.StartCheckpointSpan(ctx, "restore", id)

	restored, err := m.restore(ctx, id)
	if err != nil {
		m.logger.ErrorContext(ctx, "restore failed", "error", err.Error())
		span.EndWithError(err)
		return err
	}

	logging.LogCheckpointRestored(ctx, m.logger, id, restored)
	span.End()
	return nil
}

func (m *Manager) restore(ctx context.Context, id string) (int, error) {
	cp, err := m.storage.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	var restored []string
	for _, store := range m.registry.Stores() {
		col, ok := cp.Collection(store.Kind())
		if !ok {
			continue
		}
		if err := store.Import(ctx, col.Data, col.Present); err != nil {
			return len(restored), partialRestoreError(id, string(store.Kind()), restored, err)
		}
		restored = append(restored, string(store.Kind()))
	}

	if err := m.links.ReplaceAll(ctx, cp.Links()); err != nil {
		return len(restored), partialRestoreError(id, "links", restored, err)
	}
	return len(restored), nil
}

// partialRestoreError reports a restore that stopped at failed. Collections
// listed in restored were already overwritten from the checkpoint.
func partialRestoreError(id, failed string, restored []string, cause error) error {
	msg := fmt.Sprintf("failed to restore %s", failed)
	if len(restored) > 0 {
		msg += fmt.Sprintf(" (already restored: %s)", strings.Join(restored, ", "))
	}
	e := errors.WithContext(errors.NewError(errors.CodeStorage, msg, cause), "checkpoint_id", id)
	return errors.WithContext(e, "restored_kinds", append([]string{}, restored...))
}

// Delete removes one checkpoint.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.storage.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "checkpoint deleted", "checkpoint_id", id)
	return nil
}

// Cleanup keeps the retain newest checkpoints and deletes the rest.
func (m *Manager) Cleanup(ctx context.Context, retain int) ([]string, error) {
	removed, err := m.storage.DeleteAllExcept(ctx, retain)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		m.logger.InfoContext(ctx, "checkpoints cleaned up", "removed", len(removed), "retained", retain)
	}
	return removed, nil
}
