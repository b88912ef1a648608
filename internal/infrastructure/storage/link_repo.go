// Package storage provides SQLite-based storage implementations for links,
// checkpoints and sync run history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	domainErrors "github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// timeLayout is a fixed-width UTC layout so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Compile-time check that LinkRepository implements LinkStoragePort.
var _ ports.LinkStoragePort = (*LinkRepository)(nil)

// LinkRepository implements LinkStoragePort using SQLite.
// Writes are serialized through an internal lock; reads may run concurrently.
type LinkRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewLinkRepository creates a new link repository.
func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// List returns every link of the kind ordered by local ID.
func (r *LinkRepository) List(ctx context.Context, kind entity.Kind) ([]entity.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT kind, local_id, remote_id, baseline_hash, remote_revision, last_pushed_at
		FROM entity_links
		WHERE kind = ?
		ORDER BY local_id
	`
	return r.queryLinks(ctx, query, string(kind))
}

// ListAll returns every link of every kind.
func (r *LinkRepository) ListAll(ctx context.Context) ([]entity.Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := `
		SELECT kind, local_id, remote_id, baseline_hash, remote_revision, last_pushed_at
		FROM entity_links
		ORDER BY kind, local_id
	`
	return r.queryLinks(ctx, query)
}

// Upsert creates or replaces the link for (kind, local ID).
func (r *LinkRepository) Upsert(ctx context.Context, link entity.Link) error {
	if err := link.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := upsertLink(ctx, r.db, link); err != nil {
		return domainErrors.NewError(domainErrors.CodeStorage,
			fmt.Sprintf("failed to save link %s/%s", link.Kind, link.LocalID), err)
	}
	return nil
}

// Delete removes the link for (kind, local ID).
func (r *LinkRepository) Delete(ctx context.Context, kind entity.Kind, localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `DELETE FROM entity_links WHERE kind = ? AND local_id = ?`, string(kind), localID)
	if err != nil {
		return domainErrors.NewError(domainErrors.CodeStorage,
			fmt.Sprintf("failed to delete link %s/%s", kind, localID), err)
	}
	return nil
}

// ReplaceAll atomically replaces the whole link table.
func (r *LinkRepository) ReplaceAll(ctx context.Context, links []entity.Link) error {
	for i := range links {
		if err := links[i].Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domainErrors.NewError(domainErrors.CodeStorage, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_links`); err != nil {
		return domainErrors.NewError(domainErrors.CodeStorage, "failed to clear links", err)
	}
	for _, link := range links {
		if err := upsertLink(ctx, tx, link); err != nil {
			return domainErrors.NewError(domainErrors.CodeStorage,
				fmt.Sprintf("failed to restore link %s/%s", link.Kind, link.LocalID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domainErrors.NewError(domainErrors.CodeStorage, "failed to commit links", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertLink(ctx context.Context, db execer, link entity.Link) error {
	query := `
		INSERT INTO entity_links (kind, local_id, remote_id, baseline_hash, remote_revision, last_pushed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, local_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			baseline_hash = excluded.baseline_hash,
			remote_revision = excluded.remote_revision,
			last_pushed_at = excluded.last_pushed_at
	`
	_, err := db.ExecContext(ctx, query,
		string(link.Kind),
		link.LocalID,
		link.RemoteID,
		nullableString(link.BaselineHash),
		nullableTime(link.RemoteRevision),
		nullableTime(link.LastPushedAt),
	)
	return err
}

// queryLinks executes a query and returns the scanned links.
func (r *LinkRepository) queryLinks(ctx context.Context, query string, args ...any) ([]entity.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodeStorage, "failed to query links", err)
	}
	defer rows.Close()

	links := []entity.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (entity.Link, error) {
	var (
		kind, localID, remoteID      string
		hash, revision, lastPushedAt sql.NullString
	)
	if err := row.Scan(&kind, &localID, &remoteID, &hash, &revision, &lastPushedAt); err != nil {
		return entity.Link{}, fmt.Errorf("failed to scan link: %w", err)
	}

	link := entity.Link{
		Kind:         entity.Kind(kind),
		LocalID:      localID,
		RemoteID:     remoteID,
		BaselineHash: hash.String,
	}
	var err error
	if link.RemoteRevision, err = parseNullableTime(revision); err != nil {
		return entity.Link{}, err
	}
	if link.LastPushedAt, err = parseNullableTime(lastPushedAt); err != nil {
		return entity.Link{}, err
	}
	return link, nil
}

// nullableString converts an empty string to a NULL value.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime converts a zero time to a NULL value.
func nullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}
