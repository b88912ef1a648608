// Package ports defines the application layer port interfaces following hexagonal architecture.
// Ports are abstractions that allow the application core to interact with external systems
// (adapters) without knowing their implementation details.
package ports

import (
	"context"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// EntityStorePort reads the authoritative local collection of one kind.
// Implementations might use JSON files, SQLite, or other storage backends.
type EntityStorePort interface {
	// Kind returns the entity kind held by this store.
	Kind() entity.Kind

	// List returns every local record of the kind.
	// Returns an empty slice when the collection does not exist yet.
	List(ctx context.Context) ([]entity.Record, error)

	// Get retrieves one record by its local identifier.
	// Returns an error wrapping errors.ErrRecordNotFound if absent.
	Get(ctx context.Context, id string) (entity.Record, error)

	// Export returns the raw bytes of the whole collection for snapshotting.
	// present is false when the collection does not exist.
	Export(ctx context.Context) (data []byte, present bool, err error)

	// Import overwrites the whole collection with data previously returned by
	// Export. When present is false the collection is removed.
	// Used only by checkpoint restore.
	Import(ctx context.Context, data []byte, present bool) error
}

// LinkStoragePort persists the mapping between local and remote identifiers.
type LinkStoragePort interface {
	// List returns every link of the kind.
	List(ctx context.Context, kind entity.Kind) ([]entity.Link, error)

	// ListAll returns every link of every kind.
	ListAll(ctx context.Context) ([]entity.Link, error)

	// Upsert creates or replaces the link for (kind, local ID).
	Upsert(ctx context.Context, link entity.Link) error

	// Delete removes the link for (kind, local ID). Deleting a missing link is not an error.
	Delete(ctx context.Context, kind entity.Kind, localID string) error

	// ReplaceAll atomically replaces the whole table. Used by checkpoint restore.
	ReplaceAll(ctx context.Context, links []entity.Link) error
}
