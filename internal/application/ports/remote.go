package ports

import (
	"context"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// RemoteClientPort reads and writes one kind of record in the external
// system of record. Implementations translate between the local payload
// shape and the remote schema.
//
// Network, authentication and rate-limit failures must wrap
// errors.ErrRemoteUnavailable so callers can tell them apart from
// per-record rejections.
type RemoteClientPort interface {
	// Kind returns the entity kind served by this client.
	Kind() entity.Kind

	// List returns every remote record of the kind.
	List(ctx context.Context) ([]entity.RemoteRecord, error)

	// Create writes a new remote record and returns its remote identifier.
	// localID is passed along so the remote may echo it back.
	Create(ctx context.Context, localID string, payload entity.Payload) (string, error)

	// Update overwrites the remote record's content.
	Update(ctx context.Context, remoteID string, payload entity.Payload) error
}
