package httpapi

import (
	"context"
	"fmt"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Compile-time check that Remote implements RemoteClientPort.
var _ ports.RemoteClientPort = (*Remote)(nil)

// FieldMapping maps local field names to remote property names. Fields that
// are not listed keep their local name.
type FieldMapping map[string]string

// Remote serves one entity kind over a shared Client.
type Remote struct {
	client     *Client
	kind       entity.Kind
	collection string
	toRemote   FieldMapping
	toLocal    FieldMapping
}

// RemoteOption is a functional option for configuring a Remote
type RemoteOption func(*Remote)

// WithCollection overrides the remote collection name. The default is the
// local collection name of the kind.
func WithCollection(name string) RemoteOption {
	return func(r *Remote) {
		if name != "" {
			r.collection = name
		}
	}
}

// WithFieldMapping sets the local-to-remote field name mapping.
func WithFieldMapping(m FieldMapping) RemoteOption {
	return func(r *Remote) {
		r.toRemote = make(FieldMapping, len(m))
		r.toLocal = make(FieldMapping, len(m))
		for local, remote := range m {
			r.toRemote[local] = remote
			r.toLocal[remote] = local
		}
	}
}

// NewRemote creates the adapter for kind.
func NewRemote(client *Client, kind entity.Kind, opts ...RemoteOption) (*Remote, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownKind, kind)
	}

	r := &Remote{
		client:     client,
		kind:       kind,
		collection: kind.Collection(),
		toRemote:   FieldMapping{},
		toLocal:    FieldMapping{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Kind returns the entity kind served by this adapter.
func (r *Remote) Kind() entity.Kind {
	return r.kind
}

// Collection returns the remote collection name.
func (r *Remote) Collection() string {
	return r.collection
}

// List returns every remote record projected onto the local schema. Records
// whose properties do not fit the schema are returned with ParseErr set.
func (r *Remote) List(ctx context.Context) ([]entity.RemoteRecord, error) {
	raw, err := r.client.ListRecords(ctx, r.collection)
	if err != nil {
		return nil, err
	}

	records := make([]entity.RemoteRecord, 0, len(raw))
	for _, rec := range raw {
		records = append(records, r.project(rec))
	}
	return records, nil
}

func (r *Remote) project(rec Record) entity.RemoteRecord {
	out := entity.RemoteRecord{
		RemoteID: rec.ID,
		LocalID:  rec.LocalID,
		Revision: rec.UpdatedAt,
	}

	translated := r.translate(rec.Properties, r.toLocal)
	typed, err := entity.FromPayload(r.kind, rec.ID, translated)
	if err != nil {
		out.Payload = translated
		out.ParseErr = err
		return out
	}
	out.Payload = typed.Payload()
	return out
}

// Create writes a new remote record.
func (r *Remote) Create(ctx context.Context, localID string, payload entity.Payload) (string, error) {
	rec, err := r.client.CreateRecord(ctx, r.collection, &CreateRequest{
		LocalID:    localID,
		Properties: r.translate(payload, r.toRemote),
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Update overwrites a remote record's properties.
func (r *Remote) Update(ctx context.Context, remoteID string, payload entity.Payload) error {
	return r.client.UpdateRecord(ctx, r.collection, remoteID, &UpdateRequest{
		Properties: r.translate(payload, r.toRemote),
	})
}

func (r *Remote) translate(in map[string]any, names FieldMapping) entity.Payload {
	out := make(entity.Payload, len(in))
	for k, v := range in {
		if mapped, ok := names[k]; ok {
			k = mapped
		}
		out[k] = v
	}
	return out
}
