// Package memory provides an in-process remote client. It backs dry runs and
// tests, and can inject failures per operation or per record.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Compile-time check that Remote implements RemoteClientPort.
var _ ports.RemoteClientPort = (*Remote)(nil)

// Remote holds remote records of one kind in memory.
type Remote struct {
	kind entity.Kind
	now  func() time.Time

	mu      sync.RWMutex
	records map[string]entity.RemoteRecord

	listErr     error
	rejects     map[string]error
	unavailable bool
	delay       time.Duration

	lists   atomic.Int64
	creates atomic.Int64
	updates atomic.Int64
}

// New creates an empty in-memory remote for kind.
func New(kind entity.Kind) *Remote {
	return &Remote{
		kind:    kind,
		now:     time.Now,
		records: make(map[string]entity.RemoteRecord),
		rejects: make(map[string]error),
	}
}

// Kind returns the entity kind served by this remote.
func (r *Remote) Kind() entity.Kind {
	return r.kind
}

// Seed stores a record as if it had been created remotely. The payload is
// copied. A blank RemoteID gets a generated one, which is returned.
func (r *Remote) Seed(rec entity.RemoteRecord) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.RemoteID == "" {
		rec.RemoteID = newID()
	}
	if rec.Revision.IsZero() {
		rec.Revision = r.now()
	}
	rec.Payload = clonePayload(rec.Payload)
	r.records[rec.RemoteID] = rec
	return rec.RemoteID
}

// Record returns the stored remote record.
func (r *Remote) Record(remoteID string) (entity.RemoteRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[remoteID]
	if ok {
		rec.Payload = clonePayload(rec.Payload)
	}
	return rec, ok
}

// Len returns the number of stored records.
func (r *Remote) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// FailList makes List return err. A nil err clears the failure.
func (r *Remote) FailList(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

// SetUnavailable makes every call fail with ErrRemoteUnavailable.
func (r *Remote) SetUnavailable(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = down
}

// Reject makes pushes of the given local ID fail. On Update the remote ID of
// the link is matched instead.
func (r *Remote) Reject(id string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejects[id] = errors.NewError(errors.CodeRecordPushFailed, reason, nil)
}

// SetDelay adds latency to every call.
func (r *Remote) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Calls returns how many List, Create and Update calls were made.
func (r *Remote) Calls() (lists, creates, updates int64) {
	return r.lists.Load(), r.creates.Load(), r.updates.Load()
}

// TotalCalls returns the number of calls of any kind.
func (r *Remote) TotalCalls() int64 {
	l, c, u := r.Calls()
	return l + c + u
}

// List returns every stored record ordered by remote ID.
func (r *Remote) List(ctx context.Context) ([]entity.RemoteRecord, error) {
	r.lists.Add(1)
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.listErr != nil {
		return nil, r.listErr
	}

	out := make([]entity.RemoteRecord, 0, len(r.records))
	for _, rec := range r.records {
		rec.Payload = clonePayload(rec.Payload)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out, nil
}

// Create stores a new record and returns its generated remote ID.
func (r *Remote) Create(ctx context.Context, localID string, payload entity.Payload) (string, error) {
	r.creates.Add(1)
	if err := r.wait(ctx); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.rejects[localID]; ok {
		return "", err
	}

	id := newID()
	r.records[id] = entity.RemoteRecord{
		RemoteID: id,
		LocalID:  localID,
		Payload:  clonePayload(payload),
		Revision: r.now(),
	}
	return id, nil
}

// Update overwrites the payload of an existing record.
func (r *Remote) Update(ctx context.Context, remoteID string, payload entity.Payload) error {
	r.updates.Add(1)
	if err := r.wait(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.rejects[remoteID]; ok {
		return err
	}
	rec, ok := r.records[remoteID]
	if !ok {
		return errors.NewError(errors.CodeRecordPushFailed, fmt.Sprintf("remote record %s not found", remoteID), nil)
	}
	rec.Payload = clonePayload(payload)
	rec.Revision = r.now()
	r.records[remoteID] = rec
	return nil
}

// wait applies the configured delay and availability.
func (r *Remote) wait(ctx context.Context) error {
	r.mu.RLock()
	delay, down := r.delay, r.unavailable
	r.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.NewError(errors.CodeRemoteUnavailable, "request cancelled", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.NewError(errors.CodeRemoteUnavailable, "request cancelled", err)
	}
	if down {
		return errors.NewError(errors.CodeRemoteUnavailable, fmt.Sprintf("%s remote is down", r.kind), nil)
	}
	return nil
}

func clonePayload(p entity.Payload) entity.Payload {
	if p == nil {
		return nil
	}
	out := make(entity.Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
