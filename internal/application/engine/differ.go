// Package engine provides the reconciliation engine: classification of local
// against remote records, status queries and push-only sync runs.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

// Differ classifies the records of one kind. It only reads.
type Differ struct {
	registry ports.KindRegistryPort
	links    ports.LinkStoragePort
	now      func() time.Time
}

// NewDiffer creates a new Differ.
func NewDiffer(registry ports.KindRegistryPort, links ports.LinkStoragePort) *Differ {
	return &Differ{registry: registry, links: links, now: time.Now}
}

// Classify partitions every identifier of kind into ahead, behind, modified
// and unchanged. A failure to read either side aborts the kind; there is no
// partial classification.
func (d *Differ) Classify(ctx context.Context, kind entity.Kind) (*reconcile.Classification, error) {
	binding, err := d.registry.GetRequired(kind)
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, fmt.Sprintf("cannot classify %s", kind), err)
	}

	locals, err := binding.Store.List(ctx)
	if err != nil {
		return nil, kindError(kind, errors.CodeStorage, "failed to read local records", err)
	}

	remotes, err := binding.Remote.List(ctx)
	if err != nil {
		return nil, kindError(kind, errors.CodeRemoteUnavailable, "failed to list remote records", err)
	}

	links, err := d.links.List(ctx, kind)
	if err != nil {
		return nil, kindError(kind, errors.CodeStorage, "failed to read links", err)
	}

	c, err := classify(kind, locals, remotes, links)
	if err != nil {
		return nil, kindError(kind, "", "classification failed", err)
	}
	c.Finalize(d.now().UTC())
	return c, nil
}

// kindError wraps err with the kind. An error that already carries a code
// keeps it; otherwise fallback is applied.
func kindError(kind entity.Kind, fallback errors.ErrorCode, msg string, err error) error {
	code := errors.CodeOf(err)
	if code == "" {
		code = fallback
	}
	if code == "" {
		code = errors.CodeStorage
	}
	return errors.WithContext(errors.NewError(code, msg, err), "kind", string(kind))
}

// classify is the pure part of Classify.
func classify(kind entity.Kind, locals []entity.Record, remotes []entity.RemoteRecord, links []entity.Link) (*reconcile.Classification, error) {
	c := reconcile.NewClassification(kind)

	remoteByID := make(map[string]*entity.RemoteRecord, len(remotes))
	for i := range remotes {
		remoteByID[remotes[i].RemoteID] = &remotes[i]
	}

	localByID := make(map[string]entity.Record, len(locals))
	for _, rec := range locals {
		localByID[rec.RecordID()] = rec
	}

	linkByLocal := make(map[string]*entity.Link, len(links))
	linkByRemote := make(map[string]*entity.Link, len(links))
	for i := range links {
		linkByLocal[links[i].LocalID] = &links[i]
		linkByRemote[links[i].RemoteID] = &links[i]
	}

	// Remote records that echo a local id but are not linked yet, e.g. after
	// a create whose link could not be saved.
	hinted := make(map[string]*entity.RemoteRecord)
	for i := range remotes {
		r := &remotes[i]
		if r.LocalID == "" {
			continue
		}
		if _, linked := linkByRemote[r.RemoteID]; linked {
			continue
		}
		if _, taken := linkByLocal[r.LocalID]; taken {
			continue
		}
		hinted[r.LocalID] = r
	}

	matched := make(map[string]bool, len(remotes))

	for _, local := range locals {
		id := local.RecordID()
		entry := &reconcile.Entry{
			ID:            id,
			LocalID:       id,
			Local:         local,
			LocalModified: local.ModifiedAt(),
		}

		var remote *entity.RemoteRecord
		if link, ok := linkByLocal[id]; ok {
			entry.Link = link
			entry.RemoteID = link.RemoteID
			remote = remoteByID[link.RemoteID]
		} else if r, ok := hinted[id]; ok {
			remote = r
			entry.RemoteID = r.RemoteID
		}

		if remote == nil {
			entry.State = reconcile.StateAhead
		} else {
			matched[remote.RemoteID] = true
			entry.Remote = remote
			entry.RemoteRevision = remote.Revision
			if err := compare(entry); err != nil {
				return nil, fmt.Errorf("compare %s: %w", id, err)
			}
		}

		if err := c.Add(entry); err != nil {
			return nil, err
		}
	}

	for i := range remotes {
		r := &remotes[i]
		if matched[r.RemoteID] {
			continue
		}
		entry := &reconcile.Entry{
			RemoteID:       r.RemoteID,
			State:          reconcile.StateBehind,
			Remote:         r,
			RemoteRevision: r.Revision,
		}
		if link, ok := linkByRemote[r.RemoteID]; ok && localByID[link.LocalID] == nil {
			entry.ID = link.LocalID
			entry.LocalID = link.LocalID
			entry.Link = link
		} else {
			entry.ID = reconcile.PlaceholderID(r.RemoteID)
		}
		if r.ParseErr != nil {
			entry.Annotation = parseAnnotation(r.ParseErr)
		}
		if err := c.Add(entry); err != nil {
			return nil, err
		}
	}

	for i := range links {
		l := links[i]
		if localByID[l.LocalID] == nil && remoteByID[l.RemoteID] == nil {
			c.Dangling = append(c.Dangling, l)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// compare sets the state of a pair present on both sides. Equal payloads are
// unchanged. Differing payloads are refined against the link baseline: only
// one side moving away from it is ahead or behind, anything else is modified.
func compare(e *reconcile.Entry) error {
	if e.Remote.ParseErr != nil {
		e.State = reconcile.StateModified
		e.Annotation = parseAnnotation(e.Remote.ParseErr)
		return nil
	}

	local := e.Local.Payload()
	diffs, err := entity.Diff(local, e.Remote.Payload)
	if err != nil {
		return err
	}
	if len(diffs) == 0 {
		e.State = reconcile.StateUnchanged
		return nil
	}
	e.Fields = diffs

	baseline := ""
	if e.Link != nil {
		baseline = e.Link.BaselineHash
	}
	if baseline == "" {
		e.State = reconcile.StateModified
		e.Annotation = annotate(diffs)
		return nil
	}

	localHash, err := local.Hash()
	if err != nil {
		return err
	}
	remoteHash, err := e.Remote.Payload.Hash()
	if err != nil {
		return err
	}

	switch {
	case localHash != baseline && remoteHash == baseline:
		e.State = reconcile.StateAhead
	case localHash == baseline && remoteHash != baseline:
		e.State = reconcile.StateBehind
	default:
		e.State = reconcile.StateModified
		e.Annotation = annotate(diffs)
	}
	return nil
}

func parseAnnotation(err error) string {
	return "remote record could not be parsed: " + err.Error()
}
