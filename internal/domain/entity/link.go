package entity

import (
	"strings"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// RemoteRecord is the remote system's copy of a record, already translated
// to local field names by the remote adapter.
type RemoteRecord struct {
	RemoteID string
	// LocalID is set when the remote echoes the local identifier it was
	// created from. It is only a hint; links are authoritative.
	LocalID  string
	Payload  Payload
	Revision time.Time
	// ParseErr is set when the remote payload could not be projected onto the
	// kind's schema. Such records are kept and surfaced, never dropped.
	ParseErr error
}

// Link maps a local record to its remote counterpart.
type Link struct {
	Kind     Kind
	LocalID  string
	RemoteID string
	// BaselineHash is the canonical payload hash at the last successful push.
	BaselineHash   string
	RemoteRevision time.Time
	LastPushedAt   time.Time
}

// Validate checks that the link identifies both sides.
func (l *Link) Validate() error {
	if !l.Kind.Valid() {
		return errors.New("link", "valid kind is required")
	}
	if strings.TrimSpace(l.LocalID) == "" {
		return errors.New("link", "local ID is required")
	}
	if strings.TrimSpace(l.RemoteID) == "" {
		return errors.New("link", "remote ID is required")
	}
	return nil
}
