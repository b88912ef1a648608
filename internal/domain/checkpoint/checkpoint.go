// Package checkpoint provides the checkpoint entity: a point-in-time snapshot
// of every local collection and of the link table.
package checkpoint

import (
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// Collection is the raw content of one local collection at snapshot time.
// Present is false when the collection did not exist yet.
type Collection struct {
	Kind    entity.Kind
	Data    []byte
	Present bool
}

// Checkpoint is an immutable snapshot of local state taken before a sync run.
type Checkpoint struct {
	id          string
	createdAt   time.Time
	machineID   string
	reason      string
	collections map[entity.Kind]Collection
	links       []entity.Link
}

// NewCheckpoint creates a new, empty Checkpoint.
// Returns an error if id is blank or createdAt is zero.
func NewCheckpoint(id string, createdAt time.Time) (*Checkpoint, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("checkpoint", "checkpoint ID is required")
	}
	if createdAt.IsZero() {
		return nil, errors.New("checkpoint", "creation time is required")
	}

	return &Checkpoint{
		id:          id,
		createdAt:   createdAt.UTC(),
		collections: make(map[entity.Kind]Collection),
	}, nil
}

// ID returns the checkpoint's unique identifier.
func (c *Checkpoint) ID() string {
	return c.id
}

// CreatedAt returns when the checkpoint was taken.
func (c *Checkpoint) CreatedAt() time.Time {
	return c.createdAt
}

// MachineID returns the machine the checkpoint was taken on.
func (c *Checkpoint) MachineID() string {
	return c.machineID
}

// Reason returns why the checkpoint was taken (e.g. "sync", "manual").
func (c *Checkpoint) Reason() string {
	return c.reason
}

// SetMachineID sets the machine ID.
func (c *Checkpoint) SetMachineID(machineID string) {
	c.machineID = strings.TrimSpace(machineID)
}

// SetReason sets the reason.
func (c *Checkpoint) SetReason(reason string) {
	c.reason = strings.TrimSpace(reason)
}

// AddCollection records the raw content of a collection. The data is copied.
func (c *Checkpoint) AddCollection(kind entity.Kind, data []byte, present bool) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.collections[kind] = Collection{Kind: kind, Data: buf, Present: present}
}

// Collection returns the snapshot of one collection.
func (c *Checkpoint) Collection(kind entity.Kind) (Collection, bool) {
	col, ok := c.collections[kind]
	return col, ok
}

// Collections returns every collection snapshot ordered by kind.
func (c *Checkpoint) Collections() []Collection {
	cols := make([]Collection, 0, len(c.collections))
	for _, col := range c.collections {
		cols = append(cols, col)
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Kind < cols[j].Kind })
	return cols
}

// Kinds returns the kinds captured in the checkpoint, ordered.
func (c *Checkpoint) Kinds() []entity.Kind {
	cols := c.Collections()
	kinds := make([]entity.Kind, len(cols))
	for i, col := range cols {
		kinds[i] = col.Kind
	}
	return kinds
}

// SetLinks replaces the link snapshot.
func (c *Checkpoint) SetLinks(links []entity.Link) {
	c.links = make([]entity.Link, len(links))
	copy(c.links, links)
}

// Links returns a copy of the link snapshot.
func (c *Checkpoint) Links() []entity.Link {
	links := make([]entity.Link, len(c.links))
	copy(links, c.links)
	return links
}

// Size returns the total number of collection bytes held.
func (c *Checkpoint) Size() int {
	n := 0
	for _, col := range c.collections {
		n += len(col.Data)
	}
	return n
}

// Validate checks if the Checkpoint is in a valid state.
func (c *Checkpoint) Validate() error {
	if strings.TrimSpace(c.id) == "" {
		return errors.New("checkpoint", "checkpoint ID is required")
	}
	if c.createdAt.IsZero() {
		return errors.New("checkpoint", "creation time is required")
	}
	for _, l := range c.links {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Summary describes a stored checkpoint without its content.
type Summary struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	MachineID string        `json:"machineId,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Kinds     []entity.Kind `json:"kinds"`
	LinkCount int           `json:"linkCount"`
	SizeBytes int           `json:"sizeBytes"`
}

// Summarize builds the Summary of c.
func (c *Checkpoint) Summarize() Summary {
	return Summary{
		ID:        c.id,
		CreatedAt: c.createdAt,
		MachineID: c.machineID,
		Reason:    c.reason,
		Kinds:     c.Kinds(),
		LinkCount: len(c.links),
		SizeBytes: c.Size(),
	}
}
