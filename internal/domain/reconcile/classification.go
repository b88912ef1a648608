// Package reconcile provides the domain types produced by classifying local
// and remote records and by pushing local changes.
package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// State is the synchronization state of one identifier.
type State string

const (
	// StateAhead means local has data the remote lacks.
	StateAhead State = "ahead"
	// StateBehind means the remote has data local lacks.
	StateBehind State = "behind"
	// StateModified means both sides changed; operator attention required.
	StateModified State = "modified"
	// StateUnchanged means both sides are field-for-field equal.
	StateUnchanged State = "unchanged"
)

// PlaceholderPrefix marks identifiers of remote records never linked to a
// local record.
const PlaceholderPrefix = "remote:"

// PlaceholderID returns the reporting identifier for an unlinked remote record.
func PlaceholderID(remoteID string) string {
	return PlaceholderPrefix + remoteID
}

// IsPlaceholder reports whether id was produced by PlaceholderID.
func IsPlaceholder(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// Entry is the classification detail of one identifier.
type Entry struct {
	ID         string             `json:"id"`
	LocalID    string             `json:"localId,omitempty"`
	RemoteID   string             `json:"remoteId,omitempty"`
	State      State              `json:"state"`
	Fields     []entity.FieldDiff `json:"fields,omitempty"`
	Annotation string             `json:"annotation,omitempty"`

	LocalModified  time.Time `json:"localModified,omitzero"`
	RemoteRevision time.Time `json:"remoteRevision,omitzero"`

	Local  entity.Record        `json:"-"`
	Remote *entity.RemoteRecord `json:"-"`
	Link   *entity.Link         `json:"-"`
}

// LatestChange returns the most recent of the local and remote markers.
func (e *Entry) LatestChange() time.Time {
	if e.RemoteRevision.After(e.LocalModified) {
		return e.RemoteRevision
	}
	return e.LocalModified
}

// Counts summarizes a classification.
type Counts struct {
	Ahead     int `json:"ahead"`
	Behind    int `json:"behind"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Total returns the number of classified identifiers.
func (c Counts) Total() int {
	return c.Ahead + c.Behind + c.Modified + c.Unchanged
}

// Classification partitions every identifier of one kind into four disjoint
// sets.
type Classification struct {
	Kind         entity.Kind `json:"kind"`
	Ahead        []string    `json:"ahead"`
	Behind       []string    `json:"behind"`
	Modified     []string    `json:"modified"`
	Unchanged    []string    `json:"unchanged"`
	ClassifiedAt time.Time   `json:"classifiedAt"`

	// Dangling holds links with no record on either side. They are not part
	// of the partition.
	Dangling []entity.Link `json:"-"`

	entries map[string]*Entry
}

// NewClassification creates an empty classification for kind.
func NewClassification(kind entity.Kind) *Classification {
	return &Classification{
		Kind:      kind,
		Ahead:     []string{},
		Behind:    []string{},
		Modified:  []string{},
		Unchanged: []string{},
		entries:   make(map[string]*Entry),
	}
}

// Add places an entry in the set matching its state. Adding the same id twice
// is an error.
func (c *Classification) Add(e *Entry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("entry without id")
	}
	if _, dup := c.entries[e.ID]; dup {
		return fmt.Errorf("identifier %q classified twice", e.ID)
	}
	switch e.State {
	case StateAhead:
		c.Ahead = append(c.Ahead, e.ID)
	case StateBehind:
		c.Behind = append(c.Behind, e.ID)
	case StateModified:
		c.Modified = append(c.Modified, e.ID)
	case StateUnchanged:
		c.Unchanged = append(c.Unchanged, e.ID)
	default:
		return fmt.Errorf("identifier %q has unknown state %q", e.ID, e.State)
	}
	c.entries[e.ID] = e
	return nil
}

// Finalize sorts every set and stamps the classification time.
func (c *Classification) Finalize(at time.Time) {
	sort.Strings(c.Ahead)
	sort.Strings(c.Behind)
	sort.Strings(c.Modified)
	sort.Strings(c.Unchanged)
	c.ClassifiedAt = at
}

// Entry returns the detail for id.
func (c *Classification) Entry(id string) (*Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Entries returns the entries of one state in set order.
func (c *Classification) Entries(state State) []*Entry {
	var ids []string
	switch state {
	case StateAhead:
		ids = c.Ahead
	case StateBehind:
		ids = c.Behind
	case StateModified:
		ids = c.Modified
	case StateUnchanged:
		ids = c.Unchanged
	}
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.entries[id])
	}
	return out
}

// Conflicts returns modified entries, most recently changed first.
func (c *Classification) Conflicts() []*Entry {
	out := c.Entries(StateModified)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LatestChange().After(out[j].LatestChange())
	})
	return out
}

// StateOf returns the state of id.
func (c *Classification) StateOf(id string) (State, bool) {
	e, ok := c.entries[id]
	if !ok {
		return "", false
	}
	return e.State, true
}

// Counts returns the size of each set.
func (c *Classification) Counts() Counts {
	return Counts{
		Ahead:     len(c.Ahead),
		Behind:    len(c.Behind),
		Modified:  len(c.Modified),
		Unchanged: len(c.Unchanged),
	}
}

// Validate checks the partition invariant: every known identifier appears in
// exactly one set and the sets hold nothing else.
func (c *Classification) Validate() error {
	seen := make(map[string]State, len(c.entries))
	sets := []struct {
		state State
		ids   []string
	}{
		{StateAhead, c.Ahead},
		{StateBehind, c.Behind},
		{StateModified, c.Modified},
		{StateUnchanged, c.Unchanged},
	}
	for _, set := range sets {
		for _, id := range set.ids {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("identifier %q in both %s and %s", id, prev, set.state)
			}
			seen[id] = set.state
			e, ok := c.entries[id]
			if !ok {
				return fmt.Errorf("identifier %q in %s has no entry", id, set.state)
			}
			if e.State != set.state {
				return fmt.Errorf("identifier %q in %s but entry says %s", id, set.state, e.State)
			}
		}
	}
	if len(seen) != len(c.entries) {
		return fmt.Errorf("%d entries but %d classified identifiers", len(c.entries), len(seen))
	}
	return nil
}
