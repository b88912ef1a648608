package reconcile

import (
	"sort"
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// PushFailure records one identifier that could not be pushed.
type PushFailure struct {
	ID     string           `json:"id"`
	Code   errors.ErrorCode `json:"code"`
	Reason string           `json:"reason"`
}

// Conflict records a modified identifier that was deliberately not pushed.
type Conflict struct {
	ID             string             `json:"id"`
	RemoteID       string             `json:"remoteId,omitempty"`
	Fields         []entity.FieldDiff `json:"fields,omitempty"`
	Annotation     string             `json:"annotation,omitempty"`
	LocalModified  time.Time          `json:"localModified,omitzero"`
	RemoteRevision time.Time          `json:"remoteRevision,omitzero"`
}

// SyncResult is the outcome of syncing one kind.
type SyncResult struct {
	Kind      entity.Kind      `json:"kind"`
	Pushed    []string         `json:"pushed"`
	Failed    []PushFailure    `json:"failed"`
	Conflicts []Conflict       `json:"conflicts"`
	Pruned    []string         `json:"pruned,omitempty"`
	Relinked  []string         `json:"relinked,omitempty"`
	Counts    Counts           `json:"counts"`
	Error     string           `json:"error,omitempty"`
	ErrorCode errors.ErrorCode `json:"errorCode,omitempty"`
}

// NewSyncResult creates an empty result for kind.
func NewSyncResult(kind entity.Kind) *SyncResult {
	return &SyncResult{
		Kind:      kind,
		Pushed:    []string{},
		Failed:    []PushFailure{},
		Conflicts: []Conflict{},
	}
}

// SetError records a kind-level failure.
func (r *SyncResult) SetError(err error) {
	if err == nil {
		return
	}
	r.Error = err.Error()
	r.ErrorCode = errors.CodeOf(err)
}

// OK reports whether the kind completed without any failure. Conflicts are
// not failures.
func (r *SyncResult) OK() bool {
	return r.Error == "" && len(r.Failed) == 0
}

// SyncReport is the outcome of one sync run.
type SyncReport struct {
	RunID        string                      `json:"runId"`
	CheckpointID string                      `json:"checkpointId"`
	StartedAt    time.Time                   `json:"startedAt"`
	CompletedAt  time.Time                   `json:"completedAt"`
	Results      map[entity.Kind]*SyncResult `json:"results"`
	Removed      []string                    `json:"removedCheckpoints,omitempty"`
	CleanupError string                      `json:"cleanupError,omitempty"`
}

// Duration returns how long the run took.
func (r *SyncReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// TotalPushed returns the number of records pushed across kinds.
func (r *SyncReport) TotalPushed() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Pushed)
	}
	return n
}

// KindStatus is the status of one kind in a status query.
type KindStatus struct {
	Classification *Classification  `json:"classification,omitempty"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      errors.ErrorCode `json:"errorCode,omitempty"`
}

// StatusReport is the outcome of a status query.
type StatusReport struct {
	LastChecked time.Time                   `json:"lastChecked"`
	Kinds       map[entity.Kind]*KindStatus `json:"kinds"`
}

// RunSummary is the persisted history line of one sync run.
type RunSummary struct {
	ID           string        `json:"id"`
	CheckpointID string        `json:"checkpointId"`
	StartedAt    time.Time     `json:"startedAt"`
	CompletedAt  time.Time     `json:"completedAt"`
	Kinds        []entity.Kind `json:"kinds"`
	Pushed       int           `json:"pushed"`
	Failed       int           `json:"failed"`
	Conflicts    int           `json:"conflicts"`
	KindErrors   int           `json:"kindErrors"`
	MachineID    string        `json:"machineId,omitempty"`
}

// Summarize condenses the report into a history line.
func (r *SyncReport) Summarize() RunSummary {
	s := RunSummary{
		ID:           r.RunID,
		CheckpointID: r.CheckpointID,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		Kinds:        make([]entity.Kind, 0, len(r.Results)),
	}
	for kind, res := range r.Results {
		s.Kinds = append(s.Kinds, kind)
		s.Pushed += len(res.Pushed)
		s.Failed += len(res.Failed)
		s.Conflicts += len(res.Conflicts)
		if res.Error != "" {
			s.KindErrors++
		}
	}
	sort.Slice(s.Kinds, func(i, j int) bool { return s.Kinds[i] < s.Kinds[j] })
	return s
}
