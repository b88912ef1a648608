package api

import (
	"time"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
)

type statusResponse struct {
	LastChecked time.Time                      `json:"lastChecked"`
	Kinds       map[entity.Kind]kindStatusView `json:"kinds"`
}

type kindStatusView struct {
	Counts    *reconcile.Counts `json:"counts,omitempty"`
	Ahead     []string          `json:"ahead,omitempty"`
	Behind    []string          `json:"behind,omitempty"`
	Modified  []string          `json:"modified,omitempty"`
	Unchanged []string          `json:"unchanged,omitempty"`
	Conflicts []conflictView    `json:"conflicts,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode errors.ErrorCode  `json:"errorCode,omitempty"`
}

type conflictView struct {
	ID         string `json:"id"`
	Annotation string `json:"annotation,omitempty"`
}

func newStatusResponse(report *reconcile.StatusReport) statusResponse {
	resp := statusResponse{
		LastChecked: report.LastChecked,
		Kinds:       make(map[entity.Kind]kindStatusView, len(report.Kinds)),
	}
	for kind, ks := range report.Kinds {
		if ks.Classification == nil {
			resp.Kinds[kind] = kindStatusView{Error: ks.Error, ErrorCode: ks.ErrorCode}
			continue
		}
		c := ks.Classification
		counts := c.Counts()
		view := kindStatusView{
			Counts:    &counts,
			Ahead:     c.Ahead,
			Behind:    c.Behind,
			Modified:  c.Modified,
			Unchanged: c.Unchanged,
		}
		for _, e := range c.Conflicts() {
			view.Conflicts = append(view.Conflicts, conflictView{ID: e.ID, Annotation: e.Annotation})
		}
		resp.Kinds[kind] = view
	}
	return resp
}
