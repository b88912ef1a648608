package engine

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jbctechsolutions/invsync/internal/application/checkpoint"
	"github.com/jbctechsolutions/invsync/internal/application/ports"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	"github.com/jbctechsolutions/invsync/internal/domain/errors"
	"github.com/jbctechsolutions/invsync/internal/domain/reconcile"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/logging"
	"github.com/jbctechsolutions/invsync/internal/infrastructure/tracing"
)

// Default tuning values.
const (
	DefaultRetention       = 10
	DefaultPushConcurrency = 4
	DefaultPushTimeout     = 15 * time.Second
)

// ServiceConfig holds the dependencies and tuning of a Service.
type ServiceConfig struct {
	Registry    ports.KindRegistryPort
	Links       ports.LinkStoragePort
	Checkpoints *checkpoint.Manager
	History     ports.SyncRunStoragePort // optional
	Logger      *logging.Logger
	Tracer      *tracing.Tracer

	Retention       int
	PushConcurrency int
	PushTimeout     time.Duration

	Now func() time.Time
}

// Service answers status queries and runs push-only syncs.
type Service struct {
	registry    ports.KindRegistryPort
	links       ports.LinkStoragePort
	checkpoints *checkpoint.Manager
	history     ports.SyncRunStoragePort
	differ      *Differ
	logger      *logging.Logger
	tracer      *tracing.Tracer

	retention   int
	concurrency int
	pushTimeout time.Duration
	now         func() time.Time
}

// NewService creates a new Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Links == nil {
		return nil, fmt.Errorf("link storage is required")
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("checkpoint manager is required")
	}
	if cfg.Retention < 0 || cfg.PushConcurrency < 0 {
		return nil, errors.NewError(errors.CodeConfiguration, "retention and push concurrency must not be negative", nil)
	}

	s := &Service{
		registry:    cfg.Registry,
		links:       cfg.Links,
		checkpoints: cfg.Checkpoints,
		history:     cfg.History,
		differ:      NewDiffer(cfg.Registry, cfg.Links),
		logger:      cfg.Logger,
		tracer:      cfg.Tracer,
		retention:   cfg.Retention,
		concurrency: cfg.PushConcurrency,
		pushTimeout: cfg.PushTimeout,
		now:         cfg.Now,
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.tracer == nil {
		s.tracer = tracing.Default()
	}
	if s.retention == 0 {
		s.retention = DefaultRetention
	}
	if s.concurrency == 0 {
		s.concurrency = DefaultPushConcurrency
	}
	if s.pushTimeout <= 0 {
		s.pushTimeout = DefaultPushTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.differ.now = s.now
	return s, nil
}

// Kinds returns every registered kind.
func (s *Service) Kinds() []entity.Kind {
	return s.registry.Kinds()
}

// Classify classifies a single kind.
func (s *Service) Classify(ctx context.Context, kind entity.Kind) (*reconcile.Classification, error) {
	return s.differ.Classify(ctx, kind)
}

func (s *Service) resolve(kinds []entity.Kind) ([]entity.Kind, error) {
	resolved, err := s.registry.Resolve(kinds)
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, "invalid entity kinds", err)
	}
	return resolved, nil
}

// Status classifies each requested kind concurrently. An empty request means
// every registered kind. A failing kind is reported in its slot and does not
// affect the others.
func (s *Service) Status(ctx context.Context, kinds []entity.Kind) (*reconcile.StatusReport, error) {
	resolved, err := s.resolve(kinds)
	if err != nil {
		return nil, err
	}

	report := &reconcile.StatusReport{
		Kinds: make(map[entity.Kind]*reconcile.KindStatus, len(resolved)),
	}

	var (
		mu gosync.Mutex
		wg gosync.WaitGroup
	)
	for _, kind := range resolved {
		wg.Add(1)
		go func(kind entity.Kind) {
			defer wg.Done()
			status := s.statusKind(ctx, kind)
			mu.Lock()
			report.Kinds[kind] = status
			mu.Unlock()
		}(kind)
	}
	wg.Wait()

	report.LastChecked = s.now().UTC()
	return report, nil
}

func (s *Service) statusKind(ctx context.Context, kind entity.Kind) *reconcile.KindStatus {
	ctx = logging.WithKind(ctx, string(kind))
	ctx, span := s.tracer.StartKindSpan(ctx, "status", string(kind))

	c, err := s.differ.Classify(ctx, kind)
	if err != nil {
		logging.LogKindFailed(ctx, s.logger, err)
		span.EndWithError(err)
		return &reconcile.KindStatus{Error: err.Error(), ErrorCode: errors.CodeOf(err)}
	}

	counts := c.Counts()
	span.SetCounts(counts.Ahead, counts.Behind, counts.Modified, counts.Unchanged)
	logging.LogKindClassified(ctx, s.logger, counts.Ahead, counts.Behind, counts.Modified, counts.Unchanged)
	span.End()
	return &reconcile.KindStatus{Classification: c}
}

// Sync pushes local changes of the requested kinds to the remote.
//
// The run holds the run lock for its whole duration and takes a checkpoint
// before any remote call; if the checkpoint cannot be written nothing is
// pushed. Kinds then run concurrently and independently. Modified records
// are reported as conflicts and never pushed. Old checkpoints are pruned at
// the end; a pruning failure is reported but does not fail the run.
func (s *Service) Sync(ctx context.Context, kinds []entity.Kind) (*reconcile.SyncReport, error) {
	resolved, err := s.resolve(kinds)
	if err != nil {
		return nil, err
	}

	release, err := s.checkpoints.Lock().TryAcquire("sync")
	if err != nil {
		logging.LogSyncRejected(ctx, s.logger, err)
		return nil, err
	}
	defer release()

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}

	names := kindNames(resolved)
	ctx = logging.WithRunID(ctx, runID.String())
	ctx, span := s.tracer.StartSyncSpan(ctx, runID.String(), names)

	report := &reconcile.SyncReport{
		RunID:     runID.String(),
		StartedAt: s.now().UTC(),
		Results:   make(map[entity.Kind]*reconcile.SyncResult, len(resolved)),
	}
	logging.LogSyncStart(ctx, s.logger, names)

	cp, err := s.checkpoints.Create(ctx, checkpoint.ReasonSync)
	if err != nil {
		span.EndWithError(err)
		return nil, err
	}
	report.CheckpointID = cp.ID()
	span.SetCheckpoint(cp.ID())
	ctx = logging.WithCheckpointID(ctx, cp.ID())

	var (
		mu gosync.Mutex
		wg gosync.WaitGroup
	)
	for _, kind := range resolved {
		wg.Add(1)
		go func(kind entity.Kind) {
			defer wg.Done()
			result := s.syncKind(ctx, kind)
			mu.Lock()
			report.Results[kind] = result
			mu.Unlock()
		}(kind)
	}
	wg.Wait()

	removed, err := s.checkpoints.Cleanup(ctx, s.retention)
	if err != nil {
		report.CleanupError = err.Error()
		s.logger.WarnContext(ctx, "checkpoint cleanup failed", "error", err.Error())
	}
	report.Removed = removed
	report.CompletedAt = s.now().UTC()

	if s.history != nil {
		if err := s.history.Save(ctx, report); err != nil {
			s.logger.WarnContext(ctx, "failed to record sync run", "error", err.Error())
		}
	}

	summary := report.Summarize()
	span.SetOutcome(summary.Pushed, summary.Failed, summary.Conflicts)
	span.End()
	logging.LogSyncComplete(ctx, s.logger, summary.Pushed, summary.Failed, summary.Conflicts, report.Duration())
	return report, nil
}

func (s *Service) syncKind(ctx context.Context, kind entity.Kind) *reconcile.SyncResult {
	result := reconcile.NewSyncResult(kind)
	ctx = logging.WithKind(ctx, string(kind))
	ctx, span := s.tracer.StartKindSpan(ctx, "sync", string(kind))

	c, err := s.differ.Classify(ctx, kind)
	if err != nil {
		result.SetError(err)
		logging.LogKindFailed(ctx, s.logger, err)
		span.EndWithError(err)
		return result
	}
	counts := c.Counts()
	span.SetCounts(counts.Ahead, counts.Behind, counts.Modified, counts.Unchanged)
	logging.LogKindClassified(ctx, s.logger, counts.Ahead, counts.Behind, counts.Modified, counts.Unchanged)

	for _, link := range c.Dangling {
		if err := s.links.Delete(ctx, link.Kind, link.LocalID); err != nil {
			s.logger.WarnContext(ctx, "failed to prune link", "id", link.LocalID, "error", err.Error())
			tracing.RecordError(ctx, err)
			continue
		}
		tracing.AddEvent(ctx, "link.pruned", attribute.String("entity.id", link.LocalID))
		result.Pruned = append(result.Pruned, link.LocalID)
	}

	s.rebaseline(ctx, kind, c.Entries(reconcile.StateUnchanged), result)

	for _, e := range c.Conflicts() {
		result.Conflicts = append(result.Conflicts, reconcile.Conflict{
			ID:             e.ID,
			RemoteID:       e.RemoteID,
			Fields:         e.Fields,
			Annotation:     e.Annotation,
			LocalModified:  e.LocalModified,
			RemoteRevision: e.RemoteRevision,
		})
		logging.LogConflict(ctx, s.logger, e.ID, len(e.Fields))
	}

	s.pushAll(ctx, kind, c.Entries(reconcile.StateAhead), result)

	result.Counts = reconcile.Counts{
		Ahead:     counts.Ahead - len(result.Pushed),
		Behind:    counts.Behind,
		Modified:  counts.Modified,
		Unchanged: counts.Unchanged + len(result.Pushed),
	}

	span.SetOutcome(len(result.Pushed), len(result.Failed), len(result.Conflicts))
	span.End()
	return result
}

// rebaseline records the current content as the baseline of every unchanged
// pair whose link is missing or stale. A pair adopted through an echoed local
// ID gets its link here, and a pair that converged through the same edit on
// both sides moves its baseline forward. Failures are logged; the pair keeps
// its old link and is retried next run.
func (s *Service) rebaseline(ctx context.Context, kind entity.Kind, entries []*reconcile.Entry, result *reconcile.SyncResult) {
	for _, e := range entries {
		if e.Local == nil || e.Remote == nil {
			continue
		}
		hash, err := e.Local.Payload().Hash()
		if err != nil {
			s.logger.WarnContext(ctx, "failed to hash payload", "id", e.ID, "error", err.Error())
			continue
		}
		if e.Link != nil && e.Link.BaselineHash == hash && e.Link.RemoteID == e.Remote.RemoteID {
			continue
		}

		link := entity.Link{
			Kind:           kind,
			LocalID:        e.LocalID,
			RemoteID:       e.Remote.RemoteID,
			BaselineHash:   hash,
			RemoteRevision: e.Remote.Revision,
			LastPushedAt:   s.now().UTC(),
		}
		if e.Link != nil && !e.Link.LastPushedAt.IsZero() {
			link.LastPushedAt = e.Link.LastPushedAt
		}
		if err := s.links.Upsert(ctx, link); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh link", "id", e.ID, "error", err.Error())
			tracing.RecordError(ctx, err)
			continue
		}
		tracing.AddEvent(ctx, "link.rebaselined",
			attribute.String("entity.id", e.ID),
			attribute.String("remote.id", link.RemoteID),
		)
		result.Relinked = append(result.Relinked, e.ID)
	}
	sort.Strings(result.Relinked)
}

// pushAll pushes entries through a pool of at most s.concurrency workers.
func (s *Service) pushAll(ctx context.Context, kind entity.Kind, entries []*reconcile.Entry, result *reconcile.SyncResult) {
	binding, err := s.registry.GetRequired(kind)
	if err != nil {
		result.SetError(err)
		return
	}

	var (
		mu  gosync.Mutex
		wg  gosync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
	)

	record := func(id string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Pushed = append(result.Pushed, id)
			return
		}
		code := errors.CodeOf(err)
		if code == "" {
			code = errors.CodeRecordPushFailed
		}
		result.Failed = append(result.Failed, reconcile.PushFailure{ID: id, Code: code, Reason: err.Error()})
	}

	for _, e := range entries {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			record(e.ID, ctx.Err())
			continue
		}

		wg.Add(1)
		go func(e *reconcile.Entry) {
			defer wg.Done()
			defer func() { <-sem }()

			err := s.push(ctx, binding.Remote, kind, e)
			if err != nil {
				logging.LogPushFailed(ctx, s.logger, e.ID, err)
			}
			record(e.ID, err)
		}(e)
	}
	wg.Wait()

	sort.Strings(result.Pushed)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].ID < result.Failed[j].ID })
}

// push writes one ahead record and records the new baseline. A linked
// record whose remote copy still exists is updated; anything else is
// created.
func (s *Service) push(ctx context.Context, remote ports.RemoteClientPort, kind entity.Kind, e *reconcile.Entry) error {
	payload := e.Local.Payload()
	hash, err := payload.Hash()
	if err != nil {
		return errors.NewError(errors.CodeRecordPushFailed, "failed to hash payload", err)
	}

	op := "create"
	if e.Remote != nil {
		op = "update"
	}

	ctx, span := s.tracer.StartPushSpan(ctx, string(kind), e.ID, op)
	callCtx, cancel := context.WithTimeout(ctx, s.pushTimeout)
	defer cancel()

	remoteID := e.RemoteID
	if e.Remote != nil {
		remoteID = e.Remote.RemoteID
		err = remote.Update(callCtx, remoteID, payload)
	} else {
		remoteID, err = remote.Create(callCtx, e.LocalID, payload)
	}
	if err != nil {
		if errors.CodeOf(err) == "" {
			err = errors.NewError(errors.CodeRecordPushFailed, fmt.Sprintf("failed to %s %s", op, e.ID), err)
		}
		span.EndWithError(err)
		return err
	}

	link := entity.Link{
		Kind:         kind,
		LocalID:      e.LocalID,
		RemoteID:     remoteID,
		BaselineHash: hash,
		LastPushedAt: s.now().UTC(),
	}
	if e.Remote != nil {
		link.RemoteRevision = e.Remote.Revision
	}
	if err := s.links.Upsert(ctx, link); err != nil {
		err = errors.WithContext(
			errors.NewError(errors.CodeStorage, "pushed but failed to save link", err),
			"remote_id", remoteID,
		)
		span.EndWithError(err)
		return err
	}

	span.End()
	return nil
}

// History returns the most recent sync runs.
func (s *Service) History(ctx context.Context, limit int) ([]reconcile.RunSummary, error) {
	if s.history == nil {
		return []reconcile.RunSummary{}, nil
	}
	return s.history.List(ctx, limit)
}

func kindNames(kinds []entity.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}
