package enrich

import (
	"context"
	"errors"
	"sync"

	"go-librarian/internal/jobs"
	"go-librarian/internal/models"
)

// Service is the slice of the server API the coordinator needs.
type Service interface {
	Lookup(ctx context.Context, trackID int64) (models.TrackLookup, error)
	BatchLookup(ctx context.Context, trackIDs []int64) (models.BatchAccepted, error)
	BatchLookupProgress(ctx context.Context) (models.LookupStatus, error)
	Apply(ctx context.Context, trackID int64, req models.ApplyRequest) (models.ApplyResult, error)
	ClearLookupCache(ctx context.Context, olderThanDays *int) (models.CacheClearResult, error)
	LookupCacheStats(ctx context.Context) (models.CacheStats, error)
}

// ErrNothingToApply is returned by ApplySelected when the selection leaves no
// changed field to send.
var ErrNothingToApply = errors.New("no changed fields selected, nothing to apply")

// ErrBatchTracked is returned when a batch lookup is started while another is
// already being followed.
var ErrBatchTracked = errors.New("a batch lookup is already being tracked")

// Coordinator drives metadata enrichment: single lookups, the batch lookup
// job, applying reviewed suggestions, and the server-side lookup cache.
type Coordinator struct {
	svc    Service
	poller *jobs.Poller

	mu         sync.Mutex
	lastStatus models.LookupStatus
}

func NewCoordinator(svc Service) *Coordinator {
	c := &Coordinator{svc: svc}
	c.poller = jobs.NewPoller(jobs.KindLookup, c.fetchLookupStatus)
	return c
}

func (c *Coordinator) fetchLookupStatus(ctx context.Context) (models.JobProgress, error) {
	status, err := c.svc.BatchLookupProgress(ctx)
	if err != nil {
		return models.JobProgress{}, err
	}
	c.mu.Lock()
	c.lastStatus = status
	c.mu.Unlock()
	return status.JobProgress, nil
}

// LookupAndDiff runs a single-track lookup and diffs the result against the
// track's current metadata. found=false is a normal outcome: the diff then
// carries only current values and no changes.
func (c *Coordinator) LookupAndDiff(ctx context.Context, trackID int64) (models.TrackLookup, Diff, error) {
	lookup, err := c.svc.Lookup(ctx, trackID)
	if err != nil {
		return models.TrackLookup{}, Diff{}, err
	}
	var suggestion *models.MetadataSuggestion
	if lookup.Found {
		suggestion = lookup.Suggestion
	}
	return lookup, DiffSuggestion(lookup.Current, suggestion), nil
}

// ApplySelected sends the apply request for the given diff and selection.
// Refuses to fire when nothing is both changed and selected.
func (c *Coordinator) ApplySelected(ctx context.Context, d Diff, sel Selection) (models.ApplyResult, error) {
	req := BuildApplyPayload(d, sel)
	if !CanApply(req) {
		return models.ApplyResult{}, ErrNothingToApply
	}
	return c.svc.Apply(ctx, d.TrackID, req)
}

// RunBatch starts a server-side batch lookup over trackIDs (all tracks when
// empty) and follows it to completion, reporting each status to onStatus.
// Returns the final counters. A context cancel stops the client-side polling
// only; the server keeps working through the batch.
func (c *Coordinator) RunBatch(ctx context.Context, trackIDs []int64, onStatus func(models.LookupStatus)) (models.LookupStatus, error) {
	if _, err := c.svc.BatchLookup(ctx, trackIDs); err != nil {
		return models.LookupStatus{}, err
	}

	var wrapped func(models.JobProgress)
	if onStatus != nil {
		wrapped = func(models.JobProgress) { onStatus(c.LastStatus()) }
	}
	outcome, started := c.poller.Start(ctx, wrapped)
	if !started {
		return models.LookupStatus{}, ErrBatchTracked
	}
	oc := <-outcome
	final := c.LastStatus()
	if oc.Stopped {
		return final, ctx.Err()
	}
	if oc.Err != nil {
		return final, oc.Err
	}
	return final, nil
}

// StopTracking tears down batch-lookup polling without touching the remote
// job.
func (c *Coordinator) StopTracking() {
	c.poller.Stop()
}

// LastStatus returns the most recent batch-lookup status observed.
func (c *Coordinator) LastStatus() models.LookupStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStatus
}

// ClearCache clears the server-held lookup cache. nil olderThanDays clears
// everything.
func (c *Coordinator) ClearCache(ctx context.Context, olderThanDays *int) (models.CacheClearResult, error) {
	return c.svc.ClearLookupCache(ctx, olderThanDays)
}

// CacheStats reads the lookup cache statistics.
func (c *Coordinator) CacheStats(ctx context.Context) (models.CacheStats, error) {
	return c.svc.LookupCacheStats(ctx)
}
