package duplicates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go-librarian/internal/jobs"
	"go-librarian/internal/models"

	log "github.com/sirupsen/logrus"
)

// Service is the slice of the server API the store needs.
type Service interface {
	FetchDuplicates(ctx context.Context, refresh bool) (models.DuplicatesResponse, error)
	ScanProgress(ctx context.Context) (models.ScanStatus, error)
	DuplicateStats(ctx context.Context) (models.DuplicateStats, error)
	Merge(ctx context.Context, req models.MergeRequest) (models.MergeResult, error)
	BulkMerge(ctx context.Context, merges []models.MergeRequest) (models.BulkMergeResult, error)
	Ignore(ctx context.Context, groupID int64) error
}

var (
	// ErrUnknownGroup is returned for operations naming a group the store
	// does not hold.
	ErrUnknownGroup = errors.New("duplicate group not found in local view")

	// ErrScanTracked is returned when Load is called while another Load is
	// already waiting out a scan.
	ErrScanTracked = errors.New("a duplicate scan is already being tracked")

	// ErrBulkPartial is returned when the bulk endpoint reports per-group
	// failures. The local view is left untouched in that case.
	ErrBulkPartial = errors.New("bulk merge was not applied atomically")
)

// Store is the single source of truth for the duplicate groups currently
// shown and their aggregate stats. All local mutations (merge, ignore, bulk
// merge) go through it; nothing else edits the group list.
type Store struct {
	svc    Service
	poller *jobs.Poller

	mu       sync.Mutex
	groups   []models.DuplicateGroup
	stats    models.DuplicateStats
	lastScan models.ScanStatus
}

func NewStore(svc Service) *Store {
	s := &Store{svc: svc}
	s.poller = jobs.NewPoller(jobs.KindScan, s.fetchScanStatus)
	return s
}

// fetchScanStatus adapts ScanProgress to the poller's base-status contract,
// stashing the typed status for display.
func (s *Store) fetchScanStatus(ctx context.Context) (models.JobProgress, error) {
	status, err := s.svc.ScanProgress(ctx)
	if err != nil {
		return models.JobProgress{}, err
	}
	s.mu.Lock()
	s.lastScan = status
	s.mu.Unlock()
	return status.JobProgress, nil
}

// Load fetches the duplicate groups. If the server reports a scan in flight
// (or refresh starts one), Load polls until the scan is terminal and only
// populates the view from the subsequent authoritative fetch; a stale or
// empty list is never silently installed. onStatus receives every scan
// status observed while waiting, and may be nil.
func (s *Store) Load(ctx context.Context, refresh bool, onStatus func(models.ScanStatus)) error {
	resp, err := s.svc.FetchDuplicates(ctx, refresh)
	if err != nil {
		return err
	}

	if resp.Scanning {
		if resp.Progress != nil && onStatus != nil {
			onStatus(*resp.Progress)
		}
		var wrapped func(models.JobProgress)
		if onStatus != nil {
			wrapped = func(models.JobProgress) { onStatus(s.LastScanStatus()) }
		}
		outcome, started := s.poller.Start(ctx, wrapped)
		if !started {
			return ErrScanTracked
		}
		oc := <-outcome
		if oc.Stopped {
			return ctx.Err()
		}
		if oc.Err != nil {
			return oc.Err
		}
		// Terminal success carries no group list; refetch the real one.
		resp, err = s.svc.FetchDuplicates(ctx, false)
		if err != nil {
			return err
		}
		if resp.Scanning {
			return fmt.Errorf("server reports another scan after completion, not installing groups")
		}
	}

	s.setGroups(resp.Groups)
	s.refreshStats(ctx)
	return nil
}

// StopTracking tears down the scan poll loop, e.g. when the user interrupts.
// The remote scan keeps running.
func (s *Store) StopTracking() {
	s.poller.Stop()
}

// Scanning reports whether a scan is currently being followed.
func (s *Store) Scanning() bool {
	return s.poller.Running()
}

func (s *Store) setGroups(groups []models.DuplicateGroup) {
	sorted := make([]models.DuplicateGroup, len(groups))
	copy(sorted, groups)
	// Severity first, then stable by id for a reproducible listing.
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := models.DetectionRank(sorted[i].DetectionType), models.DetectionRank(sorted[j].DetectionType)
		if ri != rj {
			return ri < rj
		}
		return sorted[i].ID < sorted[j].ID
	})
	s.mu.Lock()
	s.groups = sorted
	s.mu.Unlock()
}

// refreshStats re-reads aggregate stats from the server. Savings depend on
// server-held totals, so they are never computed locally. Read failures are
// logged, not fatal: the group view stays usable with stale counters.
func (s *Store) refreshStats(ctx context.Context) {
	stats, err := s.svc.DuplicateStats(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to refresh duplicate stats, keeping previous values")
		return
	}
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

// Merge resolves one group, keeping keepTrackID. On success the group is
// removed from the local view without a full refetch and stats are refreshed
// from the server. On any failure the group stays and the error is returned
// for user-facing reporting; there is no automatic retry.
func (s *Store) Merge(ctx context.Context, groupID, keepTrackID int64, deleteFiles bool) (models.MergeResult, error) {
	group, ok := s.Group(groupID)
	if !ok {
		return models.MergeResult{}, fmt.Errorf("%w: %d", ErrUnknownGroup, groupID)
	}
	req, err := PlanGroup(group, keepTrackID, deleteFiles)
	if err != nil {
		return models.MergeResult{}, err
	}

	result, err := s.svc.Merge(ctx, req)
	if err != nil {
		return models.MergeResult{}, err
	}

	s.remove(groupID)
	s.refreshStats(ctx)
	return result, nil
}

// Ignore marks a group as not-a-duplicate. Same optimistic-removal contract
// as Merge, minus any file deletion semantics.
func (s *Store) Ignore(ctx context.Context, groupID int64) error {
	if _, ok := s.Group(groupID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGroup, groupID)
	}
	if err := s.svc.Ignore(ctx, groupID); err != nil {
		return err
	}
	s.remove(groupID)
	s.refreshStats(ctx)
	return nil
}

// BulkMerge submits the given plans in one request. On success the whole
// local group set is cleared. The client treats the endpoint as
// all-or-nothing: if the server reports per-group failures the local set is
// left untouched and ErrBulkPartial is returned, so the view can be reloaded
// instead of silently diverging.
func (s *Store) BulkMerge(ctx context.Context, plans []models.MergeRequest) (models.BulkMergeResult, error) {
	if len(plans) == 0 {
		return models.BulkMergeResult{}, nil
	}
	result, err := s.svc.BulkMerge(ctx, plans)
	if err != nil {
		return models.BulkMergeResult{}, err
	}
	if result.Errors > 0 {
		return result, fmt.Errorf("%w: %d of %d groups failed", ErrBulkPartial, result.Errors, len(plans))
	}
	s.mu.Lock()
	s.groups = nil
	s.mu.Unlock()
	s.refreshStats(ctx)
	return result, nil
}

func (s *Store) remove(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, g := range s.groups {
		if g.ID == groupID {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return
		}
	}
}

// Groups returns a copy of the current group list in display order.
func (s *Store) Groups() []models.DuplicateGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DuplicateGroup, len(s.groups))
	copy(out, s.groups)
	return out
}

// Group returns the group with the given id, if held.
func (s *Store) Group(groupID int64) (models.DuplicateGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.groups {
		if g.ID == groupID {
			return g, true
		}
	}
	return models.DuplicateGroup{}, false
}

// Filter returns the held groups whose detection type is in types. A pure
// read; the store itself is not narrowed.
func (s *Store) Filter(types ...string) []models.DuplicateGroup {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DuplicateGroup
	for _, g := range s.groups {
		if want[g.DetectionType] {
			out = append(out, g)
		}
	}
	return out
}

// TotalDuplicates sums the removable tracks across all held groups.
func (s *Store) TotalDuplicates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, g := range s.groups {
		total += g.Duplicates()
	}
	return total
}

func (s *Store) Stats() models.DuplicateStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) LastScanStatus() models.ScanStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}
