package duplicates

import (
	"errors"
	"fmt"

	"go-librarian/internal/models"
)

// ErrNotInGroup is returned when a merge plan names a keep-track that is not
// a member of the group. Caught client-side so an invalid request never
// reaches the server.
var ErrNotInGroup = errors.New("keep track is not a member of the group")

// ErrEmptyGroup is returned when asked to plan a merge for a group with no
// members. The server never sends one, but a stale local view might.
var ErrEmptyGroup = errors.New("duplicate group has no tracks")

// DefaultSelection returns the track the UI should pre-select for a group:
// the server's advisory is_master pick when present, otherwise the first
// track in the group's existing order.
func DefaultSelection(g models.DuplicateGroup) (models.DuplicateTrack, error) {
	if len(g.Tracks) == 0 {
		return models.DuplicateTrack{}, ErrEmptyGroup
	}
	for _, t := range g.Tracks {
		if t.IsMaster {
			return t, nil
		}
	}
	return g.Tracks[0], nil
}

// BestTrack returns the member with the highest quality score. Ties resolve
// to the earliest occurrence in the group's existing order, so the result is
// deterministic across runs.
func BestTrack(g models.DuplicateGroup) (models.DuplicateTrack, error) {
	if len(g.Tracks) == 0 {
		return models.DuplicateTrack{}, ErrEmptyGroup
	}
	best := g.Tracks[0]
	for _, t := range g.Tracks[1:] {
		if t.QualityScore > best.QualityScore {
			best = t
		}
	}
	return best, nil
}

// PlanGroup builds the merge request for one group with a user-chosen keep
// track, validating membership first.
func PlanGroup(g models.DuplicateGroup, keepTrackID int64, deleteFiles bool) (models.MergeRequest, error) {
	if len(g.Tracks) == 0 {
		return models.MergeRequest{}, ErrEmptyGroup
	}
	if _, ok := g.Track(keepTrackID); !ok {
		return models.MergeRequest{}, fmt.Errorf("%w: track %d, group %d", ErrNotInGroup, keepTrackID, g.ID)
	}
	return models.MergeRequest{
		GroupID:     g.ID,
		KeepTrackID: keepTrackID,
		DeleteFiles: deleteFiles,
	}, nil
}

// PlanAll builds one merge request per group, auto-selecting the best track
// of each. The deleteFiles flag applies uniformly to the whole batch. Groups
// with no tracks are skipped.
func PlanAll(groups []models.DuplicateGroup, deleteFiles bool) []models.MergeRequest {
	plans := make([]models.MergeRequest, 0, len(groups))
	for _, g := range groups {
		best, err := BestTrack(g)
		if err != nil {
			continue
		}
		plans = append(plans, models.MergeRequest{
			GroupID:     g.ID,
			KeepTrackID: best.ID,
			DeleteFiles: deleteFiles,
		})
	}
	return plans
}
