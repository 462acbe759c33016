package duplicates

import (
	"errors"
	"testing"

	"go-librarian/internal/models"
)

func group(id int64, tracks ...models.DuplicateTrack) models.DuplicateGroup {
	return models.DuplicateGroup{ID: id, DetectionType: models.DetectionExactHash, Tracks: tracks}
}

func track(id int64, score float64, master bool) models.DuplicateTrack {
	return models.DuplicateTrack{ID: id, QualityScore: score, IsMaster: master}
}

func TestDefaultSelection(t *testing.T) {
	tests := []struct {
		name    string
		group   models.DuplicateGroup
		want    int64
		wantErr error
	}{
		{
			name:  "Master present",
			group: group(1, track(10, 40, false), track(11, 90, true)),
			want:  11,
		},
		{
			name:  "No master falls back to first",
			group: group(1, track(10, 40, false), track(11, 90, false)),
			want:  10,
		},
		{
			name:    "Empty group",
			group:   group(1),
			wantErr: ErrEmptyGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultSelection(tt.group)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DefaultSelection() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got.ID != tt.want {
				t.Errorf("DefaultSelection() = track %d, want %d", got.ID, tt.want)
			}
		})
	}
}

func TestBestTrack(t *testing.T) {
	tests := []struct {
		name    string
		group   models.DuplicateGroup
		want    int64
		wantErr error
	}{
		{
			name:  "Highest score wins",
			group: group(1, track(10, 40, false), track(11, 90, false)),
			want:  11,
		},
		{
			name:  "Tie resolves to first occurrence",
			group: group(1, track(10, 75, false), track(11, 75, false), track(12, 75, false)),
			want:  10,
		},
		{
			name:  "Master does not override score",
			group: group(1, track(10, 40, true), track(11, 90, false)),
			want:  11,
		},
		{
			name:  "Single track",
			group: group(1, track(10, 0, false)),
			want:  10,
		},
		{
			name:    "Empty group",
			group:   group(1),
			wantErr: ErrEmptyGroup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestTrack(tt.group)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BestTrack() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got.ID != tt.want {
				t.Errorf("BestTrack() = track %d, want %d", got.ID, tt.want)
			}
		})
	}
}

func TestPlanGroup(t *testing.T) {
	g := group(5, track(10, 40, false), track(11, 90, true))

	plan, err := PlanGroup(g, 10, true)
	if err != nil {
		t.Fatalf("PlanGroup() unexpected error: %v", err)
	}
	if plan.GroupID != 5 || plan.KeepTrackID != 10 || !plan.DeleteFiles {
		t.Errorf("PlanGroup() = %+v, want group 5 keep 10 deleteFiles true", plan)
	}

	// A keep track outside the group must be rejected before any request is built.
	if _, err := PlanGroup(g, 99, false); !errors.Is(err, ErrNotInGroup) {
		t.Errorf("PlanGroup() with foreign track: error = %v, want ErrNotInGroup", err)
	}

	if _, err := PlanGroup(group(5), 10, false); !errors.Is(err, ErrEmptyGroup) {
		t.Errorf("PlanGroup() with empty group: error = %v, want ErrEmptyGroup", err)
	}
}

func TestPlanAll(t *testing.T) {
	groups := []models.DuplicateGroup{
		group(1, track(10, 40, true), track(11, 90, false)),
		group(2, track(20, 55, false)),
		group(3), // skipped
		group(4, track(40, 10, false), track(41, 10, false)),
	}

	plans := PlanAll(groups, true)
	if len(plans) != 3 {
		t.Fatalf("PlanAll() produced %d plans, want 3", len(plans))
	}

	want := map[int64]int64{1: 11, 2: 20, 4: 40}
	for _, p := range plans {
		if !p.DeleteFiles {
			t.Errorf("PlanAll() plan for group %d lost deleteFiles", p.GroupID)
		}
		if want[p.GroupID] != p.KeepTrackID {
			t.Errorf("PlanAll() group %d keeps track %d, want %d", p.GroupID, p.KeepTrackID, want[p.GroupID])
		}
	}
}
