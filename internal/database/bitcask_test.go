package database

import (
	"errors"
	"path/filepath"
	"testing"

	"go-librarian/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestResolutionJournalRoundTrip(t *testing.T) {
	db := openTestDB(t)

	entry := models.ResolutionEntry{
		GroupID:       42,
		Action:        models.ActionMerged,
		DetectionType: models.DetectionExactHash,
		KeptTrackID:   100,
		DeletedTracks: 2,
		DeletedFiles:  []string{"/music/a.mp3", "/music/b.mp3"},
		Transfers:     models.TransferStats{PlayHistory: 7, Playlists: 1, Likes: 2},
		Timestamp:     1724300000,
	}
	if err := db.RecordResolution(entry); err != nil {
		t.Fatalf("RecordResolution() failed: %v", err)
	}

	got, err := db.GetResolution(42)
	if err != nil {
		t.Fatalf("GetResolution() failed: %v", err)
	}
	if got.Action != models.ActionMerged || got.KeptTrackID != 100 || got.Transfers.PlayHistory != 7 {
		t.Errorf("GetResolution() = %+v, want the recorded entry", got)
	}
	if len(got.DeletedFiles) != 2 {
		t.Errorf("GetResolution() lost deleted files: %+v", got.DeletedFiles)
	}

	if _, err := db.GetResolution(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetResolution(999) error = %v, want ErrNotFound", err)
	}
}

func TestListResolutionsNewestFirst(t *testing.T) {
	db := openTestDB(t)

	for i, ts := range []int64{100, 300, 200} {
		entry := models.ResolutionEntry{
			GroupID:   int64(i + 1),
			Action:    models.ActionIgnored,
			Timestamp: ts,
		}
		if err := db.RecordResolution(entry); err != nil {
			t.Fatalf("RecordResolution() failed: %v", err)
		}
	}
	// A non-journal key must not show up in the listing.
	if err := db.Put([]byte("unrelated"), []byte("value")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	entries, err := db.ListResolutions()
	if err != nil {
		t.Fatalf("ListResolutions() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListResolutions() returned %d entries, want 3", len(entries))
	}
	if entries[0].Timestamp != 300 || entries[1].Timestamp != 200 || entries[2].Timestamp != 100 {
		t.Errorf("ListResolutions() order = %d,%d,%d, want newest first",
			entries[0].Timestamp, entries[1].Timestamp, entries[2].Timestamp)
	}
}

func TestClearResolutions(t *testing.T) {
	db := openTestDB(t)

	for id := int64(1); id <= 3; id++ {
		if err := db.RecordResolution(models.ResolutionEntry{GroupID: id, Action: models.ActionMerged}); err != nil {
			t.Fatalf("RecordResolution() failed: %v", err)
		}
	}
	if err := db.Put([]byte("unrelated"), []byte("value")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	deleted, err := db.ClearResolutions()
	if err != nil {
		t.Fatalf("ClearResolutions() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("ClearResolutions() = %d, want 3", deleted)
	}

	entries, err := db.ListResolutions()
	if err != nil {
		t.Fatalf("ListResolutions() after clear failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("ListResolutions() after clear returned %d entries, want 0", len(entries))
	}
	// Unrelated keys survive a journal clear.
	if !db.Has([]byte("unrelated")) {
		t.Error("ClearResolutions() removed a non-journal key")
	}
}
