package enrich

import (
	"testing"

	"go-librarian/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestDiffSuggestion(t *testing.T) {
	current := models.TrackMetadata{
		ID:     7,
		Artist: "The Beatles",
		Title:  "Let It Be (Remastered)",
		Album:  "Let It Be",
		Year:   0,
		Genre:  "Rock",
	}

	t.Run("Mixed changes and nils", func(t *testing.T) {
		suggestion := &models.MetadataSuggestion{
			Artist: strPtr("The Beatles"),      // same, not changed
			Title:  nil,                        // no data, must not blank the tag
			Album:  strPtr("Let It Be (2009)"), // changed
			Year:   intPtr(1970),               // changed (current empty)
			Genre:  nil,
		}

		d := DiffSuggestion(current, suggestion)
		if d.TrackID != 7 {
			t.Errorf("Diff.TrackID = %d, want 7", d.TrackID)
		}

		wantChanged := map[string]bool{
			FieldArtist: false,
			FieldTitle:  false,
			FieldAlbum:  true,
			FieldYear:   true,
			FieldGenre:  false,
		}
		for _, f := range d.Fields {
			if f.Changed != wantChanged[f.Field] {
				t.Errorf("field %s: Changed = %v, want %v", f.Field, f.Changed, wantChanged[f.Field])
			}
		}

		title, _ := d.Field(FieldTitle)
		if title.Suggested != "" {
			t.Errorf("nil title suggestion leaked a value: %q", title.Suggested)
		}
		year, _ := d.Field(FieldYear)
		if year.Current != "" || year.Suggested != "1970" {
			t.Errorf("year diff = %+v, want empty current and suggested 1970", year)
		}
	})

	t.Run("Nil suggestion yields no changes", func(t *testing.T) {
		d := DiffSuggestion(current, nil)
		if d.HasChanges() {
			t.Errorf("Diff with nil suggestion reports changes: %+v", d.Changed())
		}
		if len(d.Fields) != len(Fields) {
			t.Errorf("Diff has %d fields, want %d", len(d.Fields), len(Fields))
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		suggestion := &models.MetadataSuggestion{Album: strPtr("Abbey Road")}
		first := DiffSuggestion(current, suggestion)
		second := DiffSuggestion(current, suggestion)
		if len(first.Fields) != len(second.Fields) {
			t.Fatal("repeated diffs disagree on field count")
		}
		for i := range first.Fields {
			if first.Fields[i] != second.Fields[i] {
				t.Errorf("field %d differs across runs: %+v vs %+v", i, first.Fields[i], second.Fields[i])
			}
		}
	})
}

func TestBuildApplyPayload(t *testing.T) {
	current := models.TrackMetadata{ID: 7, Artist: "Beatles", Title: "Let It Be", Year: 1969}
	suggestion := &models.MetadataSuggestion{
		Artist: strPtr("The Beatles"), // changed
		Title:  strPtr("Let It Be"),   // same
		Year:   intPtr(1970),          // changed
	}
	d := DiffSuggestion(current, suggestion)

	t.Run("Default selection applies all changed fields", func(t *testing.T) {
		req := BuildApplyPayload(d, DefaultSelection(d))
		want := models.ApplyRequest{ApplyArtist: true, ApplyYear: true}
		if req != want {
			t.Errorf("BuildApplyPayload() = %+v, want %+v", req, want)
		}
	})

	t.Run("Deselected field is dropped", func(t *testing.T) {
		sel := DefaultSelection(d)
		sel[FieldYear] = false
		req := BuildApplyPayload(d, sel)
		if req.ApplyYear {
			t.Error("deselected year still in payload")
		}
		if !req.ApplyArtist {
			t.Error("selected artist missing from payload")
		}
	})

	t.Run("Unchanged field can never be applied", func(t *testing.T) {
		sel := Selection{FieldTitle: true}
		req := BuildApplyPayload(d, sel)
		if req.ApplyTitle {
			t.Error("unchanged title made it into the payload")
		}
	})

	t.Run("Nil selection defaults to everything changed", func(t *testing.T) {
		req := BuildApplyPayload(d, nil)
		if !req.ApplyArtist || !req.ApplyYear {
			t.Errorf("nil selection dropped changed fields: %+v", req)
		}
	})
}

func TestCanApply(t *testing.T) {
	if CanApply(models.ApplyRequest{}) {
		t.Error("empty request reported as applicable")
	}
	if !CanApply(models.ApplyRequest{ApplyGenre: true}) {
		t.Error("request with one field reported as not applicable")
	}
}
