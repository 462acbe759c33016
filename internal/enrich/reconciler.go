package enrich

import (
	"strconv"

	"go-librarian/internal/models"
)

// Field names used throughout the reconciler. These match the reconcilable
// columns on the server.
const (
	FieldArtist = "artist"
	FieldTitle  = "title"
	FieldAlbum  = "album"
	FieldYear   = "year"
	FieldGenre  = "genre"
)

// Fields lists the reconcilable fields in display order.
var Fields = []string{FieldArtist, FieldTitle, FieldAlbum, FieldYear, FieldGenre}

// FieldDiff is the per-field comparison of the current value against the
// lookup suggestion. Changed is true only when the suggestion has a value for
// the field and it differs from the current one; a nil suggestion never marks
// a field as changed, so "no data" can never blank an existing tag.
type FieldDiff struct {
	Field     string
	Current   string
	Suggested string
	Changed   bool
}

// Diff holds the full field-by-field comparison for one track.
type Diff struct {
	TrackID int64
	Fields  []FieldDiff
}

// Changed returns only the fields that differ.
func (d Diff) Changed() []FieldDiff {
	var out []FieldDiff
	for _, f := range d.Fields {
		if f.Changed {
			out = append(out, f)
		}
	}
	return out
}

// HasChanges reports whether any field differs.
func (d Diff) HasChanges() bool {
	for _, f := range d.Fields {
		if f.Changed {
			return true
		}
	}
	return false
}

// Field returns the diff entry for the named field.
func (d Diff) Field(name string) (FieldDiff, bool) {
	for _, f := range d.Fields {
		if f.Field == name {
			return f, true
		}
	}
	return FieldDiff{}, false
}

// DiffSuggestion compares a track's current metadata against a lookup
// suggestion. Running it twice over the same inputs yields the same diff;
// there is no hidden state.
func DiffSuggestion(current models.TrackMetadata, suggestion *models.MetadataSuggestion) Diff {
	d := Diff{TrackID: current.ID}
	if suggestion == nil {
		for _, name := range Fields {
			d.Fields = append(d.Fields, FieldDiff{Field: name, Current: currentValue(current, name)})
		}
		return d
	}

	d.Fields = append(d.Fields,
		stringDiff(FieldArtist, current.Artist, suggestion.Artist),
		stringDiff(FieldTitle, current.Title, suggestion.Title),
		stringDiff(FieldAlbum, current.Album, suggestion.Album),
		yearDiff(current.Year, suggestion.Year),
		stringDiff(FieldGenre, current.Genre, suggestion.Genre),
	)
	return d
}

func stringDiff(field, current string, suggested *string) FieldDiff {
	fd := FieldDiff{Field: field, Current: current}
	if suggested != nil {
		fd.Suggested = *suggested
		fd.Changed = *suggested != current
	}
	return fd
}

func yearDiff(current int, suggested *int) FieldDiff {
	fd := FieldDiff{Field: FieldYear}
	if current != 0 {
		fd.Current = strconv.Itoa(current)
	}
	if suggested != nil {
		fd.Suggested = strconv.Itoa(*suggested)
		fd.Changed = *suggested != current
	}
	return fd
}

func currentValue(m models.TrackMetadata, field string) string {
	switch field {
	case FieldArtist:
		return m.Artist
	case FieldTitle:
		return m.Title
	case FieldAlbum:
		return m.Album
	case FieldYear:
		if m.Year == 0 {
			return ""
		}
		return strconv.Itoa(m.Year)
	case FieldGenre:
		return m.Genre
	}
	return ""
}

// Selection is the set of fields the user wants applied. Fields absent from
// the map default to selected, matching the review UI where everything starts
// checked and the user deselects.
type Selection map[string]bool

// DefaultSelection selects every changed field.
func DefaultSelection(d Diff) Selection {
	sel := make(Selection, len(d.Fields))
	for _, f := range d.Fields {
		sel[f.Field] = f.Changed
	}
	return sel
}

func (s Selection) selected(field string) bool {
	if s == nil {
		return true
	}
	v, ok := s[field]
	if !ok {
		return true
	}
	return v
}

// BuildApplyPayload maps the diff and selection to the server's apply flags.
// A field is applied only when it both changed and stayed selected; unchanged
// or deselected fields are never sent, so applying cannot touch fields the
// suggestion had nothing for.
func BuildApplyPayload(d Diff, sel Selection) models.ApplyRequest {
	var req models.ApplyRequest
	for _, f := range d.Fields {
		if !f.Changed || !sel.selected(f.Field) {
			continue
		}
		switch f.Field {
		case FieldArtist:
			req.ApplyArtist = true
		case FieldTitle:
			req.ApplyTitle = true
		case FieldAlbum:
			req.ApplyAlbum = true
		case FieldYear:
			req.ApplyYear = true
		case FieldGenre:
			req.ApplyGenre = true
		}
	}
	return req
}

// CanApply reports whether the payload would apply anything at all. Guards
// the apply call so an all-deselected (or all-unchanged) review is a no-op
// instead of an empty server round trip.
func CanApply(req models.ApplyRequest) bool {
	return req.ApplyArtist || req.ApplyTitle || req.ApplyAlbum || req.ApplyYear || req.ApplyGenre
}
