package models

type (
	Config struct {
		// Connection/Auth
		ServerURL string `toml:"ServerURL"`
		ApiKey    string `toml:"ApiKey"`

		// Paths
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`
		// LibraryRoot is the mount point of the server's music library, if the
		// client can see it. Only needed for `duplicates verify`.
		LibraryRoot string `toml:"LibraryRoot"`

		// Merge Behavior
		DeleteFiles bool `toml:"DeleteFiles"` // Default for --delete-files

		// API Client Behavior
		ApiDelayMs          int  `toml:"ApiDelayMs"`
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`
		LogApiRequests      bool `toml:"LogApiRequests"`
	}

	// DuplicateTrack is one member of a duplicate group as reported by the
	// server. QualityScore and IsMaster are computed server-side; the client
	// only ranks by them.
	DuplicateTrack struct {
		ID           int64   `json:"id"`
		Title        string  `json:"title"`
		Artist       string  `json:"artist"`
		Album        string  `json:"album"`
		FilePath     string  `json:"file_path"`
		FileSize     int64   `json:"file_size"`
		Bitrate      int     `json:"bitrate"`
		SampleRate   int     `json:"sample_rate"`
		Format       string  `json:"format"`
		DurationMs   int64   `json:"duration_ms"`
		ArtworkPath  string  `json:"artwork_path"`
		QualityScore float64 `json:"quality_score"`
		IsMaster     bool    `json:"is_master"`
	}

	DuplicateGroup struct {
		ID              int64            `json:"id"`
		DetectionType   string           `json:"type"`
		DetectionReason string           `json:"reason"`
		Status          string           `json:"status"`
		MasterTrackID   int64            `json:"master_track_id"`
		Tracks          []DuplicateTrack `json:"tracks"`
	}

	// DuplicatesResponse is what GET /api/duplicates returns: either the group
	// list, or scanning=true with the progress of an in-flight scan.
	DuplicatesResponse struct {
		Scanning        bool             `json:"scanning"`
		Progress        *ScanStatus      `json:"progress,omitempty"`
		TotalGroups     int              `json:"total_groups"`
		TotalDuplicates int              `json:"total_duplicates"`
		Groups          []DuplicateGroup `json:"groups"`
	}

	DuplicateStats struct {
		TotalGroups           int   `json:"total_groups"`
		Unresolved            int   `json:"unresolved"`
		Resolved              int   `json:"resolved"`
		Ignored               int   `json:"ignored"`
		PotentialSavingsBytes int64 `json:"potential_space_savings_bytes"`
	}

	MergeRequest struct {
		GroupID     int64 `json:"group_id"`
		KeepTrackID int64 `json:"keep_track_id"`
		DeleteFiles bool  `json:"delete_files"`
	}

	TransferStats struct {
		PlayHistory int `json:"play_history"`
		Playlists   int `json:"playlists"`
		Likes       int `json:"likes"`
	}

	MergeResult struct {
		Success       bool          `json:"success"`
		KeptTrackID   int64         `json:"kept_track_id"`
		DeletedTracks int           `json:"deleted_tracks"`
		DeletedFiles  []string      `json:"deleted_files"`
		Transfers     TransferStats `json:"transfers"`
	}

	BulkMergeRequest struct {
		Merges []MergeRequest `json:"merges"`
	}

	BulkMergeResult struct {
		Success int           `json:"success"`
		Errors  int           `json:"errors"`
		Results []MergeResult `json:"results"`
	}

	// JobProgress is the base status shape shared by every pollable job.
	// Once IsRunning goes false the job is terminal: either Error is set, or
	// the caller should refetch the authoritative result.
	JobProgress struct {
		IsRunning   bool    `json:"is_running"`
		Phase       string  `json:"phase"`
		Total       int     `json:"total"`
		Processed   int     `json:"processed"`
		CurrentItem string  `json:"current_item,omitempty"`
		Percent     float64 `json:"progress,omitempty"`
		Error       string  `json:"error,omitempty"`
	}

	// ScanStatus extends JobProgress with duplicate-scan counters.
	ScanStatus struct {
		JobProgress
		GroupsFound     int `json:"groups_found"`
		DuplicatesFound int `json:"duplicates_found"`
	}

	// LookupStatus extends JobProgress with batch-lookup counters.
	LookupStatus struct {
		JobProgress
		Found    int `json:"found"`
		NotFound int `json:"not_found"`
		Errors   int `json:"errors"`
		Skipped  int `json:"skipped"`
	}

	// NormalizeStatus extends JobProgress with the library-normalization counter.
	NormalizeStatus struct {
		JobProgress
		Updated int `json:"updated"`
	}

	// TrackMetadata is the client-held view of the reconcilable fields.
	TrackMetadata struct {
		ID     int64  `json:"id"`
		Artist string `json:"artist"`
		Title  string `json:"title"`
		Album  string `json:"album"`
		Year   int    `json:"year"`
		Genre  string `json:"genre"`
	}

	// MetadataSuggestion holds the per-field candidates from a lookup. Nil
	// means the reference source had nothing to offer for that field.
	MetadataSuggestion struct {
		Artist        *string `json:"artist"`
		Title         *string `json:"title"`
		Album         *string `json:"album"`
		Year          *int    `json:"year"`
		Genre         *string `json:"genre"`
		RecordingMBID string  `json:"recording_mbid"`
		ReleaseMBID   string  `json:"release_mbid"`
		ArtistMBID    string  `json:"artist_mbid"`
	}

	// TrackLookup is the response of a single-track lookup. Found=false is a
	// valid outcome, not an error.
	TrackLookup struct {
		TrackID    int64               `json:"track_id"`
		Found      bool                `json:"found"`
		Current    TrackMetadata       `json:"current"`
		Suggestion *MetadataSuggestion `json:"musicbrainz"`
	}

	// ApplyRequest carries the per-field apply flags. Only fields that both
	// changed and stayed selected may be true.
	ApplyRequest struct {
		ApplyArtist bool `json:"apply_artist"`
		ApplyTitle  bool `json:"apply_title"`
		ApplyAlbum  bool `json:"apply_album"`
		ApplyYear   bool `json:"apply_year"`
		ApplyGenre  bool `json:"apply_genre"`
	}

	ApplyResult struct {
		Success bool                   `json:"success"`
		TrackID int64                  `json:"track_id"`
		Updates map[string]interface{} `json:"updates"`
	}

	BatchAccepted struct {
		Message     string `json:"message"`
		TotalTracks int    `json:"total_tracks"`
	}

	CacheStats struct {
		TotalCached int     `json:"total_cached"`
		Found       int     `json:"found"`
		NotFound    int     `json:"not_found"`
		Errors      int     `json:"errors"`
		HitRate     float64 `json:"hit_rate"`
	}

	CacheClearResult struct {
		Success        bool   `json:"success"`
		DeletedEntries int    `json:"deleted_entries"`
		Filter         string `json:"filter"`
	}

	NormalizeFields struct {
		Artist string `json:"artist"`
		Album  string `json:"album"`
		Title  string `json:"title"`
	}

	NormalizePreview struct {
		Original   NormalizeFields `json:"original"`
		Normalized NormalizeFields `json:"normalized"`
	}

	NormalizeAccepted struct {
		Message string `json:"message"`
		Total   int    `json:"total"`
	}

	NormalizeStats struct {
		TotalTracks         int     `json:"total_tracks"`
		NormalizedTracks    int     `json:"normalized_tracks"`
		PreservedOriginals  int     `json:"tracks_with_preserved_originals"`
		AverageCompleteness float64 `json:"average_completeness"`
	}

	// ResolutionEntry is the local journal record written after a merge or
	// ignore succeeded server-side.
	ResolutionEntry struct {
		GroupID       int64         `json:"group_id"`
		Action        string        `json:"action"`
		DetectionType string        `json:"detection_type"`
		KeptTrackID   int64         `json:"kept_track_id,omitempty"`
		DeletedTracks int           `json:"deleted_tracks,omitempty"`
		DeletedFiles  []string      `json:"deleted_files,omitempty"`
		Transfers     TransferStats `json:"transfers"`
		Timestamp     int64         `json:"timestamp"`
	}
)

// Detection types, ordered by severity for display.
const (
	DetectionExactHash     = "exact_hash"
	DetectionFuzzyMetadata = "fuzzy_metadata"
	DetectionDurationMatch = "duration_match"
)

// Scan phases reported by the server.
const (
	PhaseIdle             = "idle"
	PhaseInitializing     = "initializing"
	PhaseHashMatching     = "hash_matching"
	PhaseFuzzyMatching    = "fuzzy_matching"
	PhaseDurationMatching = "duration_matching"
	PhaseCreatingGroups   = "creating_groups"
	PhaseComplete         = "complete"
	PhaseError            = "error"
)

// Resolution journal actions.
const (
	ActionMerged  = "merged"
	ActionIgnored = "ignored"
)

// DetectionRank orders detection types by severity (lower = more severe).
// Unknown types sort last.
func DetectionRank(detectionType string) int {
	switch detectionType {
	case DetectionExactHash:
		return 0
	case DetectionFuzzyMetadata:
		return 1
	case DetectionDurationMatch:
		return 2
	default:
		return 3
	}
}

// Terminal reports whether a job status is final. A job that stopped running
// is terminal whether it completed or errored; polling must stop either way.
func (p JobProgress) Terminal() bool {
	return !p.IsRunning || p.Error != ""
}

// Failed reports whether the job itself reported an error.
func (p JobProgress) Failed() bool {
	return p.Error != ""
}

// Duplicates returns the number of removable tracks in the group (all members
// but the one kept).
func (g DuplicateGroup) Duplicates() int {
	if len(g.Tracks) == 0 {
		return 0
	}
	return len(g.Tracks) - 1
}

// Track returns the member with the given id, if present.
func (g DuplicateGroup) Track(trackID int64) (DuplicateTrack, bool) {
	for _, t := range g.Tracks {
		if t.ID == trackID {
			return t, true
		}
	}
	return DuplicateTrack{}, false
}
