package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-librarian/internal/models"
)

func TestFetchDuplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/duplicates", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.DuplicatesResponse{
			TotalGroups: 1,
			Groups: []models.DuplicateGroup{{
				ID:            12,
				DetectionType: models.DetectionExactHash,
				Tracks: []models.DuplicateTrack{
					{ID: 100, Title: "Song", QualityScore: 80},
					{ID: 101, Title: "Song", QualityScore: 60},
				},
			}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", nil)
	resp, err := client.FetchDuplicates(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, int64(12), resp.Groups[0].ID)
	assert.Equal(t, models.DetectionExactHash, resp.Groups[0].DetectionType)
	assert.Equal(t, 1, resp.Groups[0].Duplicates())
}

func TestMergeSendsPlanAsJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/duplicates/merge", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req models.MergeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, models.MergeRequest{GroupID: 12, KeepTrackID: 100, DeleteFiles: true}, req)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.MergeResult{
			Success:       true,
			KeptTrackID:   100,
			DeletedTracks: 1,
			Transfers:     models.TransferStats{PlayHistory: 4, Likes: 1},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	result, err := client.Merge(context.Background(), models.MergeRequest{GroupID: 12, KeepTrackID: 100, DeleteFiles: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 4, result.Transfers.PlayHistory)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantDetail string
	}{
		{
			name:    "Unauthorized",
			status:  http.StatusUnauthorized,
			wantErr: ErrUnauthorized,
		},
		{
			name:       "Not found carries detail",
			status:     http.StatusNotFound,
			body:       `{"detail": "Track 99 not found"}`,
			wantErr:    ErrNotFound,
			wantDetail: "Track 99 not found",
		},
		{
			name:       "Conflict on running job",
			status:     http.StatusConflict,
			body:       `{"detail": "Scan already in progress"}`,
			wantErr:    ErrConflict,
			wantDetail: "Scan already in progress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				if tt.body != "" {
					w.Write([]byte(tt.body))
				}
			}))
			defer server.Close()

			client := NewClient(server.URL, "", nil)
			_, err := client.ScanProgress(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantDetail != "" {
				assert.Contains(t, err.Error(), tt.wantDetail)
			}
		})
	}
}

func TestNonRetryableClientErrorSurfacesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail": "keep_track_id is not in group"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	_, err := client.Merge(context.Background(), models.MergeRequest{GroupID: 1, KeepTrackID: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keep_track_id is not in group")
}

func TestClearLookupCacheQuery(t *testing.T) {
	t.Run("With age filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/musicbrainz/clear-cache", r.URL.Path)
			assert.Equal(t, "30", r.URL.Query().Get("older_than_days"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(models.CacheClearResult{Success: true, DeletedEntries: 12, Filter: "older_than_30_days"})
		}))
		defer server.Close()

		days := 30
		client := NewClient(server.URL, "", nil)
		result, err := client.ClearLookupCache(context.Background(), &days)
		require.NoError(t, err)
		assert.Equal(t, 12, result.DeletedEntries)
	})

	t.Run("Without filter", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.False(t, r.URL.Query().Has("older_than_days"))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(models.CacheClearResult{Success: true, Filter: "all"})
		}))
		defer server.Close()

		client := NewClient(server.URL, "", nil)
		result, err := client.ClearLookupCache(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, "all", result.Filter)
	})
}

func TestScanStatusEmbedding(t *testing.T) {
	// The scan progress endpoint flattens the base progress fields and the
	// scan counters into one object; the embedded struct must pick both up.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"is_running": true,
			"phase": "fuzzy_matching",
			"total": 1000,
			"processed": 400,
			"progress": 40.0,
			"groups_found": 12,
			"duplicates_found": 31
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", nil)
	status, err := client.ScanProgress(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsRunning)
	assert.Equal(t, models.PhaseFuzzyMatching, status.Phase)
	assert.Equal(t, 400, status.Processed)
	assert.Equal(t, 12, status.GroupsFound)
	assert.Equal(t, 31, status.DuplicatesFound)
	assert.False(t, status.Terminal())
}
