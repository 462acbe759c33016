package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-librarian/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrConflict     = errors.New("job already in progress")
	ErrServerError  = errors.New("API server error")
)

const maxRetries = 3

// Client talks to the music library server's HTTP API.
type Client struct {
	BaseURL    string
	ApiKey     string
	HttpClient *http.Client
}

// NewClient creates a new API client for the given server. A nil httpClient
// gets a default with a 30s timeout.
func NewClient(serverURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		BaseURL:    strings.TrimRight(serverURL, "/"),
		ApiKey:     apiKey,
		HttpClient: httpClient,
	}
}

// do issues one request with retries on transient failures (transport errors,
// 429, 5xx) and decodes the JSON response into out. Non-retryable statuses
// map to the package sentinel errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload interface{}, out interface{}) error {
	reqURL := c.BaseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("error marshalling request body for %s: %w", path, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
		if err != nil {
			return fmt.Errorf("error creating request for %s: %w", reqURL, err)
		}
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.ApiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.ApiKey)
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed (attempt %d/%d): %w", attempt+1, maxRetries, err)
			if ctx.Err() != nil {
				return lastErr
			}
			if attempt < maxRetries-1 {
				log.WithError(err).Warnf("Retrying %s %s (%d/%d)...", method, path, attempt+1, maxRetries)
				time.Sleep(time.Duration(attempt+1) * 2 * time.Second)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("error reading response body from %s: %w", path, readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				log.WithError(err).Errorf("Error unmarshalling response from %s", path)
				log.Debugf("Response body causing unmarshal error: %s", string(body))
				return fmt.Errorf("error unmarshalling response from %s: %w", path, err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return ErrUnauthorized
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiDetail(body))
		case resp.StatusCode == http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, apiDetail(body))
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
		default:
			// Remaining 4xx are not retryable; surface the server's detail.
			return fmt.Errorf("API request %s failed with status %d: %s", path, resp.StatusCode, apiDetail(body))
		}

		if attempt < maxRetries-1 {
			var sleepDuration time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				sleepDuration = time.Duration(attempt+1) * 5 * time.Second
				log.WithError(lastErr).Warnf("Rate limited. Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleepDuration)
			} else {
				sleepDuration = time.Duration(attempt+1) * 3 * time.Second
				log.WithError(lastErr).Warnf("Server error. Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleepDuration)
			}
			time.Sleep(sleepDuration)
		} else {
			log.WithError(lastErr).Errorf("Request %s %s failed after %d attempts", method, path, maxRetries)
		}
	}

	return lastErr
}

// apiDetail extracts the "detail" field the server attaches to error
// responses, falling back to the raw body.
func apiDetail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return strings.TrimSpace(string(body))
}

// --- Duplicates ---

// FetchDuplicates gets the current duplicate groups. With refresh=true the
// server starts a re-scan; either way the response may report an in-flight
// scan instead of a group list.
func (c *Client) FetchDuplicates(ctx context.Context, refresh bool) (models.DuplicatesResponse, error) {
	query := url.Values{}
	if refresh {
		query.Set("refresh", "true")
	}
	var resp models.DuplicatesResponse
	err := c.do(ctx, http.MethodGet, "/api/duplicates", query, nil, &resp)
	return resp, err
}

func (c *Client) ScanProgress(ctx context.Context) (models.ScanStatus, error) {
	var status models.ScanStatus
	err := c.do(ctx, http.MethodGet, "/api/duplicates/progress", nil, nil, &status)
	return status, err
}

func (c *Client) DuplicateStats(ctx context.Context) (models.DuplicateStats, error) {
	var stats models.DuplicateStats
	err := c.do(ctx, http.MethodGet, "/api/duplicates/stats", nil, nil, &stats)
	return stats, err
}

func (c *Client) Merge(ctx context.Context, req models.MergeRequest) (models.MergeResult, error) {
	var result models.MergeResult
	err := c.do(ctx, http.MethodPost, "/api/duplicates/merge", nil, req, &result)
	return result, err
}

func (c *Client) BulkMerge(ctx context.Context, merges []models.MergeRequest) (models.BulkMergeResult, error) {
	var result models.BulkMergeResult
	err := c.do(ctx, http.MethodPost, "/api/duplicates/merge/bulk", nil, models.BulkMergeRequest{Merges: merges}, &result)
	return result, err
}

func (c *Client) Ignore(ctx context.Context, groupID int64) error {
	path := fmt.Sprintf("/api/duplicates/%d/ignore", groupID)
	return c.do(ctx, http.MethodPost, path, nil, nil, nil)
}

// --- Metadata lookup ---

func (c *Client) Lookup(ctx context.Context, trackID int64) (models.TrackLookup, error) {
	path := fmt.Sprintf("/api/musicbrainz/lookup/%d", trackID)
	var lookup models.TrackLookup
	err := c.do(ctx, http.MethodPost, path, nil, nil, &lookup)
	return lookup, err
}

func (c *Client) BatchLookup(ctx context.Context, trackIDs []int64) (models.BatchAccepted, error) {
	payload := struct {
		TrackIDs []int64 `json:"track_ids"`
	}{TrackIDs: trackIDs}
	var accepted models.BatchAccepted
	err := c.do(ctx, http.MethodPost, "/api/musicbrainz/batch-lookup", nil, payload, &accepted)
	return accepted, err
}

func (c *Client) BatchLookupProgress(ctx context.Context) (models.LookupStatus, error) {
	var status models.LookupStatus
	err := c.do(ctx, http.MethodGet, "/api/musicbrainz/batch-lookup/progress", nil, nil, &status)
	return status, err
}

func (c *Client) Apply(ctx context.Context, trackID int64, req models.ApplyRequest) (models.ApplyResult, error) {
	path := fmt.Sprintf("/api/musicbrainz/apply/%d", trackID)
	var result models.ApplyResult
	err := c.do(ctx, http.MethodPost, path, nil, req, &result)
	return result, err
}

// ClearLookupCache clears the server-held lookup cache. A nil olderThanDays
// clears everything.
func (c *Client) ClearLookupCache(ctx context.Context, olderThanDays *int) (models.CacheClearResult, error) {
	query := url.Values{}
	if olderThanDays != nil {
		query.Set("older_than_days", strconv.Itoa(*olderThanDays))
	}
	var result models.CacheClearResult
	err := c.do(ctx, http.MethodPost, "/api/musicbrainz/clear-cache", query, nil, &result)
	return result, err
}

func (c *Client) LookupCacheStats(ctx context.Context) (models.CacheStats, error) {
	var stats models.CacheStats
	err := c.do(ctx, http.MethodGet, "/api/musicbrainz/cache-stats", nil, nil, &stats)
	return stats, err
}

// --- Normalization ---

func (c *Client) StartNormalize(ctx context.Context) (models.NormalizeAccepted, error) {
	var accepted models.NormalizeAccepted
	err := c.do(ctx, http.MethodPost, "/api/normalize/library", nil, nil, &accepted)
	return accepted, err
}

func (c *Client) NormalizeProgress(ctx context.Context) (models.NormalizeStatus, error) {
	var status models.NormalizeStatus
	err := c.do(ctx, http.MethodGet, "/api/normalize/progress", nil, nil, &status)
	return status, err
}

// PreviewNormalize shows how the given raw fields would be normalized. Empty
// fields are omitted from the request.
func (c *Client) PreviewNormalize(ctx context.Context, artist, album, title string) (models.NormalizePreview, error) {
	query := url.Values{}
	if artist != "" {
		query.Set("artist", artist)
	}
	if album != "" {
		query.Set("album", album)
	}
	if title != "" {
		query.Set("title", title)
	}
	var preview models.NormalizePreview
	err := c.do(ctx, http.MethodGet, "/api/normalize/preview", query, nil, &preview)
	return preview, err
}

func (c *Client) NormalizeStats(ctx context.Context) (models.NormalizeStats, error) {
	var stats models.NormalizeStats
	err := c.do(ctx, http.MethodGet, "/api/normalize/stats", nil, nil, &stats)
	return stats, err
}
