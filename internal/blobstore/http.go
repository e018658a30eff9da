package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"uttervault/internal/services"
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 512

// HTTPDoer describes the HTTP client used by HTTPDownloader.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPDownloader reads objects from a Supabase-compatible storage API:
// GET {base}/object/{bucket}/{key} with a bearer token.
type HTTPDownloader struct {
	baseURL string
	bucket  string
	apiKey  string
	client  HTTPDoer
}

// NewHTTPDownloader constructs an HTTP-backed downloader.
func NewHTTPDownloader(baseURL, bucket, apiKey string, client HTTPDoer) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		bucket:  strings.Trim(strings.TrimSpace(bucket), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Download fetches key from the configured bucket.
func (d *HTTPDownloader) Download(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	objectURL := fmt.Sprintf("%s/object/%s/%s", d.baseURL, url.PathEscape(d.bucket), escapeKey(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build storage request: %w", err)
	}
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
		req.Header.Set("apikey", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "blobstore", "download", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if isNotFoundResponse(resp.StatusCode, body) {
			return nil, notFound(key)
		}
		marker := services.ErrExternalTool
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			marker = services.ErrTransient
		}
		msg := fmt.Sprintf("%s: status %d", key, resp.StatusCode)
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			msg += ": " + trimmed
		}
		return nil, services.Wrap(marker, "blobstore", "download", msg, nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "blobstore", "download", "read body for "+key, err)
	}
	return data, nil
}

// isNotFoundResponse recognizes both a plain 404 and the 400 responses some
// storage gateways return with a not-found payload.
func isNotFoundResponse(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	if status != http.StatusBadRequest {
		return false
	}
	lowered := strings.ToLower(string(body))
	return strings.Contains(lowered, "not found") || strings.Contains(lowered, `"404"`)
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
