package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	logsPath   = "/api/agents/logs/add"
	statusPath = "/api/agents/status/update"
)

// HTTP posts JSON to the backend REST API.
type HTTP struct {
	base       string
	httpClient *http.Client
}

// NewHTTP returns a REST publisher for base (e.g. http://localhost:8001).
func NewHTTP(base string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTP{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) PublishLog(ctx context.Context, entry LogEntry) error {
	return h.post(ctx, logsPath, entry)
}

func (h *HTTP) PublishStatus(ctx context.Context, update StatusUpdate) error {
	return h.post(ctx, statusPath, update)
}

func (h *HTTP) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HTTP) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: %d %s", path, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
