// Package publish pushes monitor logs and status snapshots to a dashboard
// backend. Delivery is best effort: failures never block the caller.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAgentID identifies this monitor to the backend.
const DefaultAgentID = "autonomous_monitor"

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 5 * time.Second

// ErrBuffered is returned when a log entry could not be delivered and was
// kept for redelivery.
var ErrBuffered = errors.New("log entry buffered")

// Log levels understood by the backend.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// LogEntry is one line of the monitor's activity log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	AgentID   string         `json:"agent_id"`
	Level     string         `json:"log_level"`
	Message   string         `json:"message"`
	Source    string         `json:"source"`
	Details   map[string]any `json:"details"`
}

// StatusUpdate is the latest health rollup.
type StatusUpdate struct {
	AgentID     string    `json:"agent_id"`
	Status      string    `json:"status"`
	IssuesCount int       `json:"issues_count"`
	NodesReady  int       `json:"nodes_ready"`
	NodesTotal  int       `json:"nodes_total"`
	PodsRunning int       `json:"pods_running"`
	PodsTotal   int       `json:"pods_total"`
	LastUpdate  time.Time `json:"last_update"`
}

// Publisher delivers entries to a backend.
type Publisher interface {
	PublishLog(ctx context.Context, entry LogEntry) error
	PublishStatus(ctx context.Context, update StatusUpdate) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) PublishLog(context.Context, LogEntry) error        { return nil }
func (Nop) PublishStatus(context.Context, StatusUpdate) error { return nil }
func (Nop) Close() error                                      { return nil }

// New picks a transport from the backend URL: empty disables publishing,
// ws:// and wss:// use a WebSocket, http:// and https:// use REST calls.
// The result is wrapped in a ring buffer of DefaultBufferSize.
func New(backendURL string, timeout time.Duration, logger *zap.Logger) (*Buffered, error) {
	var p Publisher
	switch {
	case backendURL == "":
		p = Nop{}
	case strings.HasPrefix(backendURL, "ws://"), strings.HasPrefix(backendURL, "wss://"):
		p = NewWebSocket(backendURL)
	case strings.HasPrefix(backendURL, "http://"), strings.HasPrefix(backendURL, "https://"):
		p = NewHTTP(backendURL, timeout)
	default:
		return nil, fmt.Errorf("unsupported backend URL %q: want http(s):// or ws(s)://", backendURL)
	}
	return NewBuffered(p, DefaultBufferSize, timeout, logger), nil
}
