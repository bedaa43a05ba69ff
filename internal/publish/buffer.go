package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/kubesentry/internal/metrics"
	"go.uber.org/zap"
)

// DefaultBufferSize is how many undelivered log entries are kept.
const DefaultBufferSize = 100

// Ring is a bounded FIFO that drops its oldest element when full.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	size    int
	dropped int
}

// NewRing returns a ring holding at most size elements.
func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{size: size}
}

// Push appends v, dropping the oldest element on overflow.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, v)
	r.trimLocked()
}

// Requeue puts items back in front of anything pushed since they were
// drained. Overflow still drops the oldest.
func (r *Ring[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(append([]T(nil), items...), r.items...)
	r.trimLocked()
}

// Drain removes and returns everything, oldest first.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	return out
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Dropped counts elements lost to overflow.
func (r *Ring[T]) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Ring[T]) trimLocked() {
	if over := len(r.items) - r.size; over > 0 {
		r.items = append([]T(nil), r.items[over:]...)
		r.dropped += over
	}
}

// Buffered wraps a Publisher: every call gets its own timeout, failed log
// entries are kept in a ring and redelivered after the next success.
// Status updates are not buffered; only the latest one matters.
type Buffered struct {
	next    Publisher
	ring    *Ring[LogEntry]
	timeout time.Duration
	logger  *zap.Logger

	flushMu sync.Mutex
}

// NewBuffered wraps next with a ring of size entries.
func NewBuffered(next Publisher, size int, timeout time.Duration, logger *zap.Logger) *Buffered {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buffered{next: next, ring: NewRing[LogEntry](size), timeout: timeout, logger: logger}
}

// Pending returns how many entries wait for redelivery.
func (b *Buffered) Pending() int {
	return b.ring.Len()
}

// Dropped returns how many entries were lost to overflow.
func (b *Buffered) Dropped() int {
	return b.ring.Dropped()
}

// PublishLog delivers entry. On failure the entry is buffered and an error
// wrapping ErrBuffered is returned.
func (b *Buffered) PublishLog(ctx context.Context, entry LogEntry) error {
	if err := b.send(ctx, entry); err != nil {
		b.ring.Push(entry)
		metrics.PublishFailuresTotal.WithLabelValues("log").Inc()
		metrics.BufferedLogs.Set(float64(b.ring.Len()))
		b.logger.Debug("log entry buffered", zap.Error(err), zap.Int("pending", b.ring.Len()))
		return fmt.Errorf("%w: %v", ErrBuffered, err)
	}
	b.flush(ctx)
	return nil
}

// PublishStatus delivers update; failures are only logged and returned.
func (b *Buffered) PublishStatus(ctx context.Context, update StatusUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := b.next.PublishStatus(ctx, update); err != nil {
		metrics.PublishFailuresTotal.WithLabelValues("status").Inc()
		b.logger.Debug("status update failed", zap.Error(err))
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

func (b *Buffered) Close() error {
	return b.next.Close()
}

func (b *Buffered) send(ctx context.Context, entry LogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.PublishLog(ctx, entry)
}

// flush redelivers buffered entries oldest first and stops at the first
// failure, keeping the rest.
func (b *Buffered) flush(ctx context.Context) {
	if b.ring.Len() == 0 {
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	pending := b.ring.Drain()
	for i, entry := range pending {
		if err := b.send(ctx, entry); err != nil {
			b.ring.Requeue(pending[i:])
			b.logger.Debug("flush interrupted", zap.Error(err), zap.Int("remaining", len(pending)-i))
			break
		}
	}
	metrics.BufferedLogs.Set(float64(b.ring.Len()))
}
