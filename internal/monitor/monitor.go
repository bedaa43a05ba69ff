// Package monitor runs the periodic health check loop and launches
// investigations when the cluster turns unhealthy.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/kubesentry/internal/cluster"
	"github.com/ppiankov/kubesentry/internal/detector"
	"github.com/ppiankov/kubesentry/internal/investigate"
	"github.com/ppiankov/kubesentry/internal/metrics"
	"github.com/ppiankov/kubesentry/internal/models"
	"github.com/ppiankov/kubesentry/internal/publish"
	"github.com/ppiankov/kubesentry/internal/report"
	"go.uber.org/zap"
)

const (
	DefaultCheckInterval        = 30 * time.Second
	Cooldown                    = 30 * time.Second
	DefaultInvestigationTimeout = 5 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("monitor already running")
	ErrUnsafeMode     = errors.New("safe mode requires the deterministic investigator")
)

// Investigator is what the loop launches. *investigate.Investigator
// satisfies it.
type Investigator interface {
	Investigate(ctx context.Context, req investigate.Request) *report.Report
	Type() string
}

// Config holds monitor configuration
type Config struct {
	Collector    cluster.Collector
	Investigator Investigator
	Store        *report.Store     // nil: reports are not saved
	Streamer     *publish.Streamer // nil: nothing is published
	Out          io.Writer         // console output, nil discards
	Logger       *zap.Logger
	Initiator    *cluster.Identity

	Namespace            string
	CheckInterval        time.Duration
	InvestigationTimeout time.Duration
	AutoInvestigate      bool
	SafeMode             bool

	Now func() time.Time

	// OnReport is called from the investigation worker after a report is
	// saved and published.
	OnReport func(*report.Report)
}

// State is the investigation state of the loop.
type State string

const (
	StateIdle          State = "idle"
	StateInvestigating State = "investigating"
)

// Monitor is one control loop. It must not be shared between loops.
type Monitor struct {
	cfg     Config
	console *Console
	logger  *zap.Logger

	running       atomic.Bool
	investigating atomic.Bool

	mu                  sync.Mutex
	lastInvestigationAt time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Monitor, error) {
	if cfg.Collector == nil {
		return nil, errors.New("monitor: collector is required")
	}
	if cfg.AutoInvestigate && cfg.Investigator == nil {
		return nil, errors.New("monitor: auto-investigate needs an investigator")
	}
	if cfg.SafeMode && cfg.Investigator != nil && cfg.Investigator.Type() != investigate.TypeDeterministic {
		return nil, fmt.Errorf("%w, got %s", ErrUnsafeMode, cfg.Investigator.Type())
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.InvestigationTimeout <= 0 {
		cfg.InvestigationTimeout = DefaultInvestigationTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Streamer == nil {
		cfg.Streamer = publish.NewStreamer(nil, "", cfg.Now)
	}

	return &Monitor{
		cfg:     cfg,
		console: NewConsole(cfg.Out),
		logger:  cfg.Logger.With(zap.String("component", "monitor")),
		stop:    make(chan struct{}),
	}, nil
}

// State reports whether an investigation is in flight.
func (m *Monitor) State() State {
	if m.investigating.Load() {
		return StateInvestigating
	}
	return StateIdle
}

// LastInvestigationAt returns when the last investigation was launched, or
// the zero time.
func (m *Monitor) LastInvestigationAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInvestigationAt
}

// Run checks cluster health every CheckInterval until ctx is done or Stop
// is called, then waits for an in-flight investigation to finish.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	m.logger.Info("monitor started",
		zap.Duration("interval", m.cfg.CheckInterval),
		zap.Bool("auto_investigate", m.cfg.AutoInvestigate),
		zap.Bool("safe_mode", m.cfg.SafeMode),
		zap.String("namespace", m.cfg.Namespace))
	m.console.Info(fmt.Sprintf("🔄 Starting health check loop (every %s)", m.cfg.CheckInterval))
	m.validateEnvironment(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

loop:
	for {
		m.tick(ctx)

		select {
		case <-ctx.Done():
			break loop
		case <-m.stop:
			break loop
		case <-ticker.C:
		}
	}

	if m.investigating.Load() {
		m.logger.Info("waiting for in-flight investigation")
		m.console.Info("⏳ Waiting for the running investigation to finish...")
	}
	m.wg.Wait()
	m.logger.Info("monitor stopped")
	return nil
}

// Stop asks the loop to exit after its current tick. It does not cancel a
// running investigation.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Wait blocks until no investigation is in flight.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// validateEnvironment takes one snapshot before the loop starts so a
// misconfigured cluster connection shows up immediately. The loop starts
// either way.
func (m *Monitor) validateEnvironment(ctx context.Context) {
	qctx, cancel := context.WithTimeout(ctx, cluster.DefaultQueryTimeout)
	defer cancel()

	snap, err := cluster.TakeSnapshot(qctx, m.cfg.Collector, m.cfg.Namespace, m.cfg.Now())
	if err != nil {
		m.logger.Warn("cluster not reachable at startup", zap.Error(err))
		m.console.Failure(fmt.Sprintf("⚠️  Cluster not reachable yet: %v", err))
		return
	}
	m.logger.Info("cluster reachable", zap.Int("nodes", len(snap.Nodes)), zap.Int("pods", len(snap.Pods)))
}

// tick runs one health check. It is only called from the loop goroutine.
func (m *Monitor) tick(ctx context.Context) {
	metrics.TicksTotal.Inc()
	now := m.cfg.Now()

	qctx, cancel := context.WithTimeout(ctx, cluster.DefaultQueryTimeout)
	snap, err := cluster.TakeSnapshot(qctx, m.cfg.Collector, m.cfg.Namespace, now)
	cancel()
	if err != nil {
		m.tickFailed(ctx, now, err)
		return
	}
	if snap.EventsErr != nil {
		m.logger.Debug("events unavailable for this tick", zap.Error(snap.EventsErr))
	}

	issues := detector.Detect(snap)
	health := detector.Assess(snap.Pods, snap.Nodes, issues)
	recordHealth(health, issues)

	line := StatusLine(now, health, m.investigating.Load())
	m.console.Status(health, line)
	if err := m.cfg.Streamer.HealthStatus(ctx, health, line); err != nil {
		m.logger.Debug("health status not delivered", zap.Error(err))
	}

	if health.Healthy || len(issues) == 0 {
		return
	}

	triggering := m.cfg.AutoInvestigate && m.canInvestigate(now)
	m.console.Issues(issues, triggering)
	if err := m.cfg.Streamer.IssuesDetected(ctx, issues); err != nil {
		m.logger.Debug("issues not delivered", zap.Error(err))
	}
	if triggering {
		m.launch(ctx, now, issues)
	}
}

func (m *Monitor) tickFailed(ctx context.Context, now time.Time, err error) {
	kind := "unknown"
	var qe *cluster.QueryError
	if errors.As(err, &qe) {
		kind = string(qe.Kind)
	}
	metrics.TickErrorsTotal.WithLabelValues(kind).Inc()
	recordHealth(detector.Health{}, nil)

	m.logger.Warn("health check failed", zap.String("kind", kind), zap.Error(err))
	line := FailureLine(now, err, m.investigating.Load())
	m.console.Failure(line)
	if perr := m.cfg.Streamer.HealthCheckFailed(ctx, line, err); perr != nil {
		m.logger.Debug("health failure not delivered", zap.Error(perr))
	}
}

// canInvestigate applies mutual exclusion and the cooldown.
func (m *Monitor) canInvestigate(now time.Time) bool {
	if m.investigating.Load() {
		m.logger.Debug("investigation already running, not triggering")
		return false
	}
	last := m.LastInvestigationAt()
	if !last.IsZero() && now.Sub(last) < Cooldown {
		m.logger.Debug("cooldown active", zap.Duration("since_last", now.Sub(last)))
		return false
	}
	return true
}

// launch starts the investigation worker. The run is detached from ctx so
// stopping the loop never cuts a report short; InvestigationTimeout bounds it.
func (m *Monitor) launch(ctx context.Context, now time.Time, issues []models.Issue) {
	if !m.investigating.CompareAndSwap(false, true) {
		return
	}
	m.mu.Lock()
	m.lastInvestigationAt = now
	m.mu.Unlock()

	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.InvestigationTimeout)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer m.investigating.Store(false)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("investigation panicked: %v", r)
				m.logger.Error("investigation panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				m.console.InvestigationDone(nil, "", err)
				_ = m.cfg.Streamer.InvestigationComplete(ictx, nil, "", err)
			}
		}()
		m.investigate(ictx, issues)
	}()
}

func (m *Monitor) investigate(ctx context.Context, issues []models.Issue) {
	kind := m.cfg.Investigator.Type()
	start := m.cfg.Now()
	m.logger.Info("investigation triggered", zap.String("type", kind), zap.Int("issues", len(issues)))
	_ = m.cfg.Streamer.InvestigationStarted(ctx, kind)

	r := m.cfg.Investigator.Investigate(ctx, investigate.Request{
		Namespace:     m.cfg.Namespace,
		TriggerIssues: issues,
		Initiator:     m.cfg.Initiator,
	})
	metrics.InvestigationDuration.Observe(m.cfg.Now().Sub(start).Seconds())

	// a deadline hit mid-run still yields a report, flagged as incomplete
	var runErr error
	if r == nil {
		runErr = errors.New("investigator returned no report")
	} else if err := ctx.Err(); err != nil {
		runErr = fmt.Errorf("investigation timed out after %s: %w", m.cfg.InvestigationTimeout, err)
	}

	var reportFile string
	if r != nil && m.cfg.Store != nil {
		saved, err := m.cfg.Store.Save(r)
		if err != nil {
			m.logger.Error("report not saved", zap.String("run_id", r.RunID), zap.Error(err))
		} else {
			reportFile = saved.TextPath
			m.logger.Info("report saved", zap.String("run_id", r.RunID), zap.String("path", reportFile))
		}
	}

	m.console.InvestigationDone(r, reportFile, runErr)
	// the run context may be spent; publish on a fresh one
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publish.DefaultTimeout)
	defer cancel()
	_ = m.cfg.Streamer.InvestigationComplete(pctx, r, reportFile, runErr)

	if r != nil && m.cfg.OnReport != nil {
		m.cfg.OnReport(r)
	}
}

func recordHealth(h detector.Health, issues []models.Issue) {
	counts := models.CountBySeverity(issues)
	for _, s := range models.Severities {
		metrics.IssuesCurrent.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
	metrics.NodesReady.Set(float64(h.ReadyNodes))
}
