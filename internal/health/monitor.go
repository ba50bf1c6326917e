// Package health probes the storage backend periodically and tracks whether it
// is fit to serve requests.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status values
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Report is a point-in-time view of the probe state
type Report struct {
	LastCheck        time.Time `json:"last_check"`   // Timestamp of the last probe
	LastHealthy      time.Time `json:"last_healthy"` // Timestamp of the last successful probe
	Status           string    `json:"status"`
	LastError        string    `json:"last_error,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// CheckFunc probes a dependency; nil means healthy
type CheckFunc func(ctx context.Context) error

// Monitor runs a CheckFunc on an interval.
// The status turns unhealthy after maxFailures consecutive failures and back to
// healthy on the first success. Thread-safe: all methods may be called concurrently.
type Monitor struct {
	check       CheckFunc
	onUnhealthy func(Report)
	log         logrus.FieldLogger
	report      Report
	interval    time.Duration
	timeout     time.Duration
	maxFailures int
	mu          sync.RWMutex
}

// NewMonitor creates a monitor; call Start to begin probing
func NewMonitor(check CheckFunc, interval time.Duration, maxFailures int, log logrus.FieldLogger) *Monitor {
	return &Monitor{
		check:       check,
		log:         log,
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: maxFailures,
		report:      Report{Status: StatusUnknown},
	}
}

// SetOnUnhealthy sets a callback invoked (in its own goroutine) whenever the
// status changes to unhealthy
func (m *Monitor) SetOnUnhealthy(callback func(Report)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnhealthy = callback
}

// Start probes immediately and then every interval, blocking until ctx is done
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.WithField("interval", m.interval).Info("health monitor started")

	m.CheckNow(ctx)
	for {
		select {
		case <-ticker.C:
			m.CheckNow(ctx)
		case <-ctx.Done():
			m.log.Info("health monitor stopped")
			return
		}
	}
}

// CheckNow runs a single probe and updates the report
func (m *Monitor) CheckNow(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.check(checkCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.report.LastCheck = now

	if err != nil {
		m.report.ConsecutiveFails++
		m.report.LastError = err.Error()
		m.log.WithError(err).Warnf("storage check failed (attempt %d/%d)", m.report.ConsecutiveFails, m.maxFailures)

		if m.report.ConsecutiveFails >= m.maxFailures && m.report.Status != StatusUnhealthy {
			m.report.Status = StatusUnhealthy
			m.log.Errorf("storage marked unhealthy after %d failures", m.report.ConsecutiveFails)
			if m.onUnhealthy != nil {
				go m.onUnhealthy(m.report)
			}
		}
		return
	}

	if m.report.Status == StatusUnhealthy {
		m.log.Info("storage recovered")
	}
	m.report.Status = StatusHealthy
	m.report.ConsecutiveFails = 0
	m.report.LastError = ""
	m.report.LastHealthy = now
}

// Report returns a copy of the current probe state
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// IsHealthy reports whether the last probe cycle left the dependency healthy.
// Before the first probe the status is unknown, which counts as not healthy.
func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report.Status == StatusHealthy
}
