package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyCheck fails while fail is set
type flakyCheck struct {
	fail  atomic.Bool
	calls atomic.Int64
}

func (f *flakyCheck) check(context.Context) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errors.New("storage unavailable")
	}
	return nil
}

func newTestMonitor(check CheckFunc, interval time.Duration) *Monitor {
	log, _ := logtest.NewNullLogger()
	return NewMonitor(check, interval, 3, log)
}

// TestNewMonitor verifies the initial state before any probe ran
func TestNewMonitor(t *testing.T) {
	f := &flakyCheck{}
	m := newTestMonitor(f.check, 5*time.Second)

	assert.Equal(t, 5*time.Second, m.interval)
	assert.Equal(t, 2*time.Second, m.timeout)
	assert.Equal(t, 3, m.maxFailures)
	assert.Equal(t, StatusUnknown, m.Report().Status)
	assert.False(t, m.IsHealthy())
	assert.Zero(t, f.calls.Load())
}

// TestMonitorStart verifies periodic probing and shutdown on context cancel
func TestMonitorStart(t *testing.T) {
	f := &flakyCheck{}
	m := newTestMonitor(f.check, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Start(ctx)
		close(done)
	}()

	// initial probe plus at least two ticks
	assert.Eventually(t, func() bool { return f.calls.Load() >= 3 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, m.IsHealthy())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}

// TestMonitorFailureThreshold verifies the unhealthy transition and recovery
func TestMonitorFailureThreshold(t *testing.T) {
	ctx := context.Background()
	f := &flakyCheck{}
	m := newTestMonitor(f.check, time.Hour)

	var (
		mu        sync.Mutex
		callbacks []Report
	)
	m.SetOnUnhealthy(func(r Report) {
		mu.Lock()
		callbacks = append(callbacks, r)
		mu.Unlock()
	})

	m.CheckNow(ctx)
	require.True(t, m.IsHealthy())

	f.fail.Store(true)
	m.CheckNow(ctx)
	m.CheckNow(ctx)
	assert.True(t, m.IsHealthy(), "two failures are below the threshold")
	assert.Equal(t, 2, m.Report().ConsecutiveFails)

	m.CheckNow(ctx)
	assert.False(t, m.IsHealthy())
	report := m.Report()
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "storage unavailable", report.LastError)

	// stays unhealthy without firing the callback again
	m.CheckNow(ctx)
	assert.Equal(t, 4, m.Report().ConsecutiveFails)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(callbacks) == 1
	}, time.Second, 10*time.Millisecond)

	f.fail.Store(false)
	m.CheckNow(ctx)
	report = m.Report()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Zero(t, report.ConsecutiveFails)
	assert.Empty(t, report.LastError)
	assert.False(t, report.LastHealthy.IsZero())

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, callbacks, 1)
	mu.Unlock()
}

// TestMonitorCheckTimeout verifies a hanging probe is bounded by the monitor timeout
func TestMonitorCheckTimeout(t *testing.T) {
	m := newTestMonitor(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, time.Hour)
	m.timeout = 20 * time.Millisecond

	start := time.Now()
	m.CheckNow(context.Background())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, m.Report().ConsecutiveFails)
	assert.Contains(t, m.Report().LastError, "deadline exceeded")
}

// TestMonitorConcurrentAccess exercises Report/IsHealthy while probes run
func TestMonitorConcurrentAccess(t *testing.T) {
	f := &flakyCheck{}
	m := newTestMonitor(f.check, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			f.fail.Store(i%2 == 0)
			m.CheckNow(ctx)
		}(i)
		go func() {
			defer wg.Done()
			_ = m.Report()
			_ = m.IsHealthy()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), f.calls.Load())
}
