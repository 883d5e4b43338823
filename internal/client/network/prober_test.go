package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	err   atomic.Value
	calls atomic.Int32
}

func (f *fakeChecker) Health(context.Context) error {
	f.calls.Add(1)
	if err, ok := f.err.Load().(error); ok {
		return err
	}
	return nil
}

type recordingReporter struct {
	reports []bool
	mu      sync.Mutex
}

func (r *recordingReporter) Report(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, online)
}

func (r *recordingReporter) last() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reports) == 0 {
		return false, false
	}
	return r.reports[len(r.reports)-1], true
}

func TestProber_Check(t *testing.T) {
	checker := &fakeChecker{}
	reporter := &recordingReporter{}
	p := NewProber(checker, reporter, time.Hour, time.Second, testLogger())

	assert.True(t, p.Check(context.Background()))

	checker.err.Store(errors.New("connection refused"))
	assert.False(t, p.Check(context.Background()))

	assert.Equal(t, []bool{true, false}, reporter.reports)
}

func TestProber_Run(t *testing.T) {
	checker := &fakeChecker{}
	checker.err.Store(errors.New("down"))
	reporter := &recordingReporter{}
	p := NewProber(checker, reporter, 10*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return checker.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	online, ok := reporter.last()
	assert.True(t, ok)
	assert.False(t, online)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("prober did not stop")
	}
}

func TestProber_FeedsMonitor(t *testing.T) {
	m := NewMonitor(0, testLogger())
	p := NewProber(&fakeChecker{}, m, time.Hour, time.Second, testLogger())

	p.Check(context.Background())
	assert.True(t, m.Online())
}
