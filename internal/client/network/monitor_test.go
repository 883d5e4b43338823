package network

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collect вычитывает события, пришедшие за время wait
func collect(ch <-chan Event, wait time.Duration) []Event {
	var events []Event
	deadline := time.After(wait)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		case <-deadline:
			return events
		}
	}
}

func TestMonitor_StartsOffline(t *testing.T) {
	m := NewMonitor(time.Second, testLogger())
	assert.False(t, m.Online())
}

func TestMonitor_DebouncedTransition(t *testing.T) {
	m := NewMonitor(30*time.Millisecond, testLogger())
	events := m.Subscribe()

	m.Report(true)
	assert.False(t, m.Online(), "transition must wait for the debounce window")

	assert.Eventually(t, m.Online, time.Second, 5*time.Millisecond)
	got := collect(events, 100*time.Millisecond)
	require.Len(t, got, 1)
	assert.True(t, got[0].Online)
}

func TestMonitor_FlapSuppression(t *testing.T) {
	m := NewMonitor(150*time.Millisecond, testLogger())
	events := m.Subscribe()

	// три цикла online/offline/online внутри окна
	for range 3 {
		m.Report(true)
		time.Sleep(5 * time.Millisecond)
		m.Report(false)
		time.Sleep(5 * time.Millisecond)
	}
	m.Report(true)

	got := collect(events, 400*time.Millisecond)
	require.Len(t, got, 1)
	assert.True(t, got[0].Online)
	assert.True(t, m.Online())
}

func TestMonitor_FlapBackCancels(t *testing.T) {
	m := NewMonitor(40*time.Millisecond, testLogger())
	events := m.Subscribe()

	m.Report(true)
	m.Report(false)

	got := collect(events, 120*time.Millisecond)
	assert.Empty(t, got)
	assert.False(t, m.Online())
}

func TestMonitor_RepeatedReportsDoNotRestartWindow(t *testing.T) {
	m := NewMonitor(40*time.Millisecond, testLogger())
	events := m.Subscribe()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Report(true)
		time.Sleep(10 * time.Millisecond)
	}

	got := collect(events, 50*time.Millisecond)
	require.Len(t, got, 1)
	assert.True(t, got[0].Online)
}

func TestMonitor_ZeroDebounce(t *testing.T) {
	m := NewMonitor(0, testLogger())
	events := m.Subscribe()

	m.Report(true)
	assert.True(t, m.Online())
	m.Report(false)
	assert.False(t, m.Online())

	got := collect(events, 20*time.Millisecond)
	require.Len(t, got, 2)
	assert.True(t, got[0].Online)
	assert.False(t, got[1].Online)
}

func TestMonitor_Force(t *testing.T) {
	m := NewMonitor(time.Hour, testLogger())
	events := m.Subscribe()

	m.Report(true)
	m.Force(true)
	assert.True(t, m.Online())

	got := collect(events, 20*time.Millisecond)
	require.Len(t, got, 1)
}

func TestMonitor_Unsubscribe(t *testing.T) {
	m := NewMonitor(0, testLogger())
	events := m.Subscribe()
	m.Unsubscribe(events)

	_, ok := <-events
	assert.False(t, ok, "channel must be closed")

	// публикация после отписки не паникует
	m.Report(true)
	assert.True(t, m.Online())
}
