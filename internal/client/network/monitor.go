// Package network turns a raw, possibly flapping connectivity signal into
// debounced online/offline transitions.
package network

import (
	"log/slog"
	"sync"
	"time"
)

// Event is a committed connectivity transition.
type Event struct {
	At     time.Time
	Online bool
}

const subscriberBuffer = 8

// Monitor debounces raw connectivity reports. A change is committed only
// after the raw signal has held the new value for the whole debounce window,
// so rapid flapping produces at most one transition once it settles.
type Monitor struct {
	timer    *time.Timer
	logger   *slog.Logger
	subs     map[chan Event]struct{}
	debounce time.Duration
	gen      uint64 // поколение таймера, устаревшие срабатывания игнорируются
	mu       sync.Mutex
	online   bool // зафиксированное состояние
	raw      bool // последнее сырое значение
}

// NewMonitor creates a monitor that starts offline
func NewMonitor(debounce time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		debounce: debounce,
		logger:   logger,
		subs:     make(map[chan Event]struct{}),
	}
}

// Online returns the committed state
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Report feeds one raw observation of the connectivity signal.
func (m *Monitor) Report(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.raw == online && (m.timer != nil || m.online == online) {
		// без изменений
		return
	}
	m.raw = online
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	if online == m.online {
		// сигнал вернулся к зафиксированному значению до истечения окна
		return
	}
	if m.debounce <= 0 {
		m.commitLocked()
		return
	}

	gen := m.gen
	m.timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if gen != m.gen {
			return
		}
		m.timer = nil
		m.commitLocked()
	})
}

// Force commits a state immediately, bypassing the debounce window.
// Используется для однократных команд CLI без фонового пробера.
func (m *Monitor) Force(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.raw = online
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.commitLocked()
}

// Subscribe returns a channel of committed transitions. Slow subscribers
// miss events rather than block the monitor.
func (m *Monitor) Subscribe() <-chan Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	m.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe closes a channel returned by Subscribe
func (m *Monitor) Unsubscribe(ch <-chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for sub := range m.subs {
		if sub == ch {
			delete(m.subs, sub)
			close(sub)
			return
		}
	}
}

// Stop cancels a pending transition
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Monitor) commitLocked() {
	if m.raw == m.online {
		return
	}
	m.online = m.raw

	ev := Event{Online: m.online, At: time.Now()}
	if m.online {
		m.logger.Info("Network became online")
	} else {
		m.logger.Warn("Network became offline")
	}

	for sub := range m.subs {
		select {
		case sub <- ev:
		default:
			m.logger.Warn("Network event dropped for slow subscriber")
		}
	}
}
