package sync

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/chartsync/internal/models"
)

const subscriberBuffer = 16

// Event is one notification for UI collaborators. Type is one of the
// api.Event* constants.
type Event struct {
	Timestamp time.Time
	Data      any
	Type      string
}

// DiscardedChange describes a local mutation dropped in favor of the server
// state after a KeepServer resolution.
type DiscardedChange struct {
	DiscardedAt  time.Time       `json:"discarded_at"`
	ItemID       string          `json:"item_id"`
	Table        models.Table    `json:"table"`
	RecordID     string          `json:"record_id"`
	Action       models.Action   `json:"action"`
	Payload      json.RawMessage `json:"payload"`
	RemoteRecord json.RawMessage `json:"remote_record,omitempty"`
}

// Broadcaster fans values out to subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the value.
type Broadcaster[T any] struct {
	logger *slog.Logger
	subs   map[chan T]struct{}
	name   string
	mu     sync.Mutex
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster[T any](name string, logger *slog.Logger) *Broadcaster[T] {
	return &Broadcaster[T]{
		name:   name,
		logger: logger,
		subs:   make(map[chan T]struct{}),
	}
}

// Subscribe returns a receive channel and a cancel function that closes it
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, subscriberBuffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, ch)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber that has room for it
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			b.logger.Warn("Subscriber is slow, value dropped", "stream", b.name)
		}
	}
}

// Len returns the number of subscribers
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
