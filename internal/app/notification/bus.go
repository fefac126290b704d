// Package notification provides the change notification bus. Delivery is
// at-least-once and fire-and-forget: a failed send is logged and never fails
// the mutation that triggered it.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Kind names a notification event.
type Kind string

const (
	PlaylistContentsChanged Kind = "playlist_contents_changed"
	PlaylistInfoChanged     Kind = "playlist_info_changed"
	PollStarted             Kind = "poll_started"
	PollEnded               Kind = "poll_ended"
	QuotaChanged            Kind = "quota_changed"
)

// Event is one change notification.
type Event struct {
	Kind       Kind   `json:"kind"`
	SequenceNo uint64 `json:"sequence_no"`
	PlaylistID string `json:"playlist_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Payload    any    `json:"payload,omitempty"`
}

// Stream receives events for one subscriber.
type Stream interface {
	Send(Event) error
}

type subscription struct {
	id     string
	stream Stream
}

// Bus manages subscriptions and broadcasting.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	seqMu sync.Mutex
	seq   uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a subscriber and returns its subscription ID.
func (b *Bus) Subscribe(stream Stream) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	b.subscriptions[id] = &subscription{id: id, stream: stream}
	return id
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscriptions, id)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Broadcast stamps the event with the next sequence number and sends it to
// every subscriber. Each send runs in its own goroutine with a timeout so a
// slow subscriber cannot block the caller.
func (b *Bus) Broadcast(e Event) {
	b.seqMu.Lock()
	b.seq++
	e.SequenceNo = b.seq
	b.seqMu.Unlock()

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(e)
			}()

			select {
			case err := <-done:
				if err != nil {
					zlog.Warn().Msgf("notification %s dropped for subscriber %s: %v", e.Kind, s.id, err)
				}
			case <-ctx.Done():
				zlog.Warn().Msgf("notification %s timed out for subscriber %s", e.Kind, s.id)
			}
		}(sub)
	}
	wg.Wait()
}

// Close drops all subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string]*subscription)
}
