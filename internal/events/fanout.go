package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"ai-speech-roundtrip-service/internal/models"
)

const subscriberBuffer = 16

// Subscription receives the events of one session.
type Subscription struct {
	C <-chan models.Event

	ch        chan models.Event
	sessionID string
	fanout    *Fanout
	once      sync.Once
}

// Close detaches the subscription and closes C. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() { s.fanout.unsubscribe(s) })
}

// Fanout forwards events to local per-session subscribers and then to the
// next emitter. Slow subscribers drop events rather than block publishers.
type Fanout struct {
	next Emitter

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewFanout creates a fanout in front of next, which may be nil.
func NewFanout(next Emitter) *Fanout {
	return &Fanout{next: next, subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a subscriber for sessionID.
func (f *Fanout) Subscribe(sessionID string) *Subscription {
	ch := make(chan models.Event, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch, sessionID: sessionID, fanout: f}

	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		f.subs[sessionID] = set
	}
	set[s] = struct{}{}
	return s
}

// Subscribers returns the number of subscribers for sessionID.
func (f *Fanout) Subscribers(sessionID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[sessionID])
}

// CloseSession closes every subscription for sessionID, for use on
// session teardown.
func (f *Fanout) CloseSession(sessionID string) {
	f.mu.Lock()
	set := f.subs[sessionID]
	delete(f.subs, sessionID)
	f.mu.Unlock()

	for s := range set {
		s.once.Do(func() { close(s.ch) })
	}
}

func (f *Fanout) unsubscribe(s *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subs[s.sessionID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(f.subs, s.sessionID)
		}
	}
	close(s.ch)
}

// Publish delivers event to local subscribers, then to the next emitter.
func (f *Fanout) Publish(ctx context.Context, event models.Event) error {
	f.mu.Lock()
	for s := range f.subs[event.Session()] {
		select {
		case s.ch <- event:
		default:
			log.Warn().
				Str("sessionId", event.Session()).
				Str("eventType", event.Type()).
				Msg("Subscriber buffer full, dropping event")
		}
	}
	f.mu.Unlock()

	if f.next == nil {
		return nil
	}
	return f.next.Publish(ctx, event)
}
