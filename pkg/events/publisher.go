package events

import (
	"context"
	"sync"
)

// EventPublisher publishes peer announcements.
type EventPublisher interface {
	PublishPeerUpdated(ctx context.Context, event *PeerUpdated) error
}

// Stream publishes announcements and delivers those of every peer, including
// the local one. The channel closes when ctx is done.
type Stream interface {
	EventPublisher
	Subscribe(ctx context.Context) (<-chan *PeerUpdated, error)
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishPeerUpdated is a no-op.
func (p *NoOpPublisher) PublishPeerUpdated(_ context.Context, _ *PeerUpdated) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *PeerUpdated) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *PeerUpdated) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishPeerUpdated calls the callback.
func (p *CallbackPublisher) PublishPeerUpdated(ctx context.Context, event *PeerUpdated) error {
	return p.callback(ctx, event)
}

// MemoryStream fans announcements out to in-process subscribers. Slow
// subscribers miss events once their buffer is full.
type MemoryStream struct {
	mu     sync.Mutex
	subs   map[int]chan *PeerUpdated
	nextID int
	buffer int
}

// NewMemoryStream creates a stream whose subscribers buffer up to buffer events.
func NewMemoryStream(buffer int) *MemoryStream {
	if buffer <= 0 {
		buffer = 16
	}
	return &MemoryStream{subs: make(map[int]chan *PeerUpdated), buffer: buffer}
}

// PublishPeerUpdated delivers event to every current subscriber.
func (s *MemoryStream) PublishPeerUpdated(_ context.Context, event *PeerUpdated) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (s *MemoryStream) Subscribe(ctx context.Context) (<-chan *PeerUpdated, error) {
	ch := make(chan *PeerUpdated, s.buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}
