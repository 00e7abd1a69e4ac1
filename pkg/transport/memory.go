package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/morezero/command-runner/pkg/messaging"
)

const memoryLogPrefix = "transport:memory"

// ErrUnreachable is returned when the destination peer has no endpoint.
var ErrUnreachable = errors.New("transport: peer unreachable")

// Network connects in-process endpoints. Every envelope is encoded and decoded
// with the network codec on its way through, as it would be on a wire.
type Network struct {
	mu        sync.RWMutex
	endpoints map[messaging.PeerID]*Endpoint
	codec     messaging.Codec
	buffer    int
}

// NewNetwork creates a network whose endpoints queue up to buffer envelopes.
func NewNetwork(codec messaging.Codec, buffer int) *Network {
	if codec == nil {
		codec = messaging.JSONCodec{}
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Network{endpoints: make(map[messaging.PeerID]*Endpoint), codec: codec, buffer: buffer}
}

// Endpoint returns the endpoint of id, creating it on first use.
func (n *Network) Endpoint(id messaging.PeerID) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()

	if ep, ok := n.endpoints[id]; ok {
		return ep
	}
	ep := &Endpoint{net: n, id: id, inbox: make(chan []byte, n.buffer)}
	n.endpoints[id] = ep
	return ep
}

// Remove detaches id; later sends to it fail with ErrUnreachable.
func (n *Network) Remove(id messaging.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, id)
}

func (n *Network) lookup(id messaging.PeerID) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.endpoints[id]
	return ep, ok
}

// Endpoint is one peer's attachment to a Network.
type Endpoint struct {
	net   *Network
	id    messaging.PeerID
	inbox chan []byte
	sent  atomic.Int64
}

// Send delivers env to the inbox of its destination. It blocks while the
// destination inbox is full.
func (e *Endpoint) Send(ctx context.Context, env *messaging.Envelope) error {
	dest, ok := e.net.lookup(env.Destination.PeerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnreachable, env.Destination.PeerID)
	}
	frame, err := e.net.codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("%s - encode: %w", memoryLogPrefix, err)
	}
	select {
	case dest.inbox <- frame:
		e.sent.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Inject queues a raw frame as if it had arrived from the network.
func (e *Endpoint) Inject(ctx context.Context, frame []byte) error {
	select {
	case e.inbox <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages drains the inbox until ctx is done. Frames that fail to decode are dropped.
func (e *Endpoint) Messages(ctx context.Context) (<-chan *messaging.Envelope, error) {
	out := make(chan *messaging.Envelope)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case frame := <-e.inbox:
				env, err := e.net.codec.Unmarshal(frame)
				if err != nil {
					slog.Warn(fmt.Sprintf("%s - dropping undecodable frame for %s: %v", memoryLogPrefix, e.id, err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Sent returns how many envelopes this endpoint has delivered.
func (e *Endpoint) Sent() int64 {
	return e.sent.Load()
}
