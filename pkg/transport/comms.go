// Package transport moves envelopes between peers.
package transport

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/command-runner/pkg/commsutil"
	"github.com/morezero/command-runner/pkg/messaging"
)

const commsLogPrefix = "transport:comms"

// CommsOpts configures CommsTransport. Nil or zero values use defaults.
type CommsOpts struct {
	// Codec frames outgoing envelopes. Incoming envelopes use the codec named in their header.
	Codec messaging.Codec
	// Buffer is the inbound channel size.
	Buffer int
}

// CommsTransport sends envelopes to the inbox subject of the destination peer
// and receives on the inbox of the local peer. Hosts are carried as routing
// metadata only; every host of a peer shares one inbox.
type CommsTransport struct {
	nc     *comms.Conn
	self   messaging.PeerID
	codec  messaging.Codec
	buffer int
}

// NewCommsTransport creates a transport for the local peer self.
func NewCommsTransport(nc *comms.Conn, self messaging.PeerID, opts *CommsOpts) *CommsTransport {
	t := &CommsTransport{nc: nc, self: self, codec: messaging.JSONCodec{}, buffer: 256}
	if opts != nil {
		if opts.Codec != nil {
			t.codec = opts.Codec
		}
		if opts.Buffer > 0 {
			t.buffer = opts.Buffer
		}
	}
	return t
}

// Send publishes env to its destination's inbox.
func (t *CommsTransport) Send(ctx context.Context, env *messaging.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := commsutil.InboxSubject(string(env.Destination.PeerID))
	msg, err := commsutil.EnvelopeMsg(subject, t.codec, env)
	if err != nil {
		return fmt.Errorf("%s - %w", commsLogPrefix, err)
	}
	if err := t.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", commsLogPrefix, subject, err)
	}
	slog.Debug(fmt.Sprintf("%s - Sent %s id=%s to %s", commsLogPrefix, env.Name, env.ID, subject))
	return nil
}

// Messages subscribes to the local inbox until ctx is done. Each call is an
// independent subscription.
func (t *CommsTransport) Messages(ctx context.Context) (<-chan *messaging.Envelope, error) {
	subject := commsutil.InboxSubject(string(t.self))
	raw := make(chan *comms.Msg, t.buffer)
	sub, err := t.nc.ChanSubscribe(subject, raw)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, subject, err)
	}
	if err := t.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", commsLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Listening on %s", commsLogPrefix, subject))

	out := make(chan *messaging.Envelope, t.buffer)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-raw:
				env, err := commsutil.DecodeEnvelopeMsg(msg)
				if err != nil {
					slog.Warn(fmt.Sprintf("%s - dropping undecodable message on %s: %v", commsLogPrefix, subject, err))
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
