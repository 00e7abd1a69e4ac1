package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/command-runner/pkg/commsutil"
)

const commsStreamLogPrefix = "events:comms_stream"

// CommsStreamOpts configures CommsStream. Nil or zero values use defaults.
type CommsStreamOpts struct {
	// Subject overrides the peer update subject.
	Subject string
	// Buffer is the per-subscriber channel size.
	Buffer int
}

// CommsStream publishes and receives peer announcements over NATS.
type CommsStream struct {
	nc      *comms.Conn
	subject string
	buffer  int
}

// NewCommsStream creates a new CommsStream. Pass nil for opts to use defaults.
func NewCommsStream(nc *comms.Conn, opts *CommsStreamOpts) *CommsStream {
	s := &CommsStream{nc: nc, subject: commsutil.SubjectPeerUpdates, buffer: 64}
	if opts != nil {
		if opts.Subject != "" {
			s.subject = opts.Subject
		}
		if opts.Buffer > 0 {
			s.buffer = opts.Buffer
		}
	}
	return s
}

// PublishPeerUpdated publishes event on the peer update subject.
func (s *CommsStream) PublishPeerUpdated(_ context.Context, event *PeerUpdated) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsStreamLogPrefix, err)
	}

	if err := s.nc.Publish(s.subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsStreamLogPrefix, s.subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published peer update for %s", commsStreamLogPrefix, event.PeerInfo.PeerID))
	return nil
}

// Subscribe delivers announcements until ctx is done. Undecodable messages
// are logged and skipped.
func (s *CommsStream) Subscribe(ctx context.Context) (<-chan *PeerUpdated, error) {
	raw := make(chan *comms.Msg, s.buffer)
	sub, err := s.nc.ChanSubscribe(s.subject, raw)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsStreamLogPrefix, s.subject, err)
	}
	// The subscription must be registered server-side before announcements
	// published right after Subscribe returns can be seen.
	if err := s.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", commsStreamLogPrefix, err)
	}

	out := make(chan *PeerUpdated, s.buffer)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-raw:
				var event PeerUpdated
				if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
					slog.Warn(fmt.Sprintf("%s - dropping undecodable peer update: %v", commsStreamLogPrefix, err))
					continue
				}
				select {
				case out <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
