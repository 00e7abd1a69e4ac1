package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/command-runner/internal/config"
	"github.com/morezero/command-runner/pkg/bootstrap"
	"github.com/morezero/command-runner/pkg/commsutil"
	"github.com/morezero/command-runner/pkg/dispatcher"
	"github.com/morezero/command-runner/pkg/events"
	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/peers"
	"github.com/morezero/command-runner/pkg/provider"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/semver"
	"github.com/morezero/command-runner/pkg/sink"
	"github.com/morezero/command-runner/pkg/transport"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const callLogPrefix = "server:call"

// ErrNoProvider is returned by Call when no destination is given and no
// known peer exposes the command before ctx is done.
var ErrNoProvider = errors.New("server: no peer exposes the command")

// CallRequest names a command of a built-in service and its JSON argument.
type CallRequest struct {
	Service valueobject.FQN
	Command string
	Param   json.RawMessage
}

// CallResult is the reply to a CallRequest.
type CallResult struct {
	FQN     valueobject.FQN `json:"fqn"`
	Value   json.RawMessage `json:"value,omitempty"`
	Failure bool            `json:"failure"`
}

// Call sends one command from a short-lived peer that exposes nothing and
// waits for the reply. A declared failure is a result, not an error. With an
// empty dest.PeerID the peer joins the peer-update stream and sends to the
// first peer, by id, that exposes the command.
func Call(ctx context.Context, cfg *config.Config, dest messaging.PeerAddress, req *CallRequest) (*CallResult, error) {
	reg := registry.New()
	if err := RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	cmd, ok := reg.GetCommandConfig(req.Service, req.Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s::%s", dispatcher.ErrCommandNotRegistered, req.Service, req.Command)
	}

	var param valueobject.ValueObject
	if cmd.Param != nil {
		raw := req.Param
		if len(raw) == 0 {
			raw = json.RawMessage("{}")
		}
		v, err := cmd.Param.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid parameter for %s::%s: %w", callLogPrefix, req.Service, req.Command, err)
		}
		param = v
	}

	codec, err := cfg.Codec()
	if err != nil {
		return nil, err
	}
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-cli")
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	var (
		updates   events.Stream
		directory *peers.Directory
	)
	if dest.PeerID == "" {
		gate, err := semver.NewGate(bootstrap.DefaultProtocolVersion, cfg.PeerVersionConstraint)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid peer version constraint: %w", callLogPrefix, err)
		}
		if directory, err = peers.NewDirectory(cfg.PeerDirectorySize, gate); err != nil {
			return nil, err
		}
		updates = events.NewCommsStream(nc, nil)
	}

	identity := messaging.PeerInfo{PeerID: messaging.PeerID("cli-" + uuid.NewString()), Hosts: []string{cfg.COMMSURL}}
	disp, err := dispatcher.New(dispatcher.Deps{
		Registry:        reg,
		Transport:       transport.NewCommsTransport(nc, identity.PeerID, &transport.CommsOpts{Codec: codec}),
		Provider:        provider.New(),
		Sink:            sink.NewLogSink(slog.Default()),
		Identity:        identity,
		Updates:         updates,
		Directory:       directory,
		ProtocolVersion: bootstrap.DefaultProtocolVersion,
	}, dispatcher.WithRequestTimeout(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}
	if err := disp.Start(ctx); err != nil {
		return nil, err
	}
	defer disp.Close()

	if directory != nil {
		if dest, err = awaitProvider(ctx, directory, req.Service, req.Command); err != nil {
			return nil, err
		}
		slog.Info(fmt.Sprintf("%s - Selected %s for %s::%s", callLogPrefix, dest, req.Service, req.Command))
	}

	c, err := disp.Call(ctx, dest, req.Service, req.Command, param)
	if err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - Sent %s id=%s to %s", callLogPrefix, c.Envelope.Name, c.Envelope.ID, dest))

	v, err := c.Wait(ctx)
	if err != nil {
		var failure valueobject.ErrorObject
		var wrapped *dispatcher.Failure
		switch {
		case errors.As(err, &wrapped):
			v = wrapped.Value
		case errors.As(err, &failure) && cmd.Returns.Contains(failure.FQN()):
			v = failure
		default:
			return nil, err
		}
		return resultOf(v, true)
	}
	return resultOf(v, false)
}

// awaitProvider polls directory until a peer exposes service command.
func awaitProvider(ctx context.Context, directory *peers.Directory, service valueobject.FQN, command string) (messaging.PeerAddress, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if providers := directory.Providers(service, command); len(providers) > 0 {
			return providers[0], nil
		}
		select {
		case <-ctx.Done():
			return messaging.PeerAddress{}, fmt.Errorf("%w: %s::%s (%d peers known)", ErrNoProvider, service, command, directory.Len())
		case <-ticker.C:
		}
	}
}

func resultOf(v valueobject.ValueObject, failure bool) (*CallResult, error) {
	typed, err := valueobject.Encode(v)
	if err != nil {
		return nil, err
	}
	return &CallResult{FQN: typed.FQN, Value: typed.Value, Failure: failure}, nil
}
