package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/morezero/command-runner/pkg/events"
	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/peers"
	"github.com/morezero/command-runner/pkg/pending"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "dispatcher:dispatcher"

var (
	// ErrDuplicateCommandID is returned by SendCommand while a command with
	// the same destination and id is in flight.
	ErrDuplicateCommandID = errors.New("dispatcher: duplicate command id")
	// ErrCommandNotRegistered is returned by SendCommand when the local
	// catalog does not know the command's contract.
	ErrCommandNotRegistered = errors.New("dispatcher: command not registered")
	// ErrNotCommand is returned by SendCommand for envelopes that are not commands.
	ErrNotCommand = errors.New("dispatcher: envelope is not a command")
	// ErrClosed settles calls still pending when the dispatcher closes.
	ErrClosed = errors.New("dispatcher: closed")
	// ErrRequestTimeout settles calls that outlive the configured request timeout.
	ErrRequestTimeout = errors.New("dispatcher: request timed out")
	// ErrCanceled settles calls abandoned with Call.Cancel.
	ErrCanceled = errors.New("dispatcher: call canceled")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("dispatcher: already started")
)

// Deps are the collaborators of a Dispatcher. Registry, Transport, Provider
// and Sink are required.
type Deps struct {
	Registry  *registry.Registry
	Transport Transport
	Provider  Provider
	Sink      Sink
	// Identity is the local peer. Replies and outgoing commands originate from its first host.
	Identity messaging.PeerInfo
	// Expose lists the commands to make remotely callable at Start.
	Expose map[valueobject.FQN][]string
	// Updates, when set, receives this peer's announcement and feeds Directory.
	Updates         events.Stream
	Directory       *peers.Directory
	ProtocolVersion string
}

// Option tunes a Dispatcher.
type Option func(*Dispatcher)

// WithRequestTimeout rejects calls still unanswered after d. Zero, the
// default, waits for a reply indefinitely.
func WithRequestTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithIntakeLimit paces intake to r messages per second with the given
// burst. Intake waits for a token; messages are never dropped.
func WithIntakeLimit(r float64, burst int) Option {
	return func(disp *Dispatcher) {
		if r > 0 {
			if burst < 1 {
				burst = 1
			}
			disp.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// WithLogger sets the logger for dispatcher diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// WithObserver reports dispatcher activity to o.
func WithObserver(o Observer) Option {
	return func(disp *Dispatcher) {
		if o != nil {
			disp.observer = o
		}
	}
}

// Dispatcher is the command runner of one peer.
type Dispatcher struct {
	registry  *registry.Registry
	transport Transport
	provider  Provider
	sink      Sink
	identity  messaging.PeerInfo
	expose    map[valueobject.FQN][]string
	updates   events.Stream
	directory *peers.Directory
	protocol  string

	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
	observer Observer

	pending  *pending.Table
	inflight sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New creates a dispatcher. It does nothing until Start.
func New(deps Deps, opts ...Option) (*Dispatcher, error) {
	if deps.Registry == nil || deps.Transport == nil || deps.Provider == nil || deps.Sink == nil {
		return nil, fmt.Errorf("%s - registry, transport, provider and sink are required", logPrefix)
	}
	if err := deps.Identity.Validate(); err != nil {
		return nil, fmt.Errorf("%s - invalid identity: %w", logPrefix, err)
	}

	d := &Dispatcher{
		registry:  deps.Registry,
		transport: deps.Transport,
		provider:  deps.Provider,
		sink:      deps.Sink,
		identity:  deps.Identity,
		expose:    deps.Expose,
		updates:   deps.Updates,
		directory: deps.Directory,
		protocol:  deps.ProtocolVersion,
		logger:    slog.Default(),
		observer:  nopObserver{},
		pending:   pending.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start fills in the message identities of every registered command, exposes
// the configured commands, subscribes to the transport and announces the
// peer. The loops run until ctx is done or Close is called.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.started {
		return ErrAlreadyStarted
	}

	d.registry.PopulateCommandValueObjects(func(cmd *registry.CommandDescriptor) {
		cmd.CommandMessageFQN = messaging.CommandFQN(cmd.Service, cmd.Name)
		cmd.DataMessageFQN = messaging.DataFQN(cmd.Service, cmd.Name)
	})

	for service, commands := range d.expose {
		for _, command := range commands {
			if err := d.registry.ExposeCommand(service, command); err != nil {
				return fmt.Errorf("%s - failed to expose %s::%s: %w", logPrefix, service, command, err)
			}
			d.logger.Info(fmt.Sprintf("%s - Exposed %s::%s", logPrefix, service, command))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	msgs, err := d.transport.Messages(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%s - failed to subscribe to transport: %w", logPrefix, err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return d.intake(gctx, msgs) })

	if d.updates != nil {
		updates, err := d.updates.Subscribe(gctx)
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("%s - failed to subscribe to peer updates: %w", logPrefix, err)
		}
		g.Go(func() error { return d.consumePeerUpdates(gctx, updates) })

		if err := d.updates.PublishPeerUpdated(gctx, d.announcement()); err != nil {
			d.logger.Warn(fmt.Sprintf("%s - failed to announce peer: %v", logPrefix, err))
		}
	}

	d.started = true
	d.cancel = cancel
	d.group = g
	d.logger.Info(fmt.Sprintf("%s - Started peer %s", logPrefix, d.identity.PeerID))
	return nil
}

func (d *Dispatcher) announcement() *events.PeerUpdated {
	return &events.PeerUpdated{
		PeerInfo:        d.identity,
		Services:        d.registry.Exposed(),
		ProtocolVersion: d.protocol,
		Timestamp:       time.Now().UTC(),
	}
}

// intake is the single consumer of the transport. Each message is handled in
// its own goroutine so a slow handler never blocks the next message.
func (d *Dispatcher) intake(ctx context.Context, msgs <-chan *messaging.Envelope) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-msgs:
			if !ok {
				d.logger.Info(fmt.Sprintf("%s - Transport closed the inbound stream", logPrefix))
				return nil
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			d.inflight.Add(1)
			go func() {
				defer d.inflight.Done()
				d.handle(ctx, env)
			}()
		}
	}
}

func (d *Dispatcher) consumePeerUpdates(ctx context.Context, updates <-chan *events.PeerUpdated) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.PeerInfo.PeerID == d.identity.PeerID || d.directory == nil {
				continue
			}
			_, known := d.directory.Get(u.PeerInfo.PeerID)
			if err := d.directory.Observe(u); err != nil {
				d.logger.Warn(fmt.Sprintf("%s - ignoring peer update: %v", logPrefix, err))
				continue
			}
			d.logger.Info(fmt.Sprintf("%s - Peer %s updated (%d services)", logPrefix, u.PeerInfo.PeerID, len(u.Services)))

			// A newcomer missed our start-up announcement.
			if !known {
				if err := d.updates.PublishPeerUpdated(ctx, d.announcement()); err != nil {
					d.logger.Warn(fmt.Sprintf("%s - failed to announce peer: %v", logPrefix, err))
				}
			}
		}
	}
}

// Wait blocks until the loops stop and every inbound message has been handled.
func (d *Dispatcher) Wait() error {
	d.mu.Lock()
	g := d.group
	d.mu.Unlock()

	var err error
	if g != nil {
		err = g.Wait()
	}
	d.inflight.Wait()
	return err
}

// Close stops intake, waits for in-flight handling and rejects every pending
// call with ErrClosed.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := d.Wait()

	for _, e := range d.pending.Drain() {
		e.Resolve(pending.Result{Err: ErrClosed})
		d.observer.CallSettled(e.Service, e.Command, OutcomeClosed)
	}
	d.logger.Info(fmt.Sprintf("%s - Stopped peer %s", logPrefix, d.identity.PeerID))
	return err
}

// IsExposed reports whether service command is remotely callable here.
func (d *Dispatcher) IsExposed(service valueobject.FQN, command string) bool {
	return d.registry.IsExposed(service, command)
}

// Identity returns the local peer.
func (d *Dispatcher) Identity() messaging.PeerInfo {
	return d.identity
}

// Peers returns the known remote peers, or nil without a directory.
func (d *Dispatcher) Peers() []*events.PeerUpdated {
	if d.directory == nil {
		return nil
	}
	return d.directory.List()
}

// PendingCount returns the number of calls awaiting a reply.
func (d *Dispatcher) PendingCount() int {
	return d.pending.Len()
}

// report writes obj to the sink. When the sink fails the record goes to the
// log under a generated reference, so callers always get one.
func (d *Dispatcher) report(ctx context.Context, obj valueobject.ErrorObject) string {
	d.observer.RecordReported(obj.FQN())
	ref, err := d.sink.Emit(ctx, obj)
	if err == nil {
		return ref
	}
	ref = newID()
	d.logger.Error(fmt.Sprintf("%s - sink failed (%v); record [%s] %s: %s", logPrefix, err, ref, obj.FQN(), obj.Error()))
	return ref
}
