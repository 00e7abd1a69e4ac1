package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/pending"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const callLogPrefix = "dispatcher:call"

// Failure wraps a declared failure reply whose value is not itself an error.
type Failure struct {
	Value valueobject.ValueObject
}

func (f *Failure) Error() string {
	return fmt.Sprintf("command failed with %s", f.Value.FQN())
}

// Call is the handle of one outbound command.
type Call struct {
	Envelope *messaging.Envelope

	d      *Dispatcher
	key    pending.Key
	done   chan struct{}
	once   sync.Once
	result pending.Result

	timerMu sync.Mutex
	timer   *time.Timer
}

func (c *Call) settle(r pending.Result) {
	c.once.Do(func() {
		c.result = r
		c.stopTimer()
		close(c.done)
	})
}

func (c *Call) stopTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}

// Done is closed once the call is settled.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result returns the settled outcome. It is only meaningful after Done is closed.
func (c *Call) Result() pending.Result {
	<-c.done
	return c.result
}

// Wait blocks until the reply arrives or ctx is done. A success reply is
// returned as the value. A declared failure reply is returned as the error:
// the value itself when it implements error, a *Failure otherwise. Giving
// up on ctx leaves the call pending; use Cancel to abandon it.
func (c *Call) Wait(ctx context.Context) (valueobject.ValueObject, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r := c.result
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Variant.IsFailure() {
		if err, ok := r.Value.(error); ok {
			return nil, err
		}
		return nil, &Failure{Value: r.Value}
	}
	return r.Value, nil
}

// Cancel abandons the call. A reply arriving later is reported as unknown.
func (c *Call) Cancel() {
	if e, ok := c.d.pending.Delete(c.key); ok {
		c.settle(pending.Result{Err: ErrCanceled})
		c.d.observer.CallSettled(e.Service, e.Command, OutcomeCanceled)
	}
}

// Await waits for c and returns its success value as S.
func Await[S valueobject.ValueObject](ctx context.Context, c *Call) (S, error) {
	var zero S
	v, err := c.Wait(ctx)
	if err != nil {
		return zero, err
	}
	s, ok := v.(S)
	if !ok {
		return zero, fmt.Errorf("%s - reply %s is not %T", callLogPrefix, v.FQN(), zero)
	}
	return s, nil
}

// SendCommand records env as pending and sends it. The caller's catalog must
// know the command so the reply can be checked against its return set.
func (d *Dispatcher) SendCommand(ctx context.Context, env *messaging.Envelope) (*Call, error) {
	if env.Kind() != messaging.KindCommand {
		return nil, fmt.Errorf("%w: %s", ErrNotCommand, env.Name)
	}
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%s - %w", callLogPrefix, err)
	}
	payload, err := env.DecodeCommand()
	if err != nil {
		return nil, err
	}
	cfg, ok := d.registry.GetCommandConfig(payload.ServiceFQN, payload.Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s::%s", ErrCommandNotRegistered, payload.ServiceFQN, payload.Command)
	}

	call := &Call{Envelope: env, d: d, key: pending.KeyOf(env), done: make(chan struct{})}
	entry := &pending.Entry{
		Key:      call.key,
		Service:  cfg.Service,
		Command:  cfg.Name,
		Expected: cfg.Returns,
		Resolve:  call.settle,
	}
	if err := d.track(entry); err != nil {
		if errors.Is(err, pending.ErrDuplicateID) {
			return nil, fmt.Errorf("%w: %s to %s", ErrDuplicateCommandID, env.ID, env.Destination)
		}
		return nil, err
	}

	if d.timeout > 0 {
		call.timerMu.Lock()
		call.timer = time.AfterFunc(d.timeout, func() {
			if _, ok := d.pending.Delete(call.key); ok {
				d.logger.Warn(fmt.Sprintf("%s - %s id=%s to %s timed out after %s", callLogPrefix, env.Name, env.ID, env.Destination, d.timeout))
				call.settle(pending.Result{Err: ErrRequestTimeout})
				d.observer.CallSettled(cfg.Service, cfg.Name, OutcomeTimeout)
			}
		})
		call.timerMu.Unlock()
	}

	if err := d.transport.Send(ctx, env); err != nil {
		d.pending.Delete(call.key)
		call.stopTimer()
		return nil, fmt.Errorf("%s - failed to send %s id=%s: %w", callLogPrefix, env.Name, env.ID, err)
	}
	return call, nil
}

// track adds entry unless the dispatcher is closed. Close sets the flag under
// the same lock before draining, so every tracked entry is settled.
func (d *Dispatcher) track(entry *pending.Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	return d.pending.Add(entry)
}

// Call sends service command with param to dest under a fresh id.
func (d *Dispatcher) Call(ctx context.Context, dest messaging.PeerAddress, service valueobject.FQN, command string, param valueobject.ValueObject) (*Call, error) {
	env, err := messaging.NewCommand(newID(), d.identity.Address(0), dest, service, command, param)
	if err != nil {
		return nil, err
	}
	return d.SendCommand(ctx, env)
}
