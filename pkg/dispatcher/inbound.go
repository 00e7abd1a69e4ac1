package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/pending"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const inboundLogPrefix = "dispatcher:inbound"

func newID() string {
	return uuid.NewString()
}

// handle routes one inbound envelope by its identity prefix.
func (d *Dispatcher) handle(ctx context.Context, env *messaging.Envelope) {
	if err := env.Validate(); err != nil {
		d.report(ctx, InvalidMessage{Reason: err.Error(), Context: env})
		return
	}

	switch env.Kind() {
	case messaging.KindCommand:
		d.handleCommand(ctx, env)
	case messaging.KindData:
		d.handleReply(ctx, env)
	default:
		d.report(ctx, InvalidMessage{Reason: fmt.Sprintf("unrecognized message identity %q", env.Name), Context: env})
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, env *messaging.Envelope) {
	start := time.Now()
	var (
		service valueobject.FQN
		command string
		outcome = OutcomeInvalidMessage
	)
	defer func() { d.observer.CommandHandled(service, command, outcome, time.Since(start)) }()

	payload, err := env.DecodeCommand()
	if err != nil {
		d.report(ctx, InvalidMessage{Reason: err.Error(), Context: env})
		return
	}

	cfg, ok := d.registry.GetCommandConfig(payload.ServiceFQN, payload.Command)
	if !ok || !d.matchesCommand(env, cfg) {
		outcome = OutcomeUnknownCommand
		d.reply(ctx, env, messaging.UnknownCommandMessage, messaging.UnknownCommand{Context: payload})
		return
	}
	service, command = cfg.Service, cfg.Name
	dataFQN := cfg.DataMessageFQN
	if dataFQN == "" {
		dataFQN = messaging.DataFQN(cfg.Service, cfg.Name)
	}

	if !cfg.Exposed {
		outcome = OutcomeUnavailable
		d.reply(ctx, env, dataFQN, messaging.ServiceUnavailable{Context: env})
		return
	}

	param, ok := d.decodeParam(cfg, payload.Param)
	if !ok {
		outcome = OutcomeInvalidParameters
		d.reply(ctx, env, dataFQN, messaging.InvalidParameters{ExpectedFQN: cfg.ParamFQN, Context: env})
		return
	}

	token, _ := d.registry.GetServiceToken(cfg.Service)
	outcome = OutcomeInternalError
	instance, err := d.provider.Resolve(ctx, token)
	if err != nil {
		ref := d.report(ctx, ServiceNotInjected{Token: token, Cause: err.Error(), Context: env})
		d.reply(ctx, env, dataFQN, messaging.InternalError{Ref: ref})
		return
	}

	var handler Handler
	if svc, isService := instance.(Service); isService {
		handler, ok = svc.Handler(cfg.Name)
	} else {
		ok = false
	}
	if !ok {
		ref := d.report(ctx, CommandNotFound{Service: cfg.Service, Command: cfg.Name, Context: env})
		d.reply(ctx, env, dataFQN, messaging.InternalError{Ref: ref})
		return
	}

	out, err := invoke(ctx, handler, param)
	if err != nil {
		var failure valueobject.ErrorObject
		if errors.As(err, &failure) {
			if variant, declared := cfg.Returns.Match(failure); declared && variant.IsFailure() {
				outcome = OutcomeFailure
				d.reply(ctx, env, dataFQN, failure)
				return
			}
		}
		ref := d.report(ctx, UnexpectedError{Cause: err.Error(), Context: env})
		d.reply(ctx, env, dataFQN, messaging.InternalError{Ref: ref})
		return
	}

	if _, declared := cfg.Returns.Match(out); !declared {
		actual := valueobject.FQN("")
		if out != nil {
			actual = out.FQN()
		}
		ref := d.report(ctx, InvalidReturn{ExpectedFQNs: cfg.ReturnFQNs, ActualFQN: actual, Context: env})
		d.reply(ctx, env, dataFQN, messaging.InternalError{Ref: ref})
		return
	}

	outcome = OutcomeSuccess
	if variant, _ := cfg.Returns.Match(out); variant.IsFailure() {
		outcome = OutcomeFailure
	}
	d.reply(ctx, env, dataFQN, out)
}

// matchesCommand checks the envelope identity against the command it names.
func (d *Dispatcher) matchesCommand(env *messaging.Envelope, cfg registry.CommandDescriptor) bool {
	want := cfg.CommandMessageFQN
	if want == "" {
		want = messaging.CommandFQN(cfg.Service, cfg.Name)
	}
	return env.Name == want
}

// decodeParam checks the argument identity against the declared one and
// rebuilds the value.
func (d *Dispatcher) decodeParam(cfg registry.CommandDescriptor, typed *valueobject.Typed) (valueobject.ValueObject, bool) {
	if valueobject.FQNOf(typed) != cfg.ParamFQN {
		return nil, false
	}
	if cfg.Param == nil {
		return nil, true
	}
	v, err := cfg.Param.Decode(typed.Value)
	if err != nil {
		d.logger.Debug(fmt.Sprintf("%s - parameter of %s::%s rejected: %v", inboundLogPrefix, cfg.Service, cfg.Name, err))
		return nil, false
	}
	return v, true
}

// invoke runs the handler, turning a panic into an error.
func invoke(ctx context.Context, h Handler, param valueobject.ValueObject) (out valueobject.ValueObject, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, param)
}

// reply sends the single data envelope answering trigger.
func (d *Dispatcher) reply(ctx context.Context, trigger *messaging.Envelope, name valueobject.FQN, payload valueobject.ValueObject) {
	env, err := messaging.NewReply(trigger, name, payload)
	if err != nil {
		ref := d.report(ctx, UnexpectedError{Cause: err.Error(), Context: trigger})
		env, err = messaging.NewReply(trigger, name, messaging.InternalError{Ref: ref})
		if err != nil {
			d.logger.Error(fmt.Sprintf("%s - cannot build reply to %s: %v", inboundLogPrefix, trigger.ID, err))
			return
		}
	}
	if err := d.transport.Send(ctx, env); err != nil {
		d.logger.Error(fmt.Sprintf("%s - failed to send reply %s to %s: %v", inboundLogPrefix, env.ID, env.Destination, err))
		return
	}
	d.logger.Debug(fmt.Sprintf("%s - Replied %s id=%s to %s", inboundLogPrefix, payload.FQN(), env.ID, env.Destination))
}

// handleReply settles the pending call a data envelope answers. Replies that
// match nothing, or carry an undeclared value, are reported and dropped;
// the pending call stays open.
func (d *Dispatcher) handleReply(ctx context.Context, env *messaging.Envelope) {
	key := pending.ReplyKeyOf(env)
	entry, ok := d.pending.Get(key)
	if !ok {
		d.report(ctx, UnknownCommID{Context: env})
		return
	}

	expected := valueobject.FQN("")
	if entry.Expected.Success != nil {
		expected = entry.Expected.Success.FQN()
	}

	typed, err := env.DecodeData()
	if err != nil {
		d.report(ctx, InvalidData{ExpectedFQN: expected, Reason: err.Error(), Context: env})
		return
	}
	value, err := entry.Expected.Decode(typed)
	if err != nil {
		d.report(ctx, InvalidData{ExpectedFQN: expected, Reason: err.Error(), Context: env})
		return
	}
	variant, _ := entry.Expected.Match(value)

	if _, ok := d.pending.Delete(key); !ok {
		// Settled concurrently by a duplicate reply, a timeout or a cancel.
		return
	}
	outcome := OutcomeSuccess
	if variant.IsFailure() {
		outcome = OutcomeFailure
		if _, internal := value.(messaging.InternalError); internal {
			outcome = OutcomeInternalError
		}
	}
	d.observer.CallSettled(entry.Service, entry.Command, outcome)
	entry.Resolve(pending.Result{Value: value, Variant: variant})
}
