// Package dispatcher is the command runner: it serves inbound commands against
// the identity catalog and correlates replies to the commands this peer sent.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

// Transport moves envelopes. Messages returns a fresh subscription per call,
// closed when ctx is done.
type Transport interface {
	Send(ctx context.Context, env *messaging.Envelope) error
	Messages(ctx context.Context) (<-chan *messaging.Envelope, error)
}

// Provider resolves a service token to its instance. Instances must implement Service.
type Provider interface {
	Resolve(ctx context.Context, token registry.Token) (any, error)
}

// Sink stores a failure record and returns a reference to it.
type Sink interface {
	Emit(ctx context.Context, obj valueobject.ErrorObject) (string, error)
}

// Outcomes passed to an Observer.
const (
	OutcomeSuccess           = "success"
	OutcomeFailure           = "failure"
	OutcomeUnknownCommand    = "unknown_command"
	OutcomeUnavailable       = "service_unavailable"
	OutcomeInvalidParameters = "invalid_parameters"
	OutcomeInternalError     = "internal_error"
	OutcomeInvalidMessage    = "invalid_message"
	OutcomeTimeout           = "timeout"
	OutcomeCanceled          = "canceled"
	OutcomeClosed            = "closed"
)

// Observer receives dispatcher activity, typically to export metrics.
// Methods are called concurrently.
type Observer interface {
	// CommandHandled is called once per inbound command with the outcome replied.
	CommandHandled(service valueobject.FQN, command, outcome string, elapsed time.Duration)
	// CallSettled is called once per outbound call when it settles.
	CallSettled(service valueobject.FQN, command, outcome string)
	// RecordReported is called for every record written to the sink.
	RecordReported(fqn valueobject.FQN)
}

type nopObserver struct{}

func (nopObserver) CommandHandled(valueobject.FQN, string, string, time.Duration) {}
func (nopObserver) CallSettled(valueobject.FQN, string, string)                   {}
func (nopObserver) RecordReported(valueobject.FQN)                                {}

// Handler runs one command. param is nil for commands without a parameter.
// A returned error that is a declared failure of the command is replied as
// is; any other error is treated as an unexpected failure.
type Handler func(ctx context.Context, param valueobject.ValueObject) (valueobject.ValueObject, error)

// Service exposes the handlers of a service instance by command name.
type Service interface {
	Handler(command string) (Handler, bool)
}

// Handlers is a Service backed by a map.
type Handlers map[string]Handler

// Handler implements Service.
func (h Handlers) Handler(command string) (Handler, bool) {
	fn, ok := h[command]
	return fn, ok && fn != nil
}

// Typed adapts a handler taking a concrete parameter type.
func Typed[P valueobject.ValueObject](fn func(ctx context.Context, param P) (valueobject.ValueObject, error)) Handler {
	return func(ctx context.Context, param valueobject.ValueObject) (valueobject.ValueObject, error) {
		p, ok := param.(P)
		if !ok {
			var zero P
			return nil, fmt.Errorf("dispatcher: handler expects %T, got %T", zero, param)
		}
		return fn(ctx, p)
	}
}
