package dispatcher

import (
	"fmt"
	"strings"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

// Records written to the error sink. They never leave this peer.

// ServiceNotInjected: the provider could not produce the service instance.
type ServiceNotInjected struct {
	Token   registry.Token      `json:"token"`
	Cause   string              `json:"error"`
	Context *messaging.Envelope `json:"context"`
}

func (ServiceNotInjected) FQN() valueobject.FQN {
	return "Runner::ValueObject::Error::ServiceNotInjected"
}

func (e ServiceNotInjected) Error() string {
	return fmt.Sprintf("service %s not injected: %s", e.Token, e.Cause)
}

// CommandNotFound: the instance has no handler for a registered command.
type CommandNotFound struct {
	Service valueobject.FQN     `json:"service"`
	Command string              `json:"command"`
	Context *messaging.Envelope `json:"context"`
}

func (CommandNotFound) FQN() valueobject.FQN { return "Runner::ValueObject::Error::CommandNotFound" }

func (e CommandNotFound) Error() string {
	return fmt.Sprintf("service %s has no handler for %s", e.Service, e.Command)
}

// UnexpectedError: the handler failed outside its declared failures, or panicked.
type UnexpectedError struct {
	Cause   string              `json:"error"`
	Context *messaging.Envelope `json:"context"`
}

func (UnexpectedError) FQN() valueobject.FQN { return "Runner::ValueObject::Error::UnexpectedError" }

func (e UnexpectedError) Error() string { return "unexpected error: " + e.Cause }

// InvalidReturn: the handler returned a value outside the declared return set.
type InvalidReturn struct {
	ExpectedFQNs []valueobject.FQN   `json:"expectedFQNs"`
	ActualFQN    valueobject.FQN     `json:"actualFQN"`
	Context      *messaging.Envelope `json:"context"`
}

func (InvalidReturn) FQN() valueobject.FQN { return "Runner::ValueObject::Error::InvalidReturn" }

func (e InvalidReturn) Error() string {
	return fmt.Sprintf("invalid return %q, expected one of %s", e.ActualFQN, joinFQNs(e.ExpectedFQNs))
}

// InvalidMessage: an envelope that is neither a command nor a data message, or is malformed.
type InvalidMessage struct {
	Reason  string              `json:"reason"`
	Context *messaging.Envelope `json:"context"`
}

func (InvalidMessage) FQN() valueobject.FQN { return "Runner::ValueObject::Error::InvalidMessage" }

func (e InvalidMessage) Error() string { return "invalid message: " + e.Reason }

// UnknownCommID: a reply matching no pending command.
type UnknownCommID struct {
	Context *messaging.Envelope `json:"context"`
}

func (UnknownCommID) FQN() valueobject.FQN { return "Runner::ValueObject::Error::UnknownCommID" }

func (e UnknownCommID) Error() string {
	if e.Context == nil {
		return "unknown command id"
	}
	return fmt.Sprintf("unknown command id %s from %s", e.Context.ID, e.Context.Origin)
}

// InvalidData: a reply whose payload is not a declared return of the pending command.
type InvalidData struct {
	ExpectedFQN valueobject.FQN     `json:"expectedFQN"`
	Reason      string              `json:"reason"`
	Context     *messaging.Envelope `json:"context"`
}

func (InvalidData) FQN() valueobject.FQN { return "Runner::ValueObject::Error::InvalidData" }

func (e InvalidData) Error() string {
	return fmt.Sprintf("invalid data, expected %q: %s", e.ExpectedFQN, e.Reason)
}

func joinFQNs(fqns []valueobject.FQN) string {
	parts := make([]string, len(fqns))
	for i, f := range fqns {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
