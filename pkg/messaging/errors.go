package messaging

import (
	"fmt"

	"github.com/morezero/command-runner/pkg/valueobject"
)

// Errors that are safe to reveal to a remote caller. Each one is part of every
// command's declared return set.

// UnknownCommand answers a command naming no registered service command.
type UnknownCommand struct {
	Context *CommandPayload `json:"context"`
}

func (UnknownCommand) FQN() valueobject.FQN { return "Core::ValueObject::Error::UnknownCommand" }

func (e UnknownCommand) Error() string {
	if e.Context == nil {
		return "unknown command"
	}
	return fmt.Sprintf("unknown command %s::%s", e.Context.ServiceFQN, e.Context.Command)
}

// ServiceUnavailable answers a registered command this deployment does not expose.
type ServiceUnavailable struct {
	Context *Envelope `json:"context"`
}

func (ServiceUnavailable) FQN() valueobject.FQN {
	return "Core::ValueObject::Error::ServiceUnavailable"
}

func (e ServiceUnavailable) Error() string { return "service unavailable" }

// InvalidParameters answers a command whose argument identity differs from the declared one.
type InvalidParameters struct {
	ExpectedFQN valueobject.FQN `json:"expectedFQN"`
	Context     *Envelope       `json:"context"`
}

func (InvalidParameters) FQN() valueobject.FQN {
	return "Core::ValueObject::Error::InvalidParameters"
}

func (e InvalidParameters) Error() string {
	return fmt.Sprintf("invalid parameters, expected %q", e.ExpectedFQN)
}

// InternalError hides an operational failure. Ref points at the detailed
// record kept by the replying peer's error sink.
type InternalError struct {
	Ref string `json:"ref"`
}

func (InternalError) FQN() valueobject.FQN { return "Core::ValueObject::Error::InternalError" }

func (e InternalError) Error() string { return fmt.Sprintf("internal error (ref %s)", e.Ref) }

var (
	UnknownCommandType     = valueobject.Define[UnknownCommand](`{"type": "object"}`)
	ServiceUnavailableType = valueobject.Define[ServiceUnavailable](`{"type": "object"}`)
	InvalidParametersType  = valueobject.Define[InvalidParameters](`{
		"type": "object",
		"properties": {"expectedFQN": {"type": "string"}},
		"required": ["expectedFQN"]
	}`)
	InternalErrorType = valueobject.Define[InternalError](`{
		"type": "object",
		"properties": {"ref": {"type": "string"}},
		"required": ["ref"]
	}`)
)

// StandardErrors lists the errors any command reply may carry besides its own
// declared values.
func StandardErrors() []valueobject.Constructor {
	return []valueobject.Constructor{
		UnknownCommandType,
		ServiceUnavailableType,
		InvalidParametersType,
		InternalErrorType,
	}
}
