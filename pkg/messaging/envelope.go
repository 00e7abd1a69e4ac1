// Package messaging defines the envelopes exchanged between peers: command
// messages carrying a call, and data messages carrying its reply.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "messaging:envelope"

// Envelope identities are routed purely by these prefixes.
const (
	CommandPrefix = "Message::Command::"
	DataPrefix    = "Message::Data::"
)

// UnknownCommandMessage is the data identity used to answer a command that
// names no registered service command.
const UnknownCommandMessage valueobject.FQN = DataPrefix + "UnknownCommand"

// Kind classifies an envelope by its identity prefix.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindCommand
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindData:
		return "data"
	default:
		return "unrecognized"
	}
}

// Classify returns the kind of an envelope identity.
func Classify(name valueobject.FQN) Kind {
	switch {
	case strings.HasPrefix(string(name), CommandPrefix):
		return KindCommand
	case strings.HasPrefix(string(name), DataPrefix):
		return KindData
	default:
		return KindUnrecognized
	}
}

// CommandFQN is the command message identity of a service command.
func CommandFQN(service valueobject.FQN, command string) valueobject.FQN {
	return valueobject.FQN(fmt.Sprintf("%s%s::%s", CommandPrefix, service, command))
}

// DataFQN is the data message identity of a service command.
func DataFQN(service valueobject.FQN, command string) valueobject.FQN {
	return valueobject.FQN(fmt.Sprintf("%s%s::%s", DataPrefix, service, command))
}

// Envelope is the routing record around a payload. Envelopes are immutable
// once built; replies are new envelopes.
type Envelope struct {
	Name        valueobject.FQN `json:"fqn"`
	ID          string          `json:"id"`
	Sequence    uint64          `json:"sequence"`
	Length      uint64          `json:"length"`
	End         bool            `json:"end"`
	Origin      PeerAddress     `json:"origin"`
	Destination PeerAddress     `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
}

// FQN implements valueobject.ValueObject.
func (e *Envelope) FQN() valueobject.FQN {
	return e.Name
}

// Kind classifies the envelope.
func (e *Envelope) Kind() Kind {
	return Classify(e.Name)
}

// Validate checks the framing fields.
func (e *Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("messaging: envelope id is empty")
	}
	if e.Length < 1 {
		return fmt.Errorf("messaging: envelope %s has length %d", e.ID, e.Length)
	}
	if e.Sequence >= e.Length {
		return fmt.Errorf("messaging: envelope %s has sequence %d beyond length %d", e.ID, e.Sequence, e.Length)
	}
	return nil
}

// CommandPayload names the service command being invoked and its argument.
type CommandPayload struct {
	ServiceFQN valueobject.FQN    `json:"serviceFQN"`
	Command    string             `json:"command"`
	Param      *valueobject.Typed `json:"param,omitempty"`
}

// NewCommand builds a single-part command envelope.
func NewCommand(id string, origin, destination PeerAddress, service valueobject.FQN, command string, param valueobject.ValueObject) (*Envelope, error) {
	typed, err := valueobject.Encode(param)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	payload, err := json.Marshal(&CommandPayload{ServiceFQN: service, Command: command, Param: typed})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode command payload: %w", logPrefix, err)
	}
	return &Envelope{
		Name:        CommandFQN(service, command),
		ID:          id,
		Sequence:    0,
		Length:      1,
		End:         true,
		Origin:      origin,
		Destination: destination,
		Payload:     payload,
	}, nil
}

// NewReply builds the single-part data envelope answering trigger. Addressing
// is echoed back: the reply travels from the trigger's destination to its origin.
func NewReply(trigger *Envelope, name valueobject.FQN, payload valueobject.ValueObject) (*Envelope, error) {
	typed, err := valueobject.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	raw, err := json.Marshal(typed)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode reply payload: %w", logPrefix, err)
	}
	return &Envelope{
		Name:        name,
		ID:          trigger.ID,
		Sequence:    0,
		Length:      1,
		End:         true,
		Origin:      trigger.Destination,
		Destination: trigger.Origin,
		Payload:     raw,
	}, nil
}

// DecodeCommand parses the payload of a command envelope.
func (e *Envelope) DecodeCommand() (*CommandPayload, error) {
	var p CommandPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("%s - malformed command payload: %w", logPrefix, err)
	}
	return &p, nil
}

// DecodeData parses the payload of a data envelope.
func (e *Envelope) DecodeData() (*valueobject.Typed, error) {
	var t valueobject.Typed
	if err := json.Unmarshal(e.Payload, &t); err != nil {
		return nil, fmt.Errorf("%s - malformed data payload: %w", logPrefix, err)
	}
	return &t, nil
}
