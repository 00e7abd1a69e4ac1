// Package valueobject defines typed values identified by fully-qualified names,
// their JSON-schema backed constructors, and the typed wire form used in envelopes.
package valueobject

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FQN is a fully-qualified, hierarchical name such as "Test::ValueObject::Count".
type FQN string

// ValueObject is any value that carries its own type identity.
type ValueObject interface {
	FQN() FQN
}

// ErrorObject is a value object that is also a Go error. Failure variants of a
// command and every record written to an error sink are error objects.
type ErrorObject interface {
	ValueObject
	error
}

// Constructor rebuilds and recognizes values of one identity.
type Constructor interface {
	FQN() FQN
	// Decode parses raw JSON into a value, rejecting anything that does not match the shape.
	Decode(raw json.RawMessage) (ValueObject, error)
	// Is reports whether v is a value of this identity.
	Is(v ValueObject) bool
}

// IsError reports whether the name sits in an Error namespace.
func (n FQN) IsError() bool {
	return strings.Contains(string(n), "::Error::")
}

// String implements fmt.Stringer.
func (n FQN) String() string {
	return string(n)
}

// Typed is the wire form of a value object: its identity next to its JSON value.
type Typed struct {
	FQN   FQN             `json:"fqn"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Encode converts a value object to its wire form. A nil value encodes to nil.
func Encode(v ValueObject) (*Typed, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("valueobject:encode - failed to encode %s: %w", v.FQN(), err)
	}
	return &Typed{FQN: v.FQN(), Value: raw}, nil
}

// MustEncode is Encode for values known to be serializable.
func MustEncode(v ValueObject) *Typed {
	t, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return t
}

// IsNull reports whether t carries no value.
func (t *Typed) IsNull() bool {
	return t == nil || t.FQN == ""
}

// FQNOf returns the identity of a possibly nil typed value.
func FQNOf(t *Typed) FQN {
	if t == nil {
		return ""
	}
	return t.FQN
}
