package valueobject

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError describes a value that does not match its declared shape.
type ValidationError struct {
	FQN     FQN      `json:"fqn"`
	Details []string `json:"details"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("value of %s failed validation: %s", e.FQN, strings.Join(e.Details, "; "))
}

// Type is the constructor for values of the Go type T. T should use value
// receivers so that its zero value can report the identity.
type Type[T ValueObject] struct {
	fqn    FQN
	schema *gojsonschema.Schema
}

var _ Constructor = (*Type[ValueObject])(nil)

// NewType compiles a constructor for T. An empty schema accepts any JSON that
// unmarshals into T; otherwise the value must satisfy the JSON Schema document.
func NewType[T ValueObject](schema string) (*Type[T], error) {
	var zero T
	fqn := zero.FQN()
	if fqn == "" {
		return nil, fmt.Errorf("valueobject:type - %T reports an empty FQN", zero)
	}

	t := &Type[T]{fqn: fqn}
	if schema != "" {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
		if err != nil {
			return nil, fmt.Errorf("valueobject:type - invalid schema for %s: %w", fqn, err)
		}
		t.schema = compiled
	}
	return t, nil
}

// Define is NewType for package-level declarations; it panics on a bad schema.
func Define[T ValueObject](schema string) *Type[T] {
	t, err := NewType[T](schema)
	if err != nil {
		panic(err)
	}
	return t
}

// FQN returns the identity of values built by t.
func (t *Type[T]) FQN() FQN {
	return t.fqn
}

// Parse validates raw against the schema and unmarshals it into T.
func (t *Type[T]) Parse(raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	if t.schema != nil {
		result, err := t.schema.Validate(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return out, &ValidationError{FQN: t.fqn, Details: []string{err.Error()}}
		}
		if !result.Valid() {
			details := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				details = append(details, desc.String())
			}
			return out, &ValidationError{FQN: t.fqn, Details: details}
		}
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &ValidationError{FQN: t.fqn, Details: []string{err.Error()}}
	}
	return out, nil
}

// Decode implements Constructor.
func (t *Type[T]) Decode(raw json.RawMessage) (ValueObject, error) {
	v, err := t.Parse(raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeTyped decodes a wire value after checking its identity.
func (t *Type[T]) DecodeTyped(typed *Typed) (T, error) {
	var zero T
	if FQNOf(typed) != t.fqn {
		return zero, &ValidationError{FQN: t.fqn, Details: []string{fmt.Sprintf("got identity %q", FQNOf(typed))}}
	}
	return t.Parse(typed.Value)
}

// Is implements Constructor.
func (t *Type[T]) Is(v ValueObject) bool {
	if v == nil {
		return false
	}
	_, ok := v.(T)
	return ok && v.FQN() == t.fqn
}
