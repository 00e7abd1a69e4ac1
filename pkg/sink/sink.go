// Package sink records failures the dispatcher handles locally and hands back
// a reference the remote caller can quote.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/morezero/command-runner/pkg/valueobject"
)

// ErrNotFound is returned by Find for unknown references.
var ErrNotFound = errors.New("sink: record not found")

// Record is a stored failure.
type Record struct {
	Ref     string          `json:"ref"`
	FQN     valueobject.FQN `json:"fqn"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	Created time.Time       `json:"created"`
}

// Finder looks records up by reference.
type Finder interface {
	Find(ctx context.Context, ref string) (*Record, error)
}

// newRecord captures obj. A value that cannot be serialized keeps its message only.
func newRecord(ref string, obj valueobject.ErrorObject) Record {
	detail, err := json.Marshal(obj)
	if err != nil {
		detail = nil
	}
	return Record{
		Ref:     ref,
		FQN:     obj.FQN(),
		Message: obj.Error(),
		Detail:  detail,
		Created: time.Now().UTC(),
	}
}
