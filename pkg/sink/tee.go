package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/morezero/command-runner/pkg/valueobject"
)

const teeLogPrefix = "sink:tee"

// Emitter is anything records can be written to.
type Emitter interface {
	Emit(ctx context.Context, obj valueobject.ErrorObject) (string, error)
}

// Tee writes every record to all of its sinks. The reference returned is the
// one from the first sink that succeeded.
type Tee struct {
	sinks []Emitter
}

// NewTee creates a tee over sinks, in priority order.
func NewTee(sinks ...Emitter) *Tee {
	return &Tee{sinks: sinks}
}

// Emit writes obj to every sink. It fails only when no sink accepted the record.
func (t *Tee) Emit(ctx context.Context, obj valueobject.ErrorObject) (string, error) {
	var (
		ref  string
		errs error
	)
	for _, s := range t.sinks {
		r, err := s.Emit(ctx, obj)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ref == "" {
			ref = r
		}
	}

	if ref == "" {
		if errs == nil {
			errs = errors.New("no sinks configured")
		}
		return "", fmt.Errorf("%s - %w", teeLogPrefix, errs)
	}
	if errs != nil {
		slog.Warn(fmt.Sprintf("%s - %d sink(s) failed for %s: %v", teeLogPrefix, len(multierr.Errors(errs)), ref, errs))
	}
	return ref, nil
}

// Find asks each sink that supports lookups, in order.
func (t *Tee) Find(ctx context.Context, ref string) (*Record, error) {
	var errs error
	for _, s := range t.sinks {
		f, ok := s.(Finder)
		if !ok {
			continue
		}
		rec, err := f.Find(ctx, ref)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}
