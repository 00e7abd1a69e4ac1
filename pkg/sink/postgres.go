package sink

import (
	"context"
	"fmt"

	"github.com/morezero/command-runner/pkg/db"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const postgresLogPrefix = "sink:postgres"

// Store is the part of db.Repository the sink needs.
type Store interface {
	InsertErrorRecord(ctx context.Context, params db.InsertErrorRecordParams) (string, error)
	GetErrorRecord(ctx context.Context, id string) (*db.ErrorRecord, error)
}

// PostgresSink stores records in the error_records table. The row id is the reference.
type PostgresSink struct {
	store  Store
	peerID string
}

// NewPostgresSink creates a sink tagging rows with peerID.
func NewPostgresSink(store Store, peerID string) *PostgresSink {
	return &PostgresSink{store: store, peerID: peerID}
}

// Emit inserts obj.
func (s *PostgresSink) Emit(ctx context.Context, obj valueobject.ErrorObject) (string, error) {
	rec := newRecord("", obj)
	id, err := s.store.InsertErrorRecord(ctx, db.InsertErrorRecordParams{
		FQN:     string(rec.FQN),
		Message: rec.Message,
		PeerID:  s.peerID,
		Record:  rec.Detail,
	})
	if err != nil {
		return "", fmt.Errorf("%s - %w", postgresLogPrefix, err)
	}
	return id, nil
}

// Find implements Finder.
func (s *PostgresSink) Find(ctx context.Context, ref string) (*Record, error) {
	row, err := s.store.GetErrorRecord(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", postgresLogPrefix, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return &Record{
		Ref:     row.ID,
		FQN:     valueobject.FQN(row.FQN),
		Message: row.Message,
		Detail:  row.Record,
		Created: row.Created,
	}, nil
}
