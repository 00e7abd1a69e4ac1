package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/command-runner/pkg/db"
	"github.com/morezero/command-runner/pkg/valueobject"
)

type boom struct {
	Reason string `json:"reason"`
}

func (boom) FQN() valueobject.FQN { return "Test::ValueObject::Error::Boom" }
func (b boom) Error() string      { return "boom: " + b.Reason }

type failingSink struct{ err error }

func (f failingSink) Emit(context.Context, valueobject.ErrorObject) (string, error) {
	return "", f.err
}

type fakeStore struct {
	rows map[string]db.InsertErrorRecordParams
	err  error
}

func (f *fakeStore) InsertErrorRecord(_ context.Context, p db.InsertErrorRecordParams) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id := "row-1"
	f.rows[id] = p
	return id, nil
}

func (f *fakeStore) GetErrorRecord(_ context.Context, id string) (*db.ErrorRecord, error) {
	p, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &db.ErrorRecord{ID: id, FQN: p.FQN, Message: p.Message, PeerID: p.PeerID, Record: p.Record, Created: time.Now()}, nil
}

func TestLogSink_Emit(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	ref, err := s.Emit(context.Background(), boom{Reason: "disk"})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Contains(t, buf.String(), ref)
	assert.Contains(t, buf.String(), "Test::ValueObject::Error::Boom")
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	ref1, err := s.Emit(ctx, boom{Reason: "a"})
	require.NoError(t, err)
	ref2, _ := s.Emit(ctx, boom{Reason: "b"})
	assert.NotEqual(t, ref1, ref2)
	assert.Equal(t, 2, s.Len())

	obj, ok := s.Get(ref2)
	require.True(t, ok)
	assert.Equal(t, boom{Reason: "b"}, obj)

	rec, err := s.Find(ctx, ref1)
	require.NoError(t, err)
	assert.Equal(t, "boom: a", rec.Message)
	assert.JSONEq(t, `{"reason":"a"}`, string(rec.Detail))

	_, err = s.Find(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresSink(t *testing.T) {
	store := &fakeStore{rows: map[string]db.InsertErrorRecordParams{}}
	s := NewPostgresSink(store, "ID")
	ctx := context.Background()

	ref, err := s.Emit(ctx, boom{Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, "row-1", ref)
	assert.Equal(t, "ID", store.rows[ref].PeerID)

	var detail map[string]string
	require.NoError(t, json.Unmarshal(store.rows[ref].Record, &detail))
	assert.Equal(t, "x", detail["reason"])

	rec, err := s.Find(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, valueobject.FQN("Test::ValueObject::Error::Boom"), rec.FQN)

	_, err = s.Find(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	store.err = errors.New("connection refused")
	_, err = s.Emit(ctx, boom{})
	assert.Error(t, err)
}

func TestTee(t *testing.T) {
	ctx := context.Background()
	mem := NewMemorySink()

	tee := NewTee(failingSink{err: errors.New("down")}, mem)
	ref, err := tee.Emit(ctx, boom{Reason: "t"})
	require.NoError(t, err, "one working sink is enough")
	_, ok := mem.Get(ref)
	assert.True(t, ok, "reference should come from the sink that stored the record")

	rec, err := tee.Find(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, rec.Ref)

	allDown := NewTee(failingSink{err: errors.New("a")}, failingSink{err: errors.New("b")})
	_, err = allDown.Emit(ctx, boom{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")

	_, err = NewTee().Emit(ctx, boom{})
	assert.Error(t, err)

	_, err = NewTee(mem).Find(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
