package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/morezero/command-runner/pkg/valueobject"
)

// MemorySink keeps records in emission order.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
	objects []valueobject.ErrorObject
	byRef   map[string]int
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{byRef: make(map[string]int)}
}

// Emit stores obj.
func (s *MemorySink) Emit(_ context.Context, obj valueobject.ErrorObject) (string, error) {
	rec := newRecord(uuid.NewString(), obj)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRef[rec.Ref] = len(s.records)
	s.records = append(s.records, rec)
	s.objects = append(s.objects, obj)
	return rec.Ref, nil
}

// Records returns a copy of every record.
func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

// Objects returns the emitted values themselves.
func (s *MemorySink) Objects() []valueobject.ErrorObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]valueobject.ErrorObject(nil), s.objects...)
}

// Get returns the value emitted under ref.
func (s *MemorySink) Get(ref string) (valueobject.ErrorObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byRef[ref]
	if !ok {
		return nil, false
	}
	return s.objects[i], true
}

// Find implements Finder.
func (s *MemorySink) Find(_ context.Context, ref string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byRef[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	rec := s.records[i]
	return &rec, nil
}

// Len returns the number of records.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
