// Package pending tracks outbound commands awaiting their reply.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/valueobject"
)

// ErrDuplicateID is returned when a key is already in flight.
var ErrDuplicateID = errors.New("pending: duplicate command id")

// Key identifies an in-flight command by its destination and id.
type Key struct {
	PeerID messaging.PeerID
	Host   string
	ID     string
}

// KeyOf returns the key of a command sent to env.Destination.
func KeyOf(env *messaging.Envelope) Key {
	return Key{PeerID: env.Destination.PeerID, Host: env.Destination.Host, ID: env.ID}
}

// ReplyKeyOf returns the key a reply env answers; replies travel back from the destination.
func ReplyKeyOf(env *messaging.Envelope) Key {
	return Key{PeerID: env.Origin.PeerID, Host: env.Origin.Host, ID: env.ID}
}

// Result is what a pending entry is settled with.
type Result struct {
	Value   valueobject.ValueObject
	Variant valueobject.Variant
	Err     error
}

// Entry is one in-flight command.
type Entry struct {
	Key      Key
	Service  valueobject.FQN
	Command  string
	Expected valueobject.Returns
	Resolve  func(Result)
	Created  time.Time
}

// Table is a peer → host → id index of in-flight commands.
type Table struct {
	mu      sync.Mutex
	entries map[messaging.PeerID]map[string]map[string]*Entry
	size    int
}

// New creates an empty table.
func New() *Table {
	return &Table{entries: make(map[messaging.PeerID]map[string]map[string]*Entry)}
}

// Add records e. It fails with ErrDuplicateID while another entry holds the same key.
func (t *Table) Add(e *Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	hosts, ok := t.entries[e.Key.PeerID]
	if !ok {
		hosts = make(map[string]map[string]*Entry)
		t.entries[e.Key.PeerID] = hosts
	}
	ids, ok := hosts[e.Key.Host]
	if !ok {
		ids = make(map[string]*Entry)
		hosts[e.Key.Host] = ids
	}
	if _, exists := ids[e.Key.ID]; exists {
		return ErrDuplicateID
	}
	if e.Created.IsZero() {
		e.Created = time.Now()
	}
	ids[e.Key.ID] = e
	t.size++
	return nil
}

// Get returns the entry for k without removing it.
func (t *Table) Get(k Key) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[k.PeerID][k.Host][k.ID]
	return e, ok
}

// Delete removes and returns the entry for k, pruning emptied host and peer maps.
func (t *Table) Delete(k Key) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hosts, ok := t.entries[k.PeerID]
	if !ok {
		return nil, false
	}
	ids, ok := hosts[k.Host]
	if !ok {
		return nil, false
	}
	e, ok := ids[k.ID]
	if !ok {
		return nil, false
	}

	delete(ids, k.ID)
	t.size--
	if len(ids) == 0 {
		delete(hosts, k.Host)
	}
	if len(hosts) == 0 {
		delete(t.entries, k.PeerID)
	}
	return e, true
}

// Len returns the number of entries in flight.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Peers returns the number of peers with at least one entry in flight.
func (t *Table) Peers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Drain removes and returns every entry.
func (t *Table) Drain() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Entry, 0, t.size)
	for _, hosts := range t.entries {
		for _, ids := range hosts {
			for _, e := range ids {
				out = append(out, e)
			}
		}
	}
	t.entries = make(map[messaging.PeerID]map[string]map[string]*Entry)
	t.size = 0
	return out
}
