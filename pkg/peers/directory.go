// Package peers keeps the latest announcement of every known remote peer.
package peers

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/morezero/command-runner/pkg/events"
	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/semver"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "peers:directory"

// DefaultSize bounds the directory when no size is configured.
const DefaultSize = 1024

// ErrIncompatible is returned for announcements outside the accepted protocol range.
var ErrIncompatible = errors.New("peers: incompatible protocol version")

// Directory is a bounded, least-recently-announced-first-evicted set of peers.
type Directory struct {
	cache *lru.Cache[messaging.PeerID, *events.PeerUpdated]
	gate  *semver.Gate
}

// NewDirectory creates a directory holding up to size peers. A nil gate
// accepts every protocol version.
func NewDirectory(size int, gate *semver.Gate) (*Directory, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := lru.NewWithEvict[messaging.PeerID, *events.PeerUpdated](size, func(id messaging.PeerID, _ *events.PeerUpdated) {
		slog.Debug(fmt.Sprintf("%s - Evicted peer %s", logPrefix, id))
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create cache: %w", logPrefix, err)
	}
	return &Directory{cache: cache, gate: gate}, nil
}

// Observe records an announcement, replacing any older one from the same peer.
func (d *Directory) Observe(event *events.PeerUpdated) error {
	if err := event.PeerInfo.Validate(); err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	if d.gate != nil && !d.gate.Allows(event.ProtocolVersion) {
		return fmt.Errorf("%w: peer %s announced %q, accepting %s", ErrIncompatible, event.PeerInfo.PeerID, event.ProtocolVersion, d.gate)
	}
	if prev, ok := d.cache.Peek(event.PeerInfo.PeerID); ok && prev.Timestamp.After(event.Timestamp) {
		return nil
	}
	d.cache.Add(event.PeerInfo.PeerID, event)
	return nil
}

// Get returns the latest announcement of id.
func (d *Directory) Get(id messaging.PeerID) (*events.PeerUpdated, bool) {
	return d.cache.Get(id)
}

// Len returns the number of known peers.
func (d *Directory) Len() int {
	return d.cache.Len()
}

// List returns every known peer, ordered by id.
func (d *Directory) List() []*events.PeerUpdated {
	out := d.cache.Values()
	sort.Slice(out, func(i, j int) bool { return out[i].PeerInfo.PeerID < out[j].PeerInfo.PeerID })
	return out
}

// Providers returns the addresses of peers exposing service command.
func (d *Directory) Providers(service valueobject.FQN, command string) []messaging.PeerAddress {
	var out []messaging.PeerAddress
	for _, p := range d.List() {
		if p.Exposes(service, command) {
			out = append(out, p.PeerInfo.Address(0))
		}
	}
	return out
}
