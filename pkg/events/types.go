// Package events carries peer announcements: which peer is up, where it can be
// reached and which service commands it exposes.
package events

import (
	"time"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/valueobject"
)

// PeerUpdated is published by a peer when it starts serving.
type PeerUpdated struct {
	PeerInfo        messaging.PeerInfo           `json:"peerInfo"`
	Services        map[valueobject.FQN][]string `json:"services"`
	ProtocolVersion string                       `json:"protocolVersion,omitempty"`
	Timestamp       time.Time                    `json:"timestamp"`
}

// Exposes reports whether the announcing peer serves service command.
func (e *PeerUpdated) Exposes(service valueobject.FQN, command string) bool {
	for _, c := range e.Services[service] {
		if c == command {
			return true
		}
	}
	return false
}
