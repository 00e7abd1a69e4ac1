// Package bootstrap provides the deployment manifest of a runner: who this
// peer is and which registered commands it exposes.
package bootstrap

import (
	"sort"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/valueobject"
)

// PeerConfig is the identity section of a manifest.
type PeerConfig struct {
	ID    string   `json:"id"`
	Hosts []string `json:"hosts"`
}

// Deployment is the root manifest.
type Deployment struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	ProtocolVersion string `json:"protocolVersion"`
	// PeerVersionConstraint limits which peers are accepted into the directory.
	// Empty accepts any peer sharing the local major version.
	PeerVersionConstraint string              `json:"peerVersionConstraint,omitempty"`
	Peer                  PeerConfig          `json:"peer"`
	Exposed               map[string][]string `json:"exposed"`
}

// PeerInfo returns the peer identity of the manifest.
func (d *Deployment) PeerInfo() messaging.PeerInfo {
	hosts := make([]string, len(d.Peer.Hosts))
	copy(hosts, d.Peer.Hosts)
	return messaging.PeerInfo{PeerID: messaging.PeerID(d.Peer.ID), Hosts: hosts}
}

// Expose returns the exposed commands keyed by service identity, with
// duplicate command names removed and each list sorted.
func (d *Deployment) Expose() map[valueobject.FQN][]string {
	out := make(map[valueobject.FQN][]string, len(d.Exposed))
	for svc, cmds := range d.Exposed {
		seen := make(map[string]bool, len(cmds))
		list := make([]string, 0, len(cmds))
		for _, c := range cmds {
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			list = append(list, c)
		}
		sort.Strings(list)
		out[valueobject.FQN(svc)] = list
	}
	return out
}
