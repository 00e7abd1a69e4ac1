package messaging

import (
	"fmt"
	"net/url"
)

// PeerID identifies a peer. It stands in for a public key and is used for
// addressing only.
type PeerID string

// PeerAddress is one reachable endpoint of a peer.
type PeerAddress struct {
	PeerID PeerID `json:"peerId"`
	Host   string `json:"host"`
}

func (a PeerAddress) String() string {
	return fmt.Sprintf("%s@%s", a.PeerID, a.Host)
}

// PeerInfo is a peer identity with every host it can be reached at.
type PeerInfo struct {
	PeerID PeerID   `json:"peerId"`
	Hosts  []string `json:"hosts"`
}

// Validate checks the identity is set and every host parses as an absolute URL.
func (p PeerInfo) Validate() error {
	if p.PeerID == "" {
		return fmt.Errorf("messaging: peer id is empty")
	}
	if len(p.Hosts) == 0 {
		return fmt.Errorf("messaging: peer %s has no hosts", p.PeerID)
	}
	for _, h := range p.Hosts {
		u, err := url.Parse(h)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("messaging: peer %s has invalid host %q", p.PeerID, h)
		}
	}
	return nil
}

// Address returns the i-th address of the peer, or the first when i is out of range.
func (p PeerInfo) Address(i int) PeerAddress {
	if i < 0 || i >= len(p.Hosts) {
		i = 0
	}
	host := ""
	if len(p.Hosts) > 0 {
		host = p.Hosts[i]
	}
	return PeerAddress{PeerID: p.PeerID, Host: host}
}
