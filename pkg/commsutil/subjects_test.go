package commsutil

import "testing"

func TestInboxSubject(t *testing.T) {
	tests := []struct {
		name   string
		peerID string
		want   string
	}{
		{"simple", "ID", "runner.peer.ID.inbox"},
		{"dotted", "peer.one", "runner.peer.peer_one.inbox"},
		{"wildcards", "a*b>c", "runner.peer.a_b_c.inbox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InboxSubject(tt.peerID)
			if got != tt.want {
				t.Errorf("InboxSubject(%q) = %q, want %q", tt.peerID, got, tt.want)
			}
		})
	}
}

func TestSafeToken(t *testing.T) {
	if got := SafeToken("a b.c"); got != "a_b_c" {
		t.Errorf("SafeToken() = %q, want %q", got, "a_b_c")
	}
}
