package commsutil

import (
	"fmt"
	"strings"
)

// Default NATS subjects.
const (
	SubjectPeerUpdates = "runner.peers.updated"
	subjectInboxPrefix = "runner.peer"
)

// InboxSubject is the subject a peer receives its envelopes on. Subject
// separators and wildcards in the id are replaced so one peer maps to one token.
func InboxSubject(peerID string) string {
	return fmt.Sprintf("%s.%s.inbox", subjectInboxPrefix, SafeToken(peerID))
}

// SafeToken makes s usable as a single NATS subject token.
func SafeToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
