package pending

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/morezero/command-runner/pkg/messaging"
)

const testPrefix = "pending:table_test"

func TestTable_AddDuplicate(t *testing.T) {
	table := New()
	key := Key{PeerID: "ID2", Host: "http://remote", ID: "0"}

	if err := table.Add(&Entry{Key: key}); err != nil {
		t.Fatalf("%s - Add: %v", testPrefix, err)
	}
	if err := table.Add(&Entry{Key: key}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("%s - expected ErrDuplicateID, got %v", testPrefix, err)
	}
	if table.Len() != 1 {
		t.Errorf("%s - Len = %d, want 1", testPrefix, table.Len())
	}

	// The same id towards another host is a different key.
	other := key
	other.Host = "http://remote-2"
	if err := table.Add(&Entry{Key: other}); err != nil {
		t.Errorf("%s - Add to second host: %v", testPrefix, err)
	}
}

func TestTable_DeletePrunesEmptyMaps(t *testing.T) {
	table := New()
	a := Key{PeerID: "ID2", Host: "http://a", ID: "1"}
	b := Key{PeerID: "ID2", Host: "http://b", ID: "1"}
	_ = table.Add(&Entry{Key: a})
	_ = table.Add(&Entry{Key: b})

	if _, ok := table.Delete(a); !ok {
		t.Fatalf("%s - Delete(a) found nothing", testPrefix)
	}
	if _, ok := table.entries["ID2"]["http://a"]; ok {
		t.Errorf("%s - empty host map was not pruned", testPrefix)
	}
	if table.Peers() != 1 {
		t.Errorf("%s - Peers = %d, want 1", testPrefix, table.Peers())
	}

	table.Delete(b)
	if table.Peers() != 0 || table.Len() != 0 {
		t.Errorf("%s - table not empty: peers=%d len=%d", testPrefix, table.Peers(), table.Len())
	}

	if _, ok := table.Delete(b); ok {
		t.Errorf("%s - second Delete should find nothing", testPrefix)
	}

	// A deleted key is free again.
	if err := table.Add(&Entry{Key: a}); err != nil {
		t.Errorf("%s - re-Add after delete: %v", testPrefix, err)
	}
}

func TestTable_ReplyKeyMatchesCommandKey(t *testing.T) {
	local := messaging.PeerAddress{PeerID: "ID", Host: "http://localhost"}
	remote := messaging.PeerAddress{PeerID: "ID2", Host: "http://remote"}
	cmd, err := messaging.NewCommand("7", local, remote, "Test::Console::BuiltIn", "print", nil)
	if err != nil {
		t.Fatalf("%s - NewCommand: %v", testPrefix, err)
	}
	reply, err := messaging.NewReply(cmd, messaging.DataFQN("Test::Console::BuiltIn", "print"), nil)
	if err != nil {
		t.Fatalf("%s - NewReply: %v", testPrefix, err)
	}
	if KeyOf(cmd) != ReplyKeyOf(reply) {
		t.Errorf("%s - KeyOf(cmd)=%v ReplyKeyOf(reply)=%v", testPrefix, KeyOf(cmd), ReplyKeyOf(reply))
	}
}

func TestTable_Drain(t *testing.T) {
	table := New()
	for i := 0; i < 5; i++ {
		_ = table.Add(&Entry{Key: Key{PeerID: messaging.PeerID(fmt.Sprintf("P%d", i%2)), Host: "h", ID: fmt.Sprint(i)}})
	}
	if got := len(table.Drain()); got != 5 {
		t.Errorf("%s - Drain returned %d entries, want 5", testPrefix, got)
	}
	if table.Len() != 0 || table.Peers() != 0 {
		t.Errorf("%s - table not empty after Drain", testPrefix)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := Key{PeerID: "ID2", Host: "h", ID: fmt.Sprint(i)}
			if err := table.Add(&Entry{Key: k}); err != nil {
				t.Errorf("%s - Add(%d): %v", testPrefix, i, err)
				return
			}
			table.Delete(k)
		}(i)
	}
	wg.Wait()
	if table.Len() != 0 {
		t.Errorf("%s - Len = %d after concurrent add/delete", testPrefix, table.Len())
	}
}
