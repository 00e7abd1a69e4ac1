package messaging

import (
	"testing"

	"github.com/morezero/command-runner/pkg/valueobject"
)

const envelopeTestPrefix = "messaging:envelope_test"

type count struct {
	V int `json:"v"`
}

func (count) FQN() valueobject.FQN { return "Test::ValueObject::Count" }

var (
	local  = PeerAddress{PeerID: "ID", Host: "http://localhost"}
	remote = PeerAddress{PeerID: "ID2", Host: "http://remote.localhost"}
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		fqn  valueobject.FQN
		want Kind
	}{
		{"command", CommandFQN("Test::Console::BuiltIn", "print"), KindCommand},
		{"data", DataFQN("Test::Console::BuiltIn", "print"), KindData},
		{"unknown command reply", UnknownCommandMessage, KindData},
		{"value object", "Test::ValueObject::Count", KindUnrecognized},
		{"empty", "", KindUnrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.fqn); got != tt.want {
				t.Errorf("%s - Classify(%q) = %v, want %v", envelopeTestPrefix, tt.fqn, got, tt.want)
			}
		})
	}
}

func TestNewCommand(t *testing.T) {
	env, err := NewCommand("0", remote, local, "Test::Console::BuiltIn", "print", count{V: 10})
	if err != nil {
		t.Fatalf("%s - NewCommand failed: %v", envelopeTestPrefix, err)
	}
	if env.FQN() != "Message::Command::Test::Console::BuiltIn::print" {
		t.Errorf("%s - FQN = %q", envelopeTestPrefix, env.FQN())
	}
	if env.Sequence != 0 || env.Length != 1 || !env.End {
		t.Errorf("%s - expected single-part framing, got seq=%d len=%d end=%v", envelopeTestPrefix, env.Sequence, env.Length, env.End)
	}
	if err := env.Validate(); err != nil {
		t.Errorf("%s - Validate: %v", envelopeTestPrefix, err)
	}

	payload, err := env.DecodeCommand()
	if err != nil {
		t.Fatalf("%s - DecodeCommand: %v", envelopeTestPrefix, err)
	}
	if payload.ServiceFQN != "Test::Console::BuiltIn" || payload.Command != "print" {
		t.Errorf("%s - payload = %+v", envelopeTestPrefix, payload)
	}
	if payload.Param.FQN != "Test::ValueObject::Count" {
		t.Errorf("%s - param FQN = %q", envelopeTestPrefix, payload.Param.FQN)
	}
}

func TestNewCommand_NoParam(t *testing.T) {
	env, err := NewCommand("1", remote, local, "Test::Console::BuiltIn", "reset", nil)
	if err != nil {
		t.Fatalf("%s - NewCommand failed: %v", envelopeTestPrefix, err)
	}
	payload, err := env.DecodeCommand()
	if err != nil {
		t.Fatalf("%s - DecodeCommand: %v", envelopeTestPrefix, err)
	}
	if !payload.Param.IsNull() {
		t.Errorf("%s - expected null param, got %+v", envelopeTestPrefix, payload.Param)
	}
}

func TestNewReply_SwapsAddressing(t *testing.T) {
	cmd, _ := NewCommand("42", remote, local, "Test::Console::BuiltIn", "print", count{V: 1})
	reply, err := NewReply(cmd, DataFQN("Test::Console::BuiltIn", "print"), InternalError{Ref: "abc"})
	if err != nil {
		t.Fatalf("%s - NewReply failed: %v", envelopeTestPrefix, err)
	}
	if reply.ID != "42" {
		t.Errorf("%s - reply id = %q, want 42", envelopeTestPrefix, reply.ID)
	}
	if reply.Origin != local || reply.Destination != remote {
		t.Errorf("%s - reply addressing not swapped: origin=%v destination=%v", envelopeTestPrefix, reply.Origin, reply.Destination)
	}
	if reply.Kind() != KindData {
		t.Errorf("%s - reply kind = %v", envelopeTestPrefix, reply.Kind())
	}

	typed, err := reply.DecodeData()
	if err != nil {
		t.Fatalf("%s - DecodeData: %v", envelopeTestPrefix, err)
	}
	got, err := InternalErrorType.DecodeTyped(typed)
	if err != nil {
		t.Fatalf("%s - decode InternalError: %v", envelopeTestPrefix, err)
	}
	if got.Ref != "abc" {
		t.Errorf("%s - ref = %q, want abc", envelopeTestPrefix, got.Ref)
	}
}

func TestEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		ok   bool
	}{
		{"valid", Envelope{ID: "1", Length: 1}, true},
		{"empty id", Envelope{Length: 1}, false},
		{"zero length", Envelope{ID: "1"}, false},
		{"sequence past length", Envelope{ID: "1", Sequence: 1, Length: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("%s - Validate() = %v, want ok=%v", envelopeTestPrefix, err, tt.ok)
			}
		})
	}
}

func TestPeerInfo(t *testing.T) {
	info := PeerInfo{PeerID: "ID", Hosts: []string{"http://localhost", "nats://127.0.0.1:4222"}}
	if err := info.Validate(); err != nil {
		t.Fatalf("%s - Validate: %v", envelopeTestPrefix, err)
	}
	if got := info.Address(1); got.Host != "nats://127.0.0.1:4222" {
		t.Errorf("%s - Address(1) = %v", envelopeTestPrefix, got)
	}
	if got := info.Address(7); got.Host != "http://localhost" {
		t.Errorf("%s - Address(7) should fall back to first host, got %v", envelopeTestPrefix, got)
	}

	if err := (PeerInfo{PeerID: "ID", Hosts: []string{"not a url"}}).Validate(); err == nil {
		t.Errorf("%s - expected error for host without scheme", envelopeTestPrefix)
	}
	if err := (PeerInfo{Hosts: []string{"http://x"}}).Validate(); err == nil {
		t.Errorf("%s - expected error for empty peer id", envelopeTestPrefix)
	}
}
