package messaging

import (
	"bytes"
	"testing"
)

const codecTestPrefix = "messaging:codec_test"

func TestCodecs_PreserveEnvelope(t *testing.T) {
	cmd, err := NewCommand("7", remote, local, "Test::Console::BuiltIn", "print", count{V: 5})
	if err != nil {
		t.Fatalf("%s - NewCommand: %v", codecTestPrefix, err)
	}

	for _, name := range []string{"json", "cbor"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			if err != nil {
				t.Fatalf("%s - CodecByName: %v", codecTestPrefix, err)
			}
			data, err := codec.Marshal(cmd)
			if err != nil {
				t.Fatalf("%s - Marshal: %v", codecTestPrefix, err)
			}
			got, err := codec.Unmarshal(data)
			if err != nil {
				t.Fatalf("%s - Unmarshal: %v", codecTestPrefix, err)
			}
			if got.Name != cmd.Name || got.ID != cmd.ID || got.Origin != cmd.Origin || got.Destination != cmd.Destination {
				t.Errorf("%s - envelope header changed: %+v", codecTestPrefix, got)
			}
			if !bytes.Equal(got.Payload, cmd.Payload) {
				t.Errorf("%s - payload changed: %s", codecTestPrefix, got.Payload)
			}
		})
	}
}

func TestCodecByName_Unknown(t *testing.T) {
	if _, err := CodecByName("xml"); err == nil {
		t.Errorf("%s - expected error for unknown codec", codecTestPrefix)
	}
}
