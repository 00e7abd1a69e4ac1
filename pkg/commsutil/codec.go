package commsutil

import (
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/command-runner/pkg/messaging"
)

const codecLogPrefix = "commsutil:codec"

// HeaderCodec names the codec an envelope message was framed with.
const HeaderCodec = "Runner-Codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// EnvelopeMsg frames env for subject, recording the codec in a header.
func EnvelopeMsg(subject string, codec messaging.Codec, env *messaging.Envelope) (*comms.Msg, error) {
	data, err := codec.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode envelope %s: %w", codecLogPrefix, env.ID, err)
	}
	msg := comms.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(HeaderCodec, codec.Name())
	return msg, nil
}

// DecodeEnvelopeMsg reads an envelope with the codec named in the message
// header. Messages without the header are JSON.
func DecodeEnvelopeMsg(msg *comms.Msg) (*messaging.Envelope, error) {
	name := ""
	if msg.Header != nil {
		name = msg.Header.Get(HeaderCodec)
	}
	codec, err := messaging.CodecByName(name)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", codecLogPrefix, err)
	}
	env, err := codec.Unmarshal(msg.Data)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", codecLogPrefix, err)
	}
	return env, nil
}
