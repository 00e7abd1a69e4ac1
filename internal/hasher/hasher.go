// Package hasher is an example service computing SHA-512 digests.
package hasher

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/morezero/command-runner/pkg/dispatcher"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "hasher:hasher"

// ServiceFQN names the hasher service.
const ServiceFQN valueobject.FQN = "Example::Hasher::Sha512"

// CommandSha512 is the only command.
const CommandSha512 = "sha512"

// Input is the UTF-8 text to hash.
type Input struct {
	Data string `json:"data"`
}

func (Input) FQN() valueobject.FQN { return "Example::ValueObject::HashInput" }

// Digest is the hex-encoded hash.
type Digest struct {
	Hex string `json:"hex"`
}

func (Digest) FQN() valueobject.FQN { return "Example::ValueObject::Digest" }

var (
	InputType = valueobject.Define[Input](`{
		"type": "object",
		"properties": {"data": {"type": "string"}},
		"required": ["data"]
	}`)
	DigestType = valueobject.Define[Digest](`{
		"type": "object",
		"properties": {"hex": {"type": "string", "pattern": "^[0-9a-f]{128}$"}},
		"required": ["hex"]
	}`)
)

// Ref is the catalog reference of the hasher service.
var Ref = registry.ServiceOf[Hasher](ServiceFQN)

// Register declares sha512 in reg.
func Register(reg *registry.Registry) error {
	if err := reg.RegisterCommand(Ref, CommandSha512, InputType, valueobject.NewReturns(DigestType)); err != nil {
		return fmt.Errorf("%s - failed to register %s: %w", logPrefix, CommandSha512, err)
	}
	return nil
}

// Hasher is the service instance.
type Hasher struct{}

// Handler implements dispatcher.Service.
func (h Hasher) Handler(command string) (dispatcher.Handler, bool) {
	if command != CommandSha512 {
		return nil, false
	}
	return dispatcher.Typed(h.Sha512), true
}

// Sha512 hashes in.Data.
func (Hasher) Sha512(_ context.Context, in Input) (valueobject.ValueObject, error) {
	return Digest{Hex: Sum(in.Data)}, nil
}

// Sum returns the hex SHA-512 of s.
func Sum(s string) string {
	sum := sha512.Sum512([]byte(s))
	return hex.EncodeToString(sum[:])
}
