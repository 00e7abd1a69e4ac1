package hasher

import (
	"context"
	"testing"

	"github.com/morezero/command-runner/pkg/registry"
)

const testPrefix = "hasher:hasher_test"

func TestSum(t *testing.T) {
	// sha512("abc")
	want := "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"
	if got := Sum("abc"); got != want {
		t.Errorf("%s - Sum(abc) = %s", testPrefix, got)
	}
}

func TestHandler(t *testing.T) {
	h, ok := Hasher{}.Handler(CommandSha512)
	if !ok {
		t.Fatalf("%s - no sha512 handler", testPrefix)
	}
	out, err := h(context.Background(), Input{Data: "abc"})
	if err != nil {
		t.Fatalf("%s - handler: %v", testPrefix, err)
	}
	d, ok := out.(Digest)
	if !ok || d.Hex != Sum("abc") {
		t.Errorf("%s - unexpected digest %#v", testPrefix, out)
	}
	if !DigestType.Is(out) {
		t.Errorf("%s - digest does not match its type", testPrefix)
	}
	if _, err := DigestType.Parse([]byte(`{"hex": "` + d.Hex + `"}`)); err != nil {
		t.Errorf("%s - digest rejected by schema: %v", testPrefix, err)
	}

	if _, ok := (Hasher{}).Handler("md5"); ok {
		t.Errorf("%s - unexpected md5 handler", testPrefix)
	}
}

func TestRegister(t *testing.T) {
	reg := registry.New()
	if err := Register(reg); err != nil {
		t.Fatalf("%s - Register: %v", testPrefix, err)
	}
	cfg, ok := reg.GetCommandConfig(ServiceFQN, CommandSha512)
	if !ok {
		t.Fatalf("%s - sha512 not registered", testPrefix)
	}
	if cfg.ParamFQN != InputType.FQN() || cfg.Returns.Success.FQN() != DigestType.FQN() {
		t.Errorf("%s - unexpected descriptor %+v", testPrefix, cfg)
	}
	if _, err := reg.GetValueObjectConstructor(DigestType.FQN()); err != nil {
		t.Errorf("%s - digest not learned: %v", testPrefix, err)
	}
}
