package console

import (
	"context"
	"errors"
	"testing"

	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const testPrefix = "console:console_test"

func TestRegister(t *testing.T) {
	reg := registry.New()
	if err := Register(reg); err != nil {
		t.Fatalf("%s - Register: %v", testPrefix, err)
	}

	cfg, ok := reg.GetCommandConfig(ServiceFQN, CommandPrint)
	if !ok {
		t.Fatalf("%s - print not registered", testPrefix)
	}
	if cfg.ParamFQN != "Test::ValueObject::Count" {
		t.Errorf("%s - ParamFQN = %s", testPrefix, cfg.ParamFQN)
	}
	if !cfg.Returns.Contains("Test::ValueObject::Error::BufferFull") {
		t.Errorf("%s - BufferFull missing from returns %v", testPrefix, cfg.ReturnFQNs)
	}
	if cfg.Exposed || reg.IsExposed(ServiceFQN, CommandUnexposed) {
		t.Errorf("%s - commands must start unexposed", testPrefix)
	}

	if err := Register(reg); err == nil {
		t.Errorf("%s - second Register should fail", testPrefix)
	}
}

func TestCountSchema(t *testing.T) {
	if _, err := CountType.Parse([]byte(`{"v": 3}`)); err != nil {
		t.Errorf("%s - valid count rejected: %v", testPrefix, err)
	}
	for _, raw := range []string{`{"v": 0}`, `{"v": "3"}`, `{}`} {
		if _, err := CountType.Parse([]byte(raw)); err == nil {
			t.Errorf("%s - %s should be rejected", testPrefix, raw)
		}
	}
}

func TestPrint(t *testing.T) {
	c := New(10, nil)
	out, err := c.Print(context.Background(), Count{V: 3})
	if err != nil {
		t.Fatalf("%s - Print: %v", testPrefix, err)
	}
	if _, ok := out.(Void); !ok {
		t.Errorf("%s - expected Void, got %T", testPrefix, out)
	}
	got := c.Output()
	if len(got) != 3 || got[0] != "0" || got[2] != "2" {
		t.Errorf("%s - unexpected output %v", testPrefix, got)
	}
}

func TestPrintBufferFull(t *testing.T) {
	c := New(5, nil)
	_, err := c.Print(context.Background(), Count{V: 8})

	var full BufferFull
	if !errors.As(err, &full) {
		t.Fatalf("%s - expected BufferFull, got %v", testPrefix, err)
	}
	if full.Max != 5 {
		t.Errorf("%s - Max = %d", testPrefix, full.Max)
	}
	if len(c.Output()) != 5 {
		t.Errorf("%s - expected 5 kept lines, got %d", testPrefix, len(c.Output()))
	}

	var obj valueobject.ErrorObject = full
	if !BufferFullType.Is(obj) {
		t.Errorf("%s - BufferFull should match its own type", testPrefix)
	}
}

func TestPrintSourceError(t *testing.T) {
	boom := errors.New("boom")
	c := New(5, func(_ context.Context, i int) (string, error) {
		if i == 1 {
			return "", boom
		}
		return "line", nil
	})
	if _, err := c.Print(context.Background(), Count{V: 3}); !errors.Is(err, boom) {
		t.Errorf("%s - expected source error, got %v", testPrefix, err)
	}
}

func TestHandler(t *testing.T) {
	c := New(0, nil)
	for _, name := range []string{CommandPrint, CommandUnexposed} {
		h, ok := c.Handler(name)
		if !ok {
			t.Fatalf("%s - no handler for %s", testPrefix, name)
		}
		out, err := h(context.Background(), Count{V: 1})
		if err != nil || out.FQN() != "Test::ValueObject::Void" {
			t.Errorf("%s - %s returned %v, %v", testPrefix, name, out, err)
		}
	}
	if _, ok := c.Handler("missing"); ok {
		t.Errorf("%s - unexpected handler for missing", testPrefix)
	}

	h, _ := c.Handler(CommandPrint)
	if _, err := h(context.Background(), Void{}); err == nil {
		t.Errorf("%s - wrong parameter type should fail", testPrefix)
	}
}
