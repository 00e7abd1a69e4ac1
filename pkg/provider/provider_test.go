package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

const testPrefix = "provider:provider_test"

type console struct{ name string }

func TestResolve_Instance(t *testing.T) {
	p := New()
	want := &console{name: "builtin"}
	p.Provide("Test::Console::BuiltIn", want)

	got, err := p.Resolve(context.Background(), "Test::Console::BuiltIn")
	if err != nil {
		t.Fatalf("%s - Resolve: %v", testPrefix, err)
	}
	if got != want {
		t.Errorf("%s - Resolve returned %v, want %v", testPrefix, got, want)
	}
}

func TestResolve_NotProvided(t *testing.T) {
	p := New()
	if _, err := p.Resolve(context.Background(), "Test::Missing"); !errors.Is(err, ErrNotProvided) {
		t.Errorf("%s - expected ErrNotProvided, got %v", testPrefix, err)
	}
}

func TestResolve_FactoryRunsOnce(t *testing.T) {
	p := New()
	var calls atomic.Int32
	p.ProvideFactory("Test::Console::BuiltIn", func(context.Context) (any, error) {
		calls.Add(1)
		return &console{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Resolve(context.Background(), "Test::Console::BuiltIn"); err != nil {
				t.Errorf("%s - Resolve: %v", testPrefix, err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("%s - factory ran %d times, want 1", testPrefix, calls.Load())
	}
	if p.Len() != 1 {
		t.Errorf("%s - Len = %d, want 1", testPrefix, p.Len())
	}
}

func TestResolve_FactoryError(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	p.ProvideFactory("Test::Console::BuiltIn", func(context.Context) (any, error) {
		return nil, boom
	})

	for i := 0; i < 2; i++ {
		if _, err := p.Resolve(context.Background(), "Test::Console::BuiltIn"); !errors.Is(err, boom) {
			t.Errorf("%s - attempt %d: expected boom, got %v", testPrefix, i, err)
		}
	}
}
