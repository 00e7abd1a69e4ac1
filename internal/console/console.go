// Package console is a built-in service that prints to an in-memory buffer.
// It is registered by every runner so a fresh deployment has something to call.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/morezero/command-runner/pkg/dispatcher"
	"github.com/morezero/command-runner/pkg/registry"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "console:console"

// ServiceFQN names the console service.
const ServiceFQN valueobject.FQN = "Test::Console::BuiltIn"

// Command names.
const (
	CommandPrint      = "print"
	CommandUnexposed  = "unexposedCommand"
	DefaultBufferSize = 100
)

// Count is the number of lines to print.
type Count struct {
	V int `json:"v"`
}

func (Count) FQN() valueobject.FQN { return "Test::ValueObject::Count" }

// Void is the empty success value.
type Void struct{}

func (Void) FQN() valueobject.FQN { return "Test::ValueObject::Void" }

// BufferFull is returned once the output buffer holds Max lines.
type BufferFull struct {
	Max int `json:"max"`
}

func (BufferFull) FQN() valueobject.FQN { return "Test::ValueObject::Error::BufferFull" }

func (e BufferFull) Error() string { return fmt.Sprintf("console buffer is full (%d lines)", e.Max) }

var (
	CountType = valueobject.Define[Count](`{
		"type": "object",
		"properties": {"v": {"type": "integer", "minimum": 1}},
		"required": ["v"]
	}`)
	VoidType       = valueobject.Define[Void](`{"type": "object"}`)
	BufferFullType = valueobject.Define[BufferFull](`{
		"type": "object",
		"properties": {"max": {"type": "integer"}}
	}`)
)

// Ref is the catalog reference of the console service.
var Ref = registry.ServiceOf[Console](ServiceFQN)

// Register declares the console commands in reg. Neither is exposed; the
// deployment decides that.
func Register(reg *registry.Registry) error {
	returns := valueobject.NewReturns(VoidType, BufferFullType)
	if err := reg.RegisterCommand(Ref, CommandPrint, CountType, returns); err != nil {
		return fmt.Errorf("%s - failed to register %s: %w", logPrefix, CommandPrint, err)
	}
	if err := reg.RegisterCommand(Ref, CommandUnexposed, CountType, returns); err != nil {
		return fmt.Errorf("%s - failed to register %s: %w", logPrefix, CommandUnexposed, err)
	}
	return nil
}

// Source yields the lines print writes, one per index.
type Source func(ctx context.Context, i int) (string, error)

// Console is the service instance.
type Console struct {
	mu     sync.Mutex
	output []string
	max    int
	source Source
}

// New creates a console holding up to max lines. A nil source prints line numbers.
func New(max int, source Source) *Console {
	if max <= 0 {
		max = DefaultBufferSize
	}
	if source == nil {
		source = func(_ context.Context, i int) (string, error) { return strconv.Itoa(i), nil }
	}
	return &Console{max: max, source: source}
}

// Handler implements dispatcher.Service.
func (c *Console) Handler(command string) (dispatcher.Handler, bool) {
	switch command {
	case CommandPrint:
		return dispatcher.Typed(c.Print), true
	case CommandUnexposed:
		return dispatcher.Typed(c.unexposed), true
	default:
		return nil, false
	}
}

// Print appends count.V lines. Lines printed before the buffer fills are kept.
func (c *Console) Print(ctx context.Context, count Count) (valueobject.ValueObject, error) {
	for i := 0; i < count.V; i++ {
		line, err := c.source(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("%s - source failed at line %d: %w", logPrefix, i, err)
		}

		c.mu.Lock()
		if len(c.output) >= c.max {
			c.mu.Unlock()
			slog.Debug(fmt.Sprintf("%s - buffer full at %d lines", logPrefix, c.max))
			return nil, BufferFull{Max: c.max}
		}
		c.output = append(c.output, line)
		c.mu.Unlock()
	}
	return Void{}, nil
}

func (c *Console) unexposed(_ context.Context, _ Count) (valueobject.ValueObject, error) {
	return Void{}, nil
}

// Output returns a copy of the printed lines.
func (c *Console) Output() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.output...)
}
