package registry

import (
	"errors"
	"testing"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const testPrefix = "registry:registry_test"

const consoleFQN valueobject.FQN = "Test::Console::BuiltIn"

type count struct {
	V int `json:"v"`
}

func (count) FQN() valueobject.FQN { return "Test::ValueObject::Count" }

type void struct{}

func (void) FQN() valueobject.FQN { return "Test::ValueObject::Void" }

type bufferFull struct{}

func (bufferFull) FQN() valueobject.FQN { return "Test::ValueObject::Error::BufferFull" }
func (bufferFull) Error() string        { return "buffer full" }

type console struct{}
type otherConsole struct{}

var (
	countType      = valueobject.Define[count](`{"type": "object", "required": ["v"]}`)
	voidType       = valueobject.Define[void]("")
	bufferFullType = valueobject.Define[bufferFull]("")
	printReturns   = valueobject.NewReturns(voidType, bufferFullType)
)

func newConsoleRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	if err := r.RegisterCommand(ServiceOf[console](consoleFQN), "print", countType, printReturns); err != nil {
		t.Fatalf("%s - RegisterCommand(print): %v", testPrefix, err)
	}
	if err := r.RegisterCommand(ServiceOf[console](consoleFQN), "unexposedCommand", nil, valueobject.NewReturns(voidType)); err != nil {
		t.Fatalf("%s - RegisterCommand(unexposedCommand): %v", testPrefix, err)
	}
	return r
}

func TestRegisterCommand_Duplicate(t *testing.T) {
	r := newConsoleRegistry(t)

	err := r.RegisterCommand(ServiceOf[console](consoleFQN), "print", countType, printReturns)
	if !errors.Is(err, ErrCommandAlreadyRegistered) {
		t.Errorf("%s - expected ErrCommandAlreadyRegistered, got %v", testPrefix, err)
	}
}

func TestRegisterCommand_ServiceConflict(t *testing.T) {
	r := newConsoleRegistry(t)

	err := r.RegisterCommand(ServiceOf[otherConsole](consoleFQN), "clear", nil, valueobject.NewReturns(voidType))
	if !errors.Is(err, ErrServiceConflict) {
		t.Errorf("%s - expected ErrServiceConflict, got %v", testPrefix, err)
	}
	if _, ok := r.GetCommandConfig(consoleFQN, "clear"); ok {
		t.Errorf("%s - conflicting command must not be registered", testPrefix)
	}
}

func TestRegisterCommand_TokenConflict(t *testing.T) {
	r := New()
	returns := valueobject.NewReturns(voidType)
	svc := valueobject.FQN("Test::Tokens::Service")

	if err := r.RegisterCommand(ServiceRef{FQN: svc, Token: "token-a"}, "one", nil, returns); err != nil {
		t.Fatalf("%s - RegisterCommand one: %v", testPrefix, err)
	}
	err := r.RegisterCommand(ServiceRef{FQN: svc, Token: "token-b"}, "two", nil, returns)
	if !errors.Is(err, ErrServiceConflict) {
		t.Errorf("%s - expected ErrServiceConflict for a second token, got %v", testPrefix, err)
	}
	if _, ok := r.GetCommandConfig(svc, "two"); ok {
		t.Errorf("%s - conflicting command must not be registered", testPrefix)
	}

	// Same token, spelled implicitly, is the same service.
	if err := r.RegisterCommand(ServiceRef{FQN: "Test::Tokens::Implicit"}, "one", nil, returns); err != nil {
		t.Fatalf("%s - RegisterCommand implicit: %v", testPrefix, err)
	}
	if err := r.RegisterCommand(ServiceOf[console]("Test::Tokens::Implicit"), "two", nil, returns); err != nil {
		t.Errorf("%s - default token should match ServiceOf: %v", testPrefix, err)
	}
	if token, _ := r.GetServiceToken(svc); token != "token-a" {
		t.Errorf("%s - token = %s, want token-a", testPrefix, token)
	}
}

func TestRegisterCommand_AppendsStandardErrors(t *testing.T) {
	r := newConsoleRegistry(t)

	cfg, ok := r.GetCommandConfig(consoleFQN, "print")
	if !ok {
		t.Fatalf("%s - print not found", testPrefix)
	}
	if cfg.ParamFQN != countType.FQN() {
		t.Errorf("%s - ParamFQN = %q, want %q", testPrefix, cfg.ParamFQN, countType.FQN())
	}
	if len(cfg.ReturnFQNs) != 6 {
		t.Fatalf("%s - expected 6 return identities, got %v", testPrefix, cfg.ReturnFQNs)
	}
	if cfg.ReturnFQNs[0] != voidType.FQN() {
		t.Errorf("%s - success identity must come first, got %v", testPrefix, cfg.ReturnFQNs)
	}
	for _, c := range messaging.StandardErrors() {
		if !cfg.Returns.Contains(c.FQN()) {
			t.Errorf("%s - missing standard error %s", testPrefix, c.FQN())
		}
	}
}

func TestRegisterCommand_LearnsValueObjects(t *testing.T) {
	r := newConsoleRegistry(t)

	for _, fqn := range []valueobject.FQN{countType.FQN(), voidType.FQN(), bufferFullType.FQN(), messaging.InternalErrorType.FQN()} {
		if _, err := r.GetValueObjectConstructor(fqn); err != nil {
			t.Errorf("%s - %s should be registered: %v", testPrefix, fqn, err)
		}
	}
}

func TestRegisterService_Duplicate(t *testing.T) {
	r := New()
	if err := r.RegisterService(ServiceOf[console](consoleFQN)); err != nil {
		t.Fatalf("%s - RegisterService: %v", testPrefix, err)
	}
	if err := r.RegisterService(ServiceOf[console](consoleFQN)); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("%s - expected ErrAlreadyRegistered, got %v", testPrefix, err)
	}
	if err := r.RegisterService(ServiceRef{}); err == nil {
		t.Errorf("%s - expected error for empty name", testPrefix)
	}
}

func TestExposeCommand(t *testing.T) {
	r := newConsoleRegistry(t)

	tests := []struct {
		name    string
		service valueobject.FQN
		command string
		wantErr error
	}{
		{"unknown service", "Test::Missing", "print", ErrServiceNotRegistered},
		{"unknown command", consoleFQN, "missing", ErrCommandNotRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.ExposeCommand(tt.service, tt.command); !errors.Is(err, tt.wantErr) {
				t.Errorf("%s - ExposeCommand() = %v, want %v", testPrefix, err, tt.wantErr)
			}
			if r.IsExposed(tt.service, tt.command) {
				t.Errorf("%s - failed expose must not mark anything exposed", testPrefix)
			}
		})
	}

	if r.IsExposed(consoleFQN, "print") {
		t.Fatalf("%s - print must start unexposed", testPrefix)
	}
	if err := r.ExposeCommand(consoleFQN, "print"); err != nil {
		t.Fatalf("%s - ExposeCommand: %v", testPrefix, err)
	}
	if !r.IsExposed(consoleFQN, "print") {
		t.Errorf("%s - print should be exposed", testPrefix)
	}
	if r.IsExposed(consoleFQN, "unexposedCommand") {
		t.Errorf("%s - unexposedCommand should stay unexposed", testPrefix)
	}

	exposed := r.Exposed()
	if len(exposed[consoleFQN]) != 1 || exposed[consoleFQN][0] != "print" {
		t.Errorf("%s - Exposed() = %v", testPrefix, exposed)
	}
}

func TestValueObjects(t *testing.T) {
	r := New()
	if err := r.RegisterValueObject(countType); err != nil {
		t.Fatalf("%s - RegisterValueObject: %v", testPrefix, err)
	}
	if err := r.RegisterValueObject(countType); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("%s - expected ErrAlreadyRegistered, got %v", testPrefix, err)
	}
	if _, err := r.GetValueObjectConstructor("Test::ValueObject::Missing"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("%s - expected ErrNotRegistered, got %v", testPrefix, err)
	}

	v, err := r.Decode(valueobject.MustEncode(count{V: 4}))
	if err != nil {
		t.Fatalf("%s - Decode: %v", testPrefix, err)
	}
	if v.(count).V != 4 {
		t.Errorf("%s - decoded %v", testPrefix, v)
	}
}

func TestPopulateCommandValueObjects(t *testing.T) {
	r := newConsoleRegistry(t)

	var seen []string
	r.PopulateCommandValueObjects(func(cmd *CommandDescriptor) {
		seen = append(seen, cmd.Name)
		cmd.CommandMessageFQN = messaging.CommandFQN(cmd.Service, cmd.Name)
	})
	if len(seen) != 2 || seen[0] != "print" || seen[1] != "unexposedCommand" {
		t.Errorf("%s - visited %v", testPrefix, seen)
	}

	cfg, _ := r.GetCommandConfig(consoleFQN, "print")
	if cfg.CommandMessageFQN != "Message::Command::Test::Console::BuiltIn::print" {
		t.Errorf("%s - CommandMessageFQN = %q", testPrefix, cfg.CommandMessageFQN)
	}
}

func TestServices_Snapshot(t *testing.T) {
	r := newConsoleRegistry(t)

	services := r.Services()
	if len(services) != 1 {
		t.Fatalf("%s - expected 1 service, got %d", testPrefix, len(services))
	}
	if services[0].Token != Token(consoleFQN) {
		t.Errorf("%s - Token = %q", testPrefix, services[0].Token)
	}
	if len(services[0].Commands) != 2 {
		t.Errorf("%s - expected 2 commands, got %d", testPrefix, len(services[0].Commands))
	}

	token, ok := r.GetServiceToken(consoleFQN)
	if !ok || token != Token(consoleFQN) {
		t.Errorf("%s - GetServiceToken() = %q, %v", testPrefix, token, ok)
	}
	if _, ok := r.GetServiceToken("Test::Missing"); ok {
		t.Errorf("%s - unknown service should have no token", testPrefix)
	}
}
