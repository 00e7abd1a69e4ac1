// Package registry is the identity catalog: which services exist, which of
// their commands are remotely callable, and which typed values they exchange.
//
// The catalog is append-only for the life of the process. Use Default for the
// process-wide instance and New for isolated catalogs in tests.
package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/morezero/command-runner/pkg/messaging"
	"github.com/morezero/command-runner/pkg/valueobject"
)

const logPrefix = "registry:registry"

// Default is the process-wide catalog.
var Default = New()

// Token is the opaque handle forwarded to the service provider.
type Token string

// ServiceRef names a service and the concrete Go type implementing it.
type ServiceRef struct {
	FQN   valueobject.FQN
	Token Token
	Impl  reflect.Type
}

// ServiceOf builds the reference of service implementation T registered under fqn.
func ServiceOf[T any](fqn valueobject.FQN) ServiceRef {
	return ServiceRef{FQN: fqn, Token: Token(fqn), Impl: reflect.TypeFor[T]()}
}

// CommandDescriptor is the contract of one service command.
type CommandDescriptor struct {
	Service  valueobject.FQN         `json:"service"`
	Name     string                  `json:"name"`
	ParamFQN valueobject.FQN         `json:"paramFQN,omitempty"`
	Param    valueobject.Constructor `json:"-"`
	// Returns holds the declared values followed by the standard wire errors.
	Returns    valueobject.Returns `json:"-"`
	ReturnFQNs []valueobject.FQN   `json:"returnFQNs"`
	Exposed    bool                `json:"exposed"`

	CommandMessageFQN valueobject.FQN `json:"commandMessageFQN,omitempty"`
	DataMessageFQN    valueobject.FQN `json:"dataMessageFQN,omitempty"`
}

// ServiceDescriptor is a snapshot of a registered service.
type ServiceDescriptor struct {
	FQN      valueobject.FQN     `json:"fqn"`
	Token    Token               `json:"token"`
	Impl     string              `json:"impl,omitempty"`
	Commands []CommandDescriptor `json:"commands"`
}

type service struct {
	ref      ServiceRef
	commands map[string]*CommandDescriptor
	order    []string
}

// Registry is the identity catalog.
type Registry struct {
	mu           sync.RWMutex
	services     map[valueobject.FQN]*service
	valueObjects map[valueobject.FQN]valueobject.Constructor
}

// New creates an empty catalog.
func New() *Registry {
	return &Registry{
		services:     make(map[valueobject.FQN]*service),
		valueObjects: make(map[valueobject.FQN]valueobject.Constructor),
	}
}

// RegisterService adds a service with no commands.
func (r *Registry) RegisterService(ref ServiceRef) error {
	if ref.FQN == "" {
		return &RegistryError{Code: CodeInvalidName, Message: "service name is empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[ref.FQN]; ok {
		return &RegistryError{Code: CodeAlreadyRegistered, Message: fmt.Sprintf("service %s is already registered", ref.FQN)}
	}
	r.services[ref.FQN] = newService(ref)
	return nil
}

func newService(ref ServiceRef) *service {
	if ref.Token == "" {
		ref.Token = Token(ref.FQN)
	}
	return &service{ref: ref, commands: make(map[string]*CommandDescriptor)}
}

// conflictsWith reports a ServiceConflict when ref names the same service
// under another token or another implementation.
func (s *service) conflictsWith(ref ServiceRef) error {
	token := ref.Token
	if token == "" {
		token = Token(ref.FQN)
	}
	if token != s.ref.Token {
		return &RegistryError{
			Code:    CodeServiceConflict,
			Message: fmt.Sprintf("service %s is already bound to token %s, not %s", ref.FQN, s.ref.Token, token),
		}
	}
	if ref.Impl != nil && s.ref.Impl != nil && ref.Impl != s.ref.Impl {
		return &RegistryError{
			Code:    CodeServiceConflict,
			Message: fmt.Sprintf("service %s is already implemented by %s, not %s", ref.FQN, s.ref.Impl, ref.Impl),
		}
	}
	return nil
}

// RegisterCommand declares a command of the service named by ref. The service
// is created on its first command. param may be nil for commands without an
// argument.
func (r *Registry) RegisterCommand(ref ServiceRef, name string, param valueobject.Constructor, returns valueobject.Returns) error {
	if ref.FQN == "" || name == "" {
		return &RegistryError{Code: CodeInvalidName, Message: "service and command names are required"}
	}
	if returns.Success == nil {
		return &RegistryError{Code: CodeInvalidName, Message: fmt.Sprintf("command %s::%s declares no success value", ref.FQN, name)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[ref.FQN]
	if !ok {
		svc = newService(ref)
		r.services[ref.FQN] = svc
	} else if err := svc.conflictsWith(ref); err != nil {
		return err
	} else if svc.ref.Impl == nil {
		svc.ref.Impl = ref.Impl
	}

	if _, exists := svc.commands[name]; exists {
		return &RegistryError{Code: CodeCommandAlreadyRegistered, Message: fmt.Sprintf("command %s::%s is already registered", ref.FQN, name)}
	}

	full := returns.With(messaging.StandardErrors()...)
	desc := &CommandDescriptor{
		Service:    ref.FQN,
		Name:       name,
		Param:      param,
		Returns:    full,
		ReturnFQNs: full.FQNs(),
	}
	if param != nil {
		desc.ParamFQN = param.FQN()
		r.learnValueObject(param)
	}
	r.learnValueObject(full.Success)
	for _, f := range full.Failures {
		r.learnValueObject(f)
	}

	svc.commands[name] = desc
	svc.order = append(svc.order, name)

	slog.Debug(fmt.Sprintf("%s - Registered command %s::%s", logPrefix, ref.FQN, name))
	return nil
}

// learnValueObject records c unless its identity is already known. Caller holds mu.
func (r *Registry) learnValueObject(c valueobject.Constructor) {
	if _, ok := r.valueObjects[c.FQN()]; !ok {
		r.valueObjects[c.FQN()] = c
	}
}

// ExposeCommand marks a registered command as remotely callable.
func (r *Registry) ExposeCommand(serviceFQN valueobject.FQN, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	svc, ok := r.services[serviceFQN]
	if !ok {
		return &RegistryError{Code: CodeServiceNotRegistered, Message: fmt.Sprintf("service %s is not registered", serviceFQN)}
	}
	cmd, ok := svc.commands[name]
	if !ok {
		return &RegistryError{Code: CodeCommandNotRegistered, Message: fmt.Sprintf("command %s::%s is not registered", serviceFQN, name)}
	}
	cmd.Exposed = true
	return nil
}

// IsExposed reports whether the command exists and is remotely callable.
func (r *Registry) IsExposed(serviceFQN valueobject.FQN, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[serviceFQN]
	if !ok {
		return false
	}
	cmd, ok := svc.commands[name]
	return ok && cmd.Exposed
}

// GetCommandConfig returns a copy of the command's descriptor.
func (r *Registry) GetCommandConfig(serviceFQN valueobject.FQN, name string) (CommandDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[serviceFQN]
	if !ok {
		return CommandDescriptor{}, false
	}
	cmd, ok := svc.commands[name]
	if !ok {
		return CommandDescriptor{}, false
	}
	return *cmd, true
}

// GetServiceToken returns the provider token of a service.
func (r *Registry) GetServiceToken(serviceFQN valueobject.FQN) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[serviceFQN]
	if !ok {
		return "", false
	}
	return svc.ref.Token, true
}

// RegisterValueObject adds a value constructor to the catalog.
func (r *Registry) RegisterValueObject(c valueobject.Constructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.valueObjects[c.FQN()]; ok {
		return &RegistryError{Code: CodeAlreadyRegistered, Message: fmt.Sprintf("value object %s is already registered", c.FQN())}
	}
	r.valueObjects[c.FQN()] = c
	return nil
}

// GetValueObjectConstructor looks up a value constructor by identity.
func (r *Registry) GetValueObjectConstructor(fqn valueobject.FQN) (valueobject.Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.valueObjects[fqn]
	if !ok {
		return nil, &RegistryError{Code: CodeNotRegistered, Message: fmt.Sprintf("value object %s is not registered", fqn)}
	}
	return c, nil
}

// Decode rebuilds a wire value with its registered constructor.
func (r *Registry) Decode(t *valueobject.Typed) (valueobject.ValueObject, error) {
	c, err := r.GetValueObjectConstructor(valueobject.FQNOf(t))
	if err != nil {
		return nil, err
	}
	return c.Decode(t.Value)
}

// PopulateCommandValueObjects calls fn once for every registered command, in
// registration order per service. fn may fill in the message identities of
// the descriptor; it must not call back into the registry.
func (r *Registry) PopulateCommandValueObjects(fn func(cmd *CommandDescriptor)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, fqn := range r.sortedServiceNames() {
		svc := r.services[fqn]
		for _, name := range svc.order {
			fn(svc.commands[name])
		}
	}
}

// Services returns a snapshot of every service, sorted by name.
func (r *Registry) Services() []ServiceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ServiceDescriptor, 0, len(r.services))
	for _, fqn := range r.sortedServiceNames() {
		svc := r.services[fqn]
		desc := ServiceDescriptor{FQN: fqn, Token: svc.ref.Token}
		if svc.ref.Impl != nil {
			desc.Impl = svc.ref.Impl.String()
		}
		for _, name := range svc.order {
			desc.Commands = append(desc.Commands, *svc.commands[name])
		}
		out = append(out, desc)
	}
	return out
}

// Exposed maps each service to its exposed command names.
func (r *Registry) Exposed() map[valueobject.FQN][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[valueobject.FQN][]string)
	for fqn, svc := range r.services {
		for _, name := range svc.order {
			if svc.commands[name].Exposed {
				out[fqn] = append(out[fqn], name)
			}
		}
	}
	return out
}

func (r *Registry) sortedServiceNames() []valueobject.FQN {
	names := make([]valueobject.FQN, 0, len(r.services))
	for fqn := range r.services {
		names = append(names, fqn)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
