package registry

// Error codes reported by the catalog.
const (
	CodeAlreadyRegistered        = "ALREADY_REGISTERED"
	CodeCommandAlreadyRegistered = "COMMAND_ALREADY_REGISTERED"
	CodeServiceConflict          = "SERVICE_CONFLICT"
	CodeServiceNotRegistered     = "SERVICE_NOT_REGISTERED"
	CodeCommandNotRegistered     = "COMMAND_NOT_REGISTERED"
	CodeNotRegistered            = "NOT_REGISTERED"
	CodeInvalidName              = "INVALID_NAME"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrAlreadyRegistered        = &RegistryError{Code: CodeAlreadyRegistered, Message: "already registered"}
	ErrCommandAlreadyRegistered = &RegistryError{Code: CodeCommandAlreadyRegistered, Message: "command already registered"}
	ErrServiceConflict          = &RegistryError{Code: CodeServiceConflict, Message: "service conflict"}
	ErrServiceNotRegistered     = &RegistryError{Code: CodeServiceNotRegistered, Message: "service not registered"}
	ErrCommandNotRegistered     = &RegistryError{Code: CodeCommandNotRegistered, Message: "command not registered"}
	ErrNotRegistered            = &RegistryError{Code: CodeNotRegistered, Message: "not registered"}
)

// RegistryError is a structured error from the catalog.
type RegistryError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// Is reports whether target carries the same code.
func (e *RegistryError) Is(target error) bool {
	t, ok := target.(*RegistryError)
	return ok && t.Code == e.Code
}
