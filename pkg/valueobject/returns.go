package valueobject

// Variant identifies which member of a return set a value matched.
// Success is 0; failures are numbered from 1 in declaration order.
type Variant int

// Success is the variant of the declared success value.
const Success Variant = 0

// IsFailure reports whether the variant is one of the declared failures.
func (v Variant) IsFailure() bool {
	return v > Success
}

// Returns is the closed set of values a command may produce: exactly one
// success identity followed by zero or more failure identities.
type Returns struct {
	Success  Constructor
	Failures []Constructor
}

// NewReturns builds a return set.
func NewReturns(success Constructor, failures ...Constructor) Returns {
	return Returns{Success: success, Failures: failures}
}

// With returns a copy of r with extra failure identities appended, skipping
// identities already present.
func (r Returns) With(extra ...Constructor) Returns {
	out := Returns{Success: r.Success, Failures: append([]Constructor(nil), r.Failures...)}
	for _, c := range extra {
		if _, ok := out.Constructor(c.FQN()); ok {
			continue
		}
		out.Failures = append(out.Failures, c)
	}
	return out
}

// Match finds the variant v belongs to.
func (r Returns) Match(v ValueObject) (Variant, bool) {
	if v == nil {
		return -1, false
	}
	if r.Success != nil && r.Success.Is(v) {
		return Success, true
	}
	for i, f := range r.Failures {
		if f.Is(v) {
			return Variant(i + 1), true
		}
	}
	return -1, false
}

// Constructor returns the member with the given identity.
func (r Returns) Constructor(fqn FQN) (Constructor, bool) {
	if r.Success != nil && r.Success.FQN() == fqn {
		return r.Success, true
	}
	for _, f := range r.Failures {
		if f.FQN() == fqn {
			return f, true
		}
	}
	return nil, false
}

// Decode rebuilds a wire value, accepting only members of the set.
func (r Returns) Decode(t *Typed) (ValueObject, error) {
	c, ok := r.Constructor(FQNOf(t))
	if !ok {
		return nil, &ValidationError{FQN: FQNOf(t), Details: []string{"identity is not a declared return"}}
	}
	return c.Decode(t.Value)
}

// FQNs lists the identities of the set, success first.
func (r Returns) FQNs() []FQN {
	out := make([]FQN, 0, len(r.Failures)+1)
	if r.Success != nil {
		out = append(out, r.Success.FQN())
	}
	for _, f := range r.Failures {
		out = append(out, f.FQN())
	}
	return out
}

// Contains reports whether fqn is a member of the set.
func (r Returns) Contains(fqn FQN) bool {
	_, ok := r.Constructor(fqn)
	return ok
}
