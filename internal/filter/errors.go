package filter

import "errors"

// Error kinds raised while typecasting or parsing filters. They are wrapped with
// context; match them with errors.Is.
var (
	// ErrUnknownField: a concrete filter key does not resolve for the kind.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidOperatorShape: an operator operand has the wrong shape, e.g. a
	// non-list $and or $in.
	ErrInvalidOperatorShape = errors.New("invalid operator shape")
	// ErrCoercionFailure: a value could not be converted to its field's semantic
	// type. Typecasting recovers from it by keeping the raw value.
	ErrCoercionFailure = errors.New("coercion failure")
)
