package catalog

import "errors"

var (
	// ErrInvalidInput reports a value that cannot be turned into a catalog identity or kind.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidSpec reports a specification document that does not fit the nested attribute model.
	ErrInvalidSpec = errors.New("invalid specification")
)
