package condition

import (
	"errors"
	"fmt"
)

// UnsupportedOperatorError is returned for operator keys outside the DSL.
type UnsupportedOperatorError struct {
	Field    string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("condition: unsupported operator %q on field %q", e.Operator, e.Field)
}

// InvalidOperatorArgumentError is returned when an operator's value has
// the wrong shape, e.g. $between with three elements.
type InvalidOperatorArgumentError struct {
	Field    string
	Operator Operator
	Reason   string
}

func (e *InvalidOperatorArgumentError) Error() string {
	return fmt.Sprintf("condition: %s on field %q %s", e.Operator, e.Field, e.Reason)
}

// InvalidFieldError is returned for names that are not plain identifiers.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("condition: invalid field name %q", e.Field)
}

// IsCompileError reports whether err came from malformed caller input
// rather than from storage.
func IsCompileError(err error) bool {
	var (
		uo *UnsupportedOperatorError
		ia *InvalidOperatorArgumentError
		fe *InvalidFieldError
	)
	return errors.As(err, &uo) || errors.As(err, &ia) || errors.As(err, &fe)
}
