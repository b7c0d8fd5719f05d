package vm

import (
	"errors"
	"fmt"
)

// Recoverable failures surface as errors. Contract violations (wrong-tag
// accessors, keys built from non-atoms, misuse of anchors) are programmer
// errors and panic in debug builds instead.
var (
	// ErrOutOfMemory is returned by allocation when the heap stays above
	// its limit after a last-ditch collection.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotObjectCoercible is returned when null or undefined is
	// converted to an object.
	ErrNotObjectCoercible = errors.New("value has no properties")

	// ErrNotCallable is returned when a non-function is converted to a
	// function or invoked.
	ErrNotCallable = errors.New("value is not a function")

	// ErrNoDefaultValue is returned when an object's valueOf and toString
	// both yield objects.
	ErrNoDefaultValue = errors.New("can't convert object to primitive type")

	// ErrBadType is returned by ConvertTo for a target type it cannot
	// produce.
	ErrBadType = errors.New("bad conversion type")

	// ErrForeignThing is returned when raw bits reference a thing that is
	// not allocated in the receiving runtime.
	ErrForeignThing = errors.New("raw bits reference a thing outside this heap")

	// ErrInvalidBits is returned when raw bits are not a valid encoding.
	ErrInvalidBits = errors.New("raw bits are not a valid value encoding")
)

// ConversionError reports a failed coercion. The converted Value is left
// untouched.
type ConversionError struct {
	From Tag
	To   JSType
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s: %v", e.From, e.To, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

func contractViolation(op, format string, args ...any) {
	panic(fmt.Sprintf("contract violation: %s: %s", op, fmt.Sprintf(format, args...)))
}
