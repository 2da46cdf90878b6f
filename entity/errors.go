package entity

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ErrUnknownSchema is returned when a schema name is not registered.
var ErrUnknownSchema = errors.New("entity: unknown schema")

// TextCodeInvariant tags panics raised for schema declaration mistakes.
const TextCodeInvariant = "INVARIANT_VIOLATION"

// invariantViolation panics with a categorised error. It is reserved for
// programming errors in schema declarations, where continuing would hydrate
// the wrong data.
func invariantViolation(format string, args ...any) {
	panic(goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryInternal).
		WithTextCode(TextCodeInvariant))
}

// IsInvariantViolation reports whether v, typically a recovered panic value,
// is an invariant violation raised by this package.
func IsInvariantViolation(v any) bool {
	err, ok := v.(error)
	if !ok {
		return false
	}
	var ge *goerrors.Error
	return errors.As(err, &ge) && ge.TextCode == TextCodeInvariant
}
