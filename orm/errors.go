package orm

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("orm: entity not found")
	// ErrNotTrashable is returned when restoring an entity whose schema
	// does not soft delete.
	ErrNotTrashable = errors.New("orm: schema does not soft delete")
)

func notFound(schema *entity.Schema, what string) error {
	return goerrors.Wrap(ErrNotFound, goerrors.CategoryNotFound,
		fmt.Sprintf("%s %s not found", schema.Name, what))
}

func persistenceError(err error, op string, schema *entity.Schema) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal,
		fmt.Sprintf("orm: %s %s", op, schema.Table))
}

func badInput(format string, args ...any) error {
	return goerrors.New(fmt.Sprintf(format, args...), goerrors.CategoryBadInput)
}

// halted turns a pre-event error into an operation result: a hook that
// halts is a refusal, not a failure.
func halted(err error) (bool, error) {
	if errors.Is(err, lifecycle.ErrHalt) {
		return false, nil
	}
	return false, err
}
