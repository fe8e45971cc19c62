package annotation

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the engine. Wrap these with fmt.Errorf and
// match them with errors.Is.
var (
	// ErrFileIO covers create, read, write, delete and rename failures.
	ErrFileIO = errors.New("file i/o error")

	// ErrInvalidArgument is returned for out-of-range rows and nil batches.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is an ErrInvalidArgument for row indices.
	ErrOutOfRange = fmt.Errorf("row index out of range: %w", ErrInvalidArgument)

	// ErrNilBatch is an ErrInvalidArgument for a nil record batch.
	ErrNilBatch = fmt.Errorf("record batch is nil: %w", ErrInvalidArgument)

	// ErrInvariant signals an internal inconsistency. The current operation
	// must stop; it is not user recoverable.
	ErrInvariant = errors.New("internal invariant violated")

	// ErrUserCancelled is returned when the annotator name prompt is dismissed.
	ErrUserCancelled = errors.New("cancelled by user")
)

// IOError wraps err as an ErrFileIO for op on path.
func IOError(op, path string, err error) error {
	return fmt.Errorf("%s %q: %w: %w", op, path, ErrFileIO, err)
}
