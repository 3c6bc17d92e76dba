package store

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrKeyNotFound marks an absent key. A missing key is an expected outcome,
// not a persistence failure; callers test for it with IsNotFound.
var ErrKeyNotFound = fmt.Errorf("key not found: %w", errdefs.ErrNotFound)

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errdefs.IsNotFound(err)
}

// StorageError means the mutation did not persist. Callers must not assume
// the change took effect; retrying the identical call is safe.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: change not persisted: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
