package store

import (
	"errors"
	"fmt"
)

// CorruptStoreError indicates a local database failed its integrity check
// or is missing required tables. The store is never repaired in place; the
// remedy is to delete the file and run `stride-runner update`.
type CorruptStoreError struct {
	Path   string
	Detail string
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt local database %s (%s); delete it and run `stride-runner update`", e.Path, e.Detail)
}

// IsCorruptStore reports whether err is a CorruptStoreError, unwrapping as
// needed.
func IsCorruptStore(err error) bool {
	var ce *CorruptStoreError
	return errors.As(err, &ce)
}

// ErrUnknownInstance is returned when an iid has no metadata row.
var ErrUnknownInstance = errors.New("instance not found in metadata")

// ErrMissingStore is returned when a database file does not exist yet.
// The caller should suggest running the update command.
var ErrMissingStore = errors.New("local database does not exist; run `stride-runner update` first")
