package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional write lost to the current
	// state of the record, e.g. locking an already locked channel.
	ErrConflict = errors.New("state conflict")

	// ErrProtected is returned when the target record may never take the
	// requested state, e.g. suspending an admin.
	ErrProtected = errors.New("protected record")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
