package postgres

import (
	"errors"
	"fmt"

	"github.com/lib/pq"

	"chat-relay/internal/domain"
)

// PostgreSQL error class 08 covers connection exceptions
const pqConnectionExceptionClass = "08"

// storageErr tags a backend failure so callers can match it against
// domain.ErrStorageUnavailable while keeping the driver error in the chain.
func storageErr(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, errors.Join(domain.ErrStorageUnavailable, err))
}

// IsConnectionError reports whether an error came from losing the connection
// to the server rather than from the statement itself.
func IsConnectionError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == pqConnectionExceptionClass
}
