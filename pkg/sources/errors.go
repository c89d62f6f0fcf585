package sources

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable marks a backend that could not be reached or
	// answered with an error
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrQueryTimeout marks an async query that never reached a terminal
	// state within the poll budget
	ErrQueryTimeout = errors.New("query timed out")
	// ErrQueryFailed marks an async query the backend reported as failed
	ErrQueryFailed = errors.New("query failed")
)

// QueryFailedError carries the backend's reason for a failed query
type QueryFailedError struct {
	QueryID string
	Reason  string
}

func (e *QueryFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("query %s failed", e.QueryID)
	}
	return fmt.Sprintf("query %s failed: %s", e.QueryID, e.Reason)
}

// Is reports ErrQueryFailed as a match
func (e *QueryFailedError) Is(target error) bool {
	return target == ErrQueryFailed
}

func unavailable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSourceUnavailable, fmt.Sprintf(format, args...))
}
