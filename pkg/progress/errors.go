package progress

import "errors"

var (
	// ErrUserNotAuthenticated is returned by reads for an empty user id.
	// Writes for anonymous callers are silent no-ops instead.
	ErrUserNotAuthenticated = errors.New("user not authenticated")
	ErrInvalidCounters      = errors.New("invalid practice counters")
	ErrInvalidEvent         = errors.New("invalid progress event")
	ErrStoreUnavailable     = errors.New("progress store unavailable")
	ErrStoreWriteRejected   = errors.New("progress store rejected write")
)
