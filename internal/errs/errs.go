package errs

import "errors"

// Sentinel errors for the recording core, mapped to HTTP codes in the API
// handlers and checked with errors.Is by callers.
var (
	// ErrInvalidState is returned when a controller operation is not valid
	// in the current lifecycle state (e.g. Begin while already recording).
	ErrInvalidState = errors.New("operation not valid in current session state")

	// ErrNoActiveSession is returned when a scan arrives outside Recording.
	ErrNoActiveSession = errors.New("no active recording session")

	// ErrAlreadyRunning is returned by the session clock when started twice.
	ErrAlreadyRunning = errors.New("session clock already running")

	// ErrPersistence marks a local store write failure. The in-memory record
	// survives for the process lifetime but is not guaranteed after restart.
	ErrPersistence = errors.New("local store write failed")

	// ErrPromotionFailed marks a failed remote session creation. The local
	// session is untouched and the promotion can be retried.
	ErrPromotionFailed = errors.New("remote session creation failed")

	// ErrNotFound is returned by store lookups for unknown local ids.
	ErrNotFound = errors.New("session not found")
)
