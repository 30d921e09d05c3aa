package wolt

import "errors"

// DirectoryError means the upstream API responded, but not in the shape we
// expect: a non-2xx status, an undecodable body, or a required field missing.
// It is recoverable at the watch level; callers drop the affected restaurant
// and keep running. Getting no response at all is returned as a plain error
// instead, so it stays in the unexpected class.
type DirectoryError struct {
	Op  string // "search" or "status"
	Err error
}

func (e *DirectoryError) Error() string { return "wolt " + e.Op + ": " + e.Err.Error() }

func (e *DirectoryError) Unwrap() error { return e.Err }

// IsDirectoryError reports whether err is (or wraps) a *DirectoryError.
func IsDirectoryError(err error) bool {
	var de *DirectoryError
	return errors.As(err, &de)
}

func dirErr(op string, err error) error {
	return &DirectoryError{Op: op, Err: err}
}
