package profile

import "errors"

var (
	// ErrUnauthenticated means the operation could not obtain a credential
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrFetchFailed wraps any failure of a profile fetch
	ErrFetchFailed = errors.New("profile fetch failed")

	// ErrSaveFailed wraps any failure of a profile save
	ErrSaveFailed = errors.New("profile save failed")

	// ErrSuperseded is returned by a save whose edit was overtaken by a newer
	// operation before it could be applied. Nothing was sent.
	ErrSuperseded = errors.New("superseded by a newer operation")

	// ErrClosed is returned by operations started after Close
	ErrClosed = errors.New("controller closed")
)
