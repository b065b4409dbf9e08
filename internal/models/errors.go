package models

import "errors"

var (
	// ErrStorageUnavailable wraps every failure of the backing store,
	// including timeouts and cancellation.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrMalformedVector marks an empty embedding or one whose length does
	// not match its counterpart.
	ErrMalformedVector = errors.New("malformed vector")

	// ErrAlreadyExists is returned by registry inserts for a known content hash.
	ErrAlreadyExists = errors.New("already exists")

	ErrEmptyDocument     = errors.New("document produced no chunks")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
