package storage

import "errors"

// ErrStoreClosed is returned when a store is used after Close.
var ErrStoreClosed = errors.New("audit store is closed")

// ErrInvalidChange is returned when a limit change fails validation before it is written.
var ErrInvalidChange = errors.New("invalid limit change")
