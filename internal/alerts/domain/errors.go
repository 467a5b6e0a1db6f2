package alerts

import "errors"

// ErrNotFound indicates a missing alert record.
var ErrNotFound = errors.New("alert: not found")

// ErrAlreadyResolved indicates the alert already left active status.
var ErrAlreadyResolved = errors.New("alert: already resolved")
