// Package ratelimit defines sentinel errors.
package ratelimit

import "errors"

// ErrStoreUnavailable indicates the counting store could not be reached
// within the configured timeout. Callers treat it as fail-open.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrInvalidIdentity indicates a malformed session token or phone
// identifier. Recovered by downgrading to a weaker identity.
var ErrInvalidIdentity = errors.New("invalid identity")

// ErrInvalidConfig indicates missing or invalid construction options.
// Fatal at startup only.
var ErrInvalidConfig = errors.New("invalid config")

// ErrInvalidInput indicates request validation failures.
var ErrInvalidInput = errors.New("invalid input")
