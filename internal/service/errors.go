package service

import (
	"errors"
	"fmt"
)

// Internal failure reasons for credential validation. The HTTP boundary
// collapses all of these to one generic 401 so a caller probing with bad
// keys cannot distinguish expired from revoked from unknown; the distinct
// sentinels exist for logging and audit only.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrKeyExpired         = errors.New("api key expired")
	ErrOwnerInactive      = errors.New("api key owner inactive")
)

// ErrKeyCeiling is returned when a principal already holds the maximum
// number of simultaneously active API keys.
var ErrKeyCeiling = errors.New("active api key limit reached")

// ValidationError reports a malformed field at credential-creation time,
// such as a permission string outside the resource:action grammar.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RateLimitError reports that a credential is over its request budget for
// the trailing window.
type RateLimitError struct {
	CurrentUsage int64
	Limit        int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d requests in the last hour", e.CurrentUsage, e.Limit)
}
