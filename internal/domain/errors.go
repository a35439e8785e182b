package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks a malformed request rejected before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork marks a remote call that did not complete.
	ErrNetwork = errors.New("network error")
	// ErrRemoteRejected marks a remote call answered with a non-2xx status.
	ErrRemoteRejected = errors.New("remote rejected request")
	// ErrUnauthenticated marks a missing credential or a 401/403 answer.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPersistence marks a local storage read/write failure.
	ErrPersistence = errors.New("persistence error")
	// ErrDecode marks a response that does not follow the documented schema.
	ErrDecode = errors.New("decode error")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NetworkError wraps a transport failure for a named remote operation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == ErrNetwork
}

// RemoteError carries the HTTP status of a rejected remote call.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Message is the status-derived text shown to users.
func (e *RemoteError) Message() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// AuthFailure reports whether the status means the credential was refused.
func (e *RemoteError) AuthFailure() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteRejected:
		return true
	case ErrUnauthenticated:
		return e.AuthFailure()
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// PersistenceError wraps a profile storage failure.
type PersistenceError struct {
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage key %q: %v", e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
