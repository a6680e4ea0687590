// Package errdefs defines the error taxonomy shared by the manager
// components. Every error returned from a coordinator operation is backed by
// one of the concrete types here, possibly wrapped with
// github.com/pkg/errors; the Is* helpers look through the wrapping.
package errdefs

import (
	"fmt"

	"github.com/pkg/errors"
)

type errNotFound struct {
	kind string
	id   string
}

// ErrNotFound creates an error indicating that the object of the given kind
// does not exist.
func ErrNotFound(kind, id string) error {
	return errNotFound{kind: kind, id: id}
}

// Error returns the error message
func (e errNotFound) Error() string {
	return fmt.Sprintf("%s %s could not be found", e.kind, e.id)
}

// IsNotFound returns true if err is a result of a missing object.
func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(errNotFound)
	return ok
}

type errOwnership struct {
	cause string
}

// ErrOwnership creates an error indicating that an object referenced by a
// request is not owned by the requesting tenant.
func ErrOwnership(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errOwnership{cause: fmt.Sprintf(cause, args...)}
	}
	return errOwnership{cause: cause}
}

// Error returns the error message
func (e errOwnership) Error() string {
	return fmt.Sprintf("ownership violation: %s", e.cause)
}

// IsOwnership returns true if err is a result of a tenant mismatch.
func IsOwnership(err error) bool {
	_, ok := errors.Cause(err).(errOwnership)
	return ok
}

type errResourceExhausted struct {
	resource string
	cause    string
}

// ErrResourceExhausted creates an error indicating that a pool, such as the
// session identifier range, has no free entries left.
func ErrResourceExhausted(resource, cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errResourceExhausted{resource: resource, cause: fmt.Sprintf(cause, args...)}
	}
	return errResourceExhausted{resource: resource, cause: cause}
}

// Error returns the error message
func (e errResourceExhausted) Error() string {
	return fmt.Sprintf("resource %v is exhausted: %v", e.resource, e.cause)
}

// IsResourceExhausted returns true if err is a result of an exhausted pool.
func IsResourceExhausted(err error) bool {
	_, ok := errors.Cause(err).(errResourceExhausted)
	return ok
}

type errConflict struct {
	resourceType string
	value        string
}

// ErrConflict creates an error indicating that a requested value, such as a
// tunnel key, is already used by another object.
func ErrConflict(resourceType, value string) error {
	return errConflict{resourceType: resourceType, value: value}
}

// Error returns the error message
func (e errConflict) Error() string {
	return fmt.Sprintf("%v %v is already in use", e.resourceType, e.value)
}

// IsConflict returns true if err is a result of a value already in use.
func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(errConflict)
	return ok
}

type errDriverFailure struct {
	op    string
	cause error
}

// ErrDriverFailure wraps an error raised by a session driver during op.
func ErrDriverFailure(op string, cause error) error {
	return errDriverFailure{op: op, cause: cause}
}

// Error returns the error message
func (e errDriverFailure) Error() string {
	return fmt.Sprintf("driver %s failed: %v", e.op, e.cause)
}

// Unwrap returns the driver error.
func (e errDriverFailure) Unwrap() error {
	return e.cause
}

// IsDriverFailure returns true if err was raised by a session driver.
func IsDriverFailure(err error) bool {
	_, ok := errors.Cause(err).(errDriverFailure)
	return ok
}

type errTransient struct {
	cause string
}

// ErrTransient creates an error indicating a southbound failure that may
// succeed if retried, such as a lookup racing a topology change.
func ErrTransient(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errTransient{cause: fmt.Sprintf(cause, args...)}
	}
	return errTransient{cause: cause}
}

// Error returns the error message
func (e errTransient) Error() string {
	return fmt.Sprintf("transient southbound failure: %s", e.cause)
}

// IsTransient returns true if err is a retryable southbound failure.
func IsTransient(err error) bool {
	_, ok := errors.Cause(err).(errTransient)
	return ok
}

type errInvalidArgument struct {
	cause string
}

// ErrInvalidArgument creates an error indicating a malformed request.
func ErrInvalidArgument(cause string, args ...interface{}) error {
	if len(args) != 0 {
		return errInvalidArgument{cause: fmt.Sprintf(cause, args...)}
	}
	return errInvalidArgument{cause: cause}
}

// Error returns the error message
func (e errInvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.cause)
}

// IsInvalidArgument returns true if err is a result of a malformed request.
func IsInvalidArgument(err error) bool {
	_, ok := errors.Cause(err).(errInvalidArgument)
	return ok
}
