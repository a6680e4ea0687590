package errdefs

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToGRPC converts err into a gRPC status error carrying the matching code.
// Errors that already carry a status are returned unchanged.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(errors.Cause(err)); ok {
		return errors.Cause(err)
	}
	return status.Error(Code(err), err.Error())
}

// Code returns the gRPC code matching err.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case IsNotFound(err):
		return codes.NotFound
	case IsOwnership(err):
		return codes.PermissionDenied
	case IsResourceExhausted(err):
		return codes.ResourceExhausted
	case IsConflict(err):
		return codes.AlreadyExists
	case IsInvalidArgument(err):
		return codes.InvalidArgument
	case IsTransient(err):
		return codes.Unavailable
	case IsDriverFailure(err):
		return codes.Internal
	}
	return codes.Unknown
}
