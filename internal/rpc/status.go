package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nainya/entitycore/pkg/errs"
	"github.com/nainya/entitycore/pkg/object"
)

// ToStatus maps a backend error to a gRPC status
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, object.ErrUniqueViolation):
		code = codes.AlreadyExists
	case errors.Is(err, errs.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, errs.ErrKeysUnallowed), errors.Is(err, errs.ErrInvalidInput), errors.Is(err, ErrMalformed):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}

// FromStatus maps a gRPC error back to the connector error contract.
// Lookups report a missing record as a bare NotFound; writes wrap it.
func FromStatus(op, modelName string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errs.Connector(op, err)
	}
	switch st.Code() {
	case codes.NotFound:
		if op == "find" {
			return errs.NotFound(modelName)
		}
		return errs.Connector(op, errs.NotFound(modelName))
	case codes.AlreadyExists:
		return errs.Connector(op, fmt.Errorf("%w: %s", object.ErrUniqueViolation, st.Message()))
	case codes.Canceled:
		return errs.Connector(op, context.Canceled)
	case codes.DeadlineExceeded:
		return errs.Connector(op, context.DeadlineExceeded)
	}
	return errs.Connector(op, err)
}
