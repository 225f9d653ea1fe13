package grpcledger

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// toStatus converts a backend error into a gRPC status for the wire.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ledger.ErrBadSignature):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ledger.ErrListUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, ledger.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a gRPC status back into the ledger's sentinel errors.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ledger.ErrUnavailable, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, context.DeadlineExceeded)
	case codes.Canceled:
		return context.Canceled
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ledger.ErrBadSignature, st.Message())
	case codes.Unimplemented:
		return ledger.ErrListUnsupported
	default:
		return err
	}
}
