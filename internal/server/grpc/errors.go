package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/server/transfer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var invalidArgument = []error{
	common.ErrInvalidRequest,
	common.ErrInvalidKey,
	common.ErrChunkOutOfRange,
	common.ErrChunkOverlap,
	common.ErrChunkSize,
	common.ErrAddressingScheme,
	common.ErrDirectoryTraversal,
}

// toStatus maps a service error to a gRPC status. Unknown errors are logged
// by the caller and reported as Internal without detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	var coverage *transfer.CoverageError
	if errors.As(err, &coverage) {
		return status.Error(codes.FailedPrecondition, coverage.Error())
	}

	code := codeOf(err)
	if code == codes.Internal {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrExpired),
		errors.Is(err, common.ErrIncompleteTransfer),
		errors.Is(err, common.ErrInvalidState),
		errors.Is(err, common.ErrChunkOutOfOrder),
		errors.Is(err, common.ErrNoSession):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrAlreadyCompleted):
		return codes.AlreadyExists
	case errors.Is(err, common.ErrUnknownDevice),
		errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrIntegrity):
		return codes.DataLoss
	case errors.Is(err, common.ErrKeyMismatch):
		return codes.PermissionDenied
	case errors.Is(err, common.ErrChunkAuth),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrorUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	for _, e := range invalidArgument {
		if errors.Is(err, e) {
			return codes.InvalidArgument
		}
	}
	return codes.Internal
}
