package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/server/transfer"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{common.ErrExpired, codes.FailedPrecondition},
		{common.ErrAlreadyCompleted, codes.AlreadyExists},
		{common.ErrUnknownDevice, codes.NotFound},
		{common.ErrorNotFound, codes.NotFound},
		{common.ErrIntegrity, codes.DataLoss},
		{common.ErrKeyMismatch, codes.PermissionDenied},
		{common.ErrChunkAuth, codes.Unauthenticated},
		{common.ErrChunkOverlap, codes.InvalidArgument},
		{common.ErrDirectoryTraversal, codes.InvalidArgument},
		{common.ErrChunkOutOfOrder, codes.FailedPrecondition},
		{common.ErrNoSession, codes.FailedPrecondition},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{&transfer.CoverageError{TransferID: "t", Missing: []transfer.Range{{Offset: 0, Length: 1}}}, codes.FailedPrecondition},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			wrapped := fmt.Errorf("op: %w", tt.err)
			assert.Equal(t, tt.want, status.Code(toStatus(wrapped)))
		})
	}

	assert.NoError(t, toStatus(nil))
	assert.Equal(t, "internal error", status.Convert(toStatus(errors.New("db password leaked"))).Message())
}
