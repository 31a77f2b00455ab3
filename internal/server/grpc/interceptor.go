package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"github.com/dmitrijs2005/bridgex/internal/server/auth"
	"github.com/dmitrijs2005/bridgex/internal/server/connections"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const deviceIDKey ctxKey = "deviceID"

// publicMethods can be called without a device token.
var publicMethods = map[string]bool{
	rpc.FullMethod(rpc.MethodPing):            true,
	rpc.FullMethod(rpc.MethodRequestPairing):  true,
	rpc.FullMethod(rpc.MethodCompletePairing): true,
}

func deviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceIDKey).(string)
	return id, ok && id != ""
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	deviceID, err := auth.GetDeviceIDFromToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	now := s.clock.Now()
	if err := s.devices.TouchDevice(ctx, deviceID, now); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.connections.Remove(deviceID)
			return nil, status.Error(codes.Unauthenticated, "device is not paired")
		}
		s.logger.Warn(ctx, "touch device", "device_id", deviceID, "error", err)
	}
	s.connections.Touch(deviceID, connections.TypeGRPC, now)

	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	return handler(ctx, req)
}

func validationInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if v, ok := req.(rpc.Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return handler(ctx, req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	s.metrics.GRPCRequest(info.FullMethod, status.Code(err).String())
	return resp, err
}
