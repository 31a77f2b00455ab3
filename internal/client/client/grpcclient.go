package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// bridgeAPI is the surface of rpc.BridgeClient; tests substitute a fake.
type bridgeAPI interface {
	Ping(ctx context.Context, in *rpc.PingRequest, opts ...grpc.CallOption) (*rpc.PingResponse, error)
	RequestPairing(ctx context.Context, in *rpc.RequestPairingRequest, opts ...grpc.CallOption) (*rpc.RequestPairingResponse, error)
	CompletePairing(ctx context.Context, in *rpc.CompletePairingRequest, opts ...grpc.CallOption) (*rpc.CompletePairingResponse, error)
	ListDevices(ctx context.Context, in *rpc.ListDevicesRequest, opts ...grpc.CallOption) (*rpc.ListDevicesResponse, error)
	DeleteDevice(ctx context.Context, in *rpc.DeleteDeviceRequest, opts ...grpc.CallOption) (*rpc.DeleteDeviceResponse, error)
	InitTransfer(ctx context.Context, in *rpc.InitTransferRequest, opts ...grpc.CallOption) (*rpc.TransferStatusResponse, error)
	UploadChunk(ctx context.Context, in *rpc.UploadChunkRequest, opts ...grpc.CallOption) (*rpc.UploadChunkResponse, error)
	FinalizeTransfer(ctx context.Context, in *rpc.FinalizeTransferRequest, opts ...grpc.CallOption) (*rpc.FinalizeTransferResponse, error)
	TransferStatus(ctx context.Context, in *rpc.TransferStatusRequest, opts ...grpc.CallOption) (*rpc.TransferStatusResponse, error)
	ListTransfers(ctx context.Context, in *rpc.ListTransfersRequest, opts ...grpc.CallOption) (*rpc.ListTransfersResponse, error)
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      bridgeAPI

	mu          sync.RWMutex
	accessToken string
}

var _ Client = (*GRPCClient)(nil)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// accessTokenInterceptor attaches the current device token, if any. Device
// tokens are not refreshable; an expired token surfaces as ErrUnauthorized
// and the device has to pair again.
func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := s.token(); token != "" {
		ctx = withAccessToken(ctx, token)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewBridgeClientService(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewBridgeClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *GRPCClient) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) RequestPairing(ctx context.Context, deviceName, deviceType string) (*rpc.RequestPairingResponse, error) {
	resp, err := s.client.RequestPairing(ctx, &rpc.RequestPairingRequest{DeviceName: deviceName, DeviceType: deviceType})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) CompletePairing(ctx context.Context, deviceID string, publicKey []byte) (*rpc.CompletePairingResponse, error) {
	resp, err := s.client.CompletePairing(ctx, &rpc.CompletePairingRequest{DeviceID: deviceID, PublicKey: publicKey})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ListDevices(ctx context.Context) ([]rpc.Device, error) {
	resp, err := s.client.ListDevices(ctx, &rpc.ListDevicesRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Devices, nil
}

func (s *GRPCClient) DeleteDevice(ctx context.Context, deviceID string) error {
	if _, err := s.client.DeleteDevice(ctx, &rpc.DeleteDeviceRequest{DeviceID: deviceID}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) InitTransfer(ctx context.Context, req *rpc.InitTransferRequest) (*rpc.TransferStatusResponse, error) {
	resp, err := s.client.InitTransfer(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) UploadChunk(ctx context.Context, req *rpc.UploadChunkRequest) (*rpc.UploadChunkResponse, error) {
	resp, err := s.client.UploadChunk(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) FinalizeTransfer(ctx context.Context, transferID string) (*rpc.FinalizeTransferResponse, error) {
	resp, err := s.client.FinalizeTransfer(ctx, &rpc.FinalizeTransferRequest{TransferID: transferID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) TransferStatus(ctx context.Context, transferID string) (*rpc.TransferStatusResponse, error) {
	resp, err := s.client.TransferStatus(ctx, &rpc.TransferStatusRequest{TransferID: transferID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ListTransfers(ctx context.Context, limit int) ([]rpc.TransferSummary, error) {
	resp, err := s.client.ListTransfers(ctx, &rpc.ListTransfersRequest{Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Transfers, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.FailedPrecondition, codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.DataLoss:
		return fmt.Errorf("%w: %s", ErrIntegrity, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
