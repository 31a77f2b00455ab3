package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// BridgeClient calls the Bridge service over a client connection using the
// JSON codec.
type BridgeClient struct {
	cc grpc.ClientConnInterface
}

func NewBridgeClient(cc grpc.ClientConnInterface) *BridgeClient {
	return &BridgeClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BridgeClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *BridgeClient) RequestPairing(ctx context.Context, in *RequestPairingRequest, opts ...grpc.CallOption) (*RequestPairingResponse, error) {
	return invoke[RequestPairingResponse](ctx, c.cc, MethodRequestPairing, in, opts)
}

func (c *BridgeClient) CompletePairing(ctx context.Context, in *CompletePairingRequest, opts ...grpc.CallOption) (*CompletePairingResponse, error) {
	return invoke[CompletePairingResponse](ctx, c.cc, MethodCompletePairing, in, opts)
}

func (c *BridgeClient) ListDevices(ctx context.Context, in *ListDevicesRequest, opts ...grpc.CallOption) (*ListDevicesResponse, error) {
	return invoke[ListDevicesResponse](ctx, c.cc, MethodListDevices, in, opts)
}

func (c *BridgeClient) DeleteDevice(ctx context.Context, in *DeleteDeviceRequest, opts ...grpc.CallOption) (*DeleteDeviceResponse, error) {
	return invoke[DeleteDeviceResponse](ctx, c.cc, MethodDeleteDevice, in, opts)
}

func (c *BridgeClient) InitTransfer(ctx context.Context, in *InitTransferRequest, opts ...grpc.CallOption) (*TransferStatusResponse, error) {
	return invoke[TransferStatusResponse](ctx, c.cc, MethodInitTransfer, in, opts)
}

func (c *BridgeClient) UploadChunk(ctx context.Context, in *UploadChunkRequest, opts ...grpc.CallOption) (*UploadChunkResponse, error) {
	return invoke[UploadChunkResponse](ctx, c.cc, MethodUploadChunk, in, opts)
}

func (c *BridgeClient) FinalizeTransfer(ctx context.Context, in *FinalizeTransferRequest, opts ...grpc.CallOption) (*FinalizeTransferResponse, error) {
	return invoke[FinalizeTransferResponse](ctx, c.cc, MethodFinalizeTransfer, in, opts)
}

func (c *BridgeClient) TransferStatus(ctx context.Context, in *TransferStatusRequest, opts ...grpc.CallOption) (*TransferStatusResponse, error) {
	return invoke[TransferStatusResponse](ctx, c.cc, MethodTransferStatus, in, opts)
}

func (c *BridgeClient) ListTransfers(ctx context.Context, in *ListTransfersRequest, opts ...grpc.CallOption) (*ListTransfersResponse, error) {
	return invoke[ListTransfersResponse](ctx, c.cc, MethodListTransfers, in, opts)
}
