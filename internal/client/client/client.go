package client

import (
	"context"

	"github.com/dmitrijs2005/bridgex/internal/rpc"
)

// Client is the transport-agnostic view of the bridge server used by the
// sender services.
type Client interface {
	Close() error
	SetAccessToken(token string)
	Ping(ctx context.Context) error
	RequestPairing(ctx context.Context, deviceName, deviceType string) (*rpc.RequestPairingResponse, error)
	CompletePairing(ctx context.Context, deviceID string, publicKey []byte) (*rpc.CompletePairingResponse, error)
	ListDevices(ctx context.Context) ([]rpc.Device, error)
	DeleteDevice(ctx context.Context, deviceID string) error
	InitTransfer(ctx context.Context, req *rpc.InitTransferRequest) (*rpc.TransferStatusResponse, error)
	UploadChunk(ctx context.Context, req *rpc.UploadChunkRequest) (*rpc.UploadChunkResponse, error)
	FinalizeTransfer(ctx context.Context, transferID string) (*rpc.FinalizeTransferResponse, error)
	TransferStatus(ctx context.Context, transferID string) (*rpc.TransferStatusResponse, error)
	ListTransfers(ctx context.Context, limit int) ([]rpc.TransferSummary, error)
}
