// Package grpc serves the Bridge service.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"github.com/dmitrijs2005/bridgex/internal/server/connections"
	"github.com/dmitrijs2005/bridgex/internal/server/metrics"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
	"github.com/dmitrijs2005/bridgex/internal/server/services"
	"github.com/dmitrijs2005/bridgex/internal/server/transfer"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"google.golang.org/grpc"
)

// downloadURLTTL bounds presigned links returned by FinalizeTransfer.
const downloadURLTTL = 15 * time.Minute

type PairingService interface {
	RequestPairing(ctx context.Context, deviceName, deviceType string) (*pairing.Invitation, error)
	CompletePairing(ctx context.Context, deviceID string, peerPublicKey []byte) (*services.PairingResult, error)
}

type DeviceService interface {
	ListDevices(ctx context.Context) ([]*models.Device, error)
	DeleteDevice(ctx context.Context, id string) error
	TouchDevice(ctx context.Context, id string, at time.Time) error
}

type TransferService interface {
	Init(ctx context.Context, req transfer.InitRequest) (*transfer.Status, error)
	IngestChunk(ctx context.Context, deviceID string, c transfer.Chunk) (*transfer.ChunkAck, error)
	Finalize(ctx context.Context, deviceID, transferID string) (*transfer.FinalResult, error)
	Status(ctx context.Context, deviceID, transferID string) (*transfer.Status, error)
	List(ctx context.Context, deviceID string, limit int) ([]*models.Transfer, error)
	DownloadURL(ctx context.Context, deviceID, transferID string, ttl time.Duration) (string, error)
}

// Deps are the services the gRPC server dispatches to.
type Deps struct {
	Pairing     PairingService
	Devices     DeviceService
	Transfers   TransferService
	Connections *connections.Registry
	Metrics     *metrics.Metrics
	Clock       timex.Clock
}

type GRPCServer struct {
	address     string
	pairing     PairingService
	devices     DeviceService
	transfers   TransferService
	connections *connections.Registry
	metrics     *metrics.Metrics
	clock       timex.Clock
	logger      logging.Logger
	jwtSecret   []byte
}

func NewGRPCServer(a string, l logging.Logger, d Deps, secretKey string) *GRPCServer {
	clock := d.Clock
	if clock == nil {
		clock = timex.SystemClock{}
	}
	conns := d.Connections
	if conns == nil {
		conns = connections.NewRegistry()
	}
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		pairing:     d.Pairing,
		devices:     d.Devices,
		transfers:   d.Transfers,
		connections: conns,
		metrics:     d.Metrics,
		clock:       clock,
		jwtSecret:   []byte(secretKey),
	}
}

// NewServer builds a grpc.Server with the Bridge service and the server's
// interceptors registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(
		s.metricsInterceptor,
		s.accessTokenInterceptor,
		validationInterceptor,
	))
	srv := grpc.NewServer(opts...)
	rpc.RegisterBridgeServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(l); err != nil {
		return err
	}

	return nil
}
