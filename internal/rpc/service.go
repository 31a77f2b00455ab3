package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "bridgex.v1.Bridge"

const (
	MethodPing             = "Ping"
	MethodRequestPairing   = "RequestPairing"
	MethodCompletePairing  = "CompletePairing"
	MethodListDevices      = "ListDevices"
	MethodDeleteDevice     = "DeleteDevice"
	MethodInitTransfer     = "InitTransfer"
	MethodUploadChunk      = "UploadChunk"
	MethodFinalizeTransfer = "FinalizeTransfer"
	MethodTransferStatus   = "TransferStatus"
	MethodListTransfers    = "ListTransfers"
)

// FullMethod returns the "/service/method" path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// BridgeServer is implemented by the server side of the service.
type BridgeServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	RequestPairing(context.Context, *RequestPairingRequest) (*RequestPairingResponse, error)
	CompletePairing(context.Context, *CompletePairingRequest) (*CompletePairingResponse, error)
	ListDevices(context.Context, *ListDevicesRequest) (*ListDevicesResponse, error)
	DeleteDevice(context.Context, *DeleteDeviceRequest) (*DeleteDeviceResponse, error)
	InitTransfer(context.Context, *InitTransferRequest) (*TransferStatusResponse, error)
	UploadChunk(context.Context, *UploadChunkRequest) (*UploadChunkResponse, error)
	FinalizeTransfer(context.Context, *FinalizeTransferRequest) (*FinalizeTransferResponse, error)
	TransferStatus(context.Context, *TransferStatusRequest) (*TransferStatusResponse, error)
	ListTransfers(context.Context, *ListTransfersRequest) (*ListTransfersResponse, error)
}

func unary[Req, Resp any](method string, call func(BridgeServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(BridgeServer), ctx, req.(*Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the Bridge service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BridgeServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodPing, BridgeServer.Ping),
		unary(MethodRequestPairing, BridgeServer.RequestPairing),
		unary(MethodCompletePairing, BridgeServer.CompletePairing),
		unary(MethodListDevices, BridgeServer.ListDevices),
		unary(MethodDeleteDevice, BridgeServer.DeleteDevice),
		unary(MethodInitTransfer, BridgeServer.InitTransfer),
		unary(MethodUploadChunk, BridgeServer.UploadChunk),
		unary(MethodFinalizeTransfer, BridgeServer.FinalizeTransfer),
		unary(MethodTransferStatus, BridgeServer.TransferStatus),
		unary(MethodListTransfers, BridgeServer.ListTransfers),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bridgex/v1/bridge",
}

func RegisterBridgeServer(s grpc.ServiceRegistrar, srv BridgeServer) {
	s.RegisterService(&ServiceDesc, srv)
}
