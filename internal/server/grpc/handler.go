package grpc

import (
	"context"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/rpc"
	"github.com/dmitrijs2005/bridgex/internal/server/models"
	"github.com/dmitrijs2005/bridgex/internal/server/transfer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fail converts err for the wire, logging anything unexpected.
func (s *GRPCServer) fail(ctx context.Context, op string, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, op+" failed", "error", err)
	}
	return st
}

func (s *GRPCServer) device(ctx context.Context) (string, error) {
	id, ok := deviceIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *rpc.PingRequest) (*rpc.PingResponse, error) {

	return &rpc.PingResponse{Status: "OK", Version: common.Version, Time: s.clock.Now()}, nil

}

func (s *GRPCServer) RequestPairing(ctx context.Context, req *rpc.RequestPairingRequest) (*rpc.RequestPairingResponse, error) {

	inv, err := s.pairing.RequestPairing(ctx, req.DeviceName, req.DeviceType)
	if err != nil {
		return nil, s.fail(ctx, "request pairing", err)
	}

	return &rpc.RequestPairingResponse{
		DeviceID:        inv.DeviceID,
		URI:             inv.URI,
		QRCode:          inv.QRCode,
		ServerPublicKey: inv.EphemeralPublicKey,
		ExpiresAt:       inv.ExpiresAt,
	}, nil
}

func (s *GRPCServer) CompletePairing(ctx context.Context, req *rpc.CompletePairingRequest) (*rpc.CompletePairingResponse, error) {

	res, err := s.pairing.CompletePairing(ctx, req.DeviceID, req.PublicKey)
	if err != nil {
		return nil, s.fail(ctx, "complete pairing", err)
	}

	s.logger.Info(ctx, "Paired", "device_id", res.Device.ID)
	return &rpc.CompletePairingResponse{
		DeviceID:        res.Device.ID,
		DeviceName:      res.Device.Name,
		AccessToken:     res.AccessToken,
		ServerPublicKey: res.ServerPublicKey,
		KeyConfirmation: res.KeyConfirmation,
	}, nil
}

func (s *GRPCServer) ListDevices(ctx context.Context, req *rpc.ListDevicesRequest) (*rpc.ListDevicesResponse, error) {

	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list devices", err)
	}

	out := make([]rpc.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, rpc.Device{
			ID:         d.ID,
			Name:       d.Name,
			DeviceType: d.DeviceType,
			PairedAt:   d.PairedAt,
			LastSeen:   d.LastSeen,
		})
	}
	return &rpc.ListDevicesResponse{Devices: out}, nil
}

// DeleteDevice unpairs the calling device. A device cannot unpair another.
func (s *GRPCServer) DeleteDevice(ctx context.Context, req *rpc.DeleteDeviceRequest) (*rpc.DeleteDeviceResponse, error) {
	caller, err := s.device(ctx)
	if err != nil {
		return nil, err
	}
	if req.DeviceID != caller {
		return nil, status.Error(codes.PermissionDenied, "devices can only unpair themselves")
	}

	if err := s.devices.DeleteDevice(ctx, req.DeviceID); err != nil {
		return nil, s.fail(ctx, "delete device", err)
	}
	s.connections.Remove(req.DeviceID)

	s.logger.Info(ctx, "Unpaired", "device_id", req.DeviceID)
	return &rpc.DeleteDeviceResponse{}, nil
}

func (s *GRPCServer) InitTransfer(ctx context.Context, req *rpc.InitTransferRequest) (*rpc.TransferStatusResponse, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.transfers.Init(ctx, transfer.InitRequest{
		DeviceID:   deviceID,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
		FileHash:   req.FileHash,
		Addressing: models.Addressing(req.Addressing),
		ChunkSize:  req.ChunkSize,
	})
	if err != nil {
		return nil, s.fail(ctx, "init transfer", err)
	}
	return statusResponse(st), nil
}

func (s *GRPCServer) UploadChunk(ctx context.Context, req *rpc.UploadChunkRequest) (*rpc.UploadChunkResponse, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}

	ack, err := s.transfers.IngestChunk(ctx, deviceID, transfer.Chunk{
		TransferID: req.TransferID,
		Position:   req.Position,
		Data:       req.Data,
		Tag:        req.Tag,
	})
	if err != nil {
		return nil, s.fail(ctx, "upload chunk", err)
	}

	return &rpc.UploadChunkResponse{
		TransferID:     ack.TransferID,
		Position:       ack.Position,
		Offset:         ack.Offset,
		BytesReceived:  ack.BytesReceived,
		ChunksReceived: ack.ChunksReceived,
		Total:          ack.Total,
		NextIndex:      ack.NextIndex,
		Duplicate:      ack.Duplicate,
		Corrected:      ack.Corrected,
		State:          string(ack.Status),
	}, nil
}

func (s *GRPCServer) FinalizeTransfer(ctx context.Context, req *rpc.FinalizeTransferRequest) (*rpc.FinalizeTransferResponse, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.transfers.Finalize(ctx, deviceID, req.TransferID)
	if err != nil {
		return nil, s.fail(ctx, "finalize transfer", err)
	}

	resp := &rpc.FinalizeTransferResponse{
		TransferID:  res.TransferID,
		State:       string(res.State),
		Size:        res.Size,
		Hash:        res.Hash,
		Location:    res.Location,
		CompletedAt: res.CompletedAt,
	}
	if url, err := s.transfers.DownloadURL(ctx, deviceID, res.TransferID, downloadURLTTL); err != nil {
		s.logger.Warn(ctx, "download url", "transfer_id", res.TransferID, "error", err)
	} else {
		resp.DownloadURL = url
	}
	return resp, nil
}

func (s *GRPCServer) TransferStatus(ctx context.Context, req *rpc.TransferStatusRequest) (*rpc.TransferStatusResponse, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.transfers.Status(ctx, deviceID, req.TransferID)
	if err != nil {
		return nil, s.fail(ctx, "transfer status", err)
	}
	return statusResponse(st), nil
}

func (s *GRPCServer) ListTransfers(ctx context.Context, req *rpc.ListTransfersRequest) (*rpc.ListTransfersResponse, error) {
	deviceID, err := s.device(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.transfers.List(ctx, deviceID, req.Limit)
	if err != nil {
		return nil, s.fail(ctx, "list transfers", err)
	}

	out := make([]rpc.TransferSummary, 0, len(list))
	for _, t := range list {
		out = append(out, rpc.TransferSummary{
			TransferID:  t.ID,
			FileName:    t.FileName,
			FileSize:    t.FileSize,
			State:       string(t.Status),
			Location:    t.Location,
			CreatedAt:   t.CreatedAt,
			CompletedAt: t.CompletedAt,
		})
	}
	return &rpc.ListTransfersResponse{Transfers: out}, nil
}

func statusResponse(st *transfer.Status) *rpc.TransferStatusResponse {
	missing := make([]rpc.ByteRange, 0, len(st.Missing))
	for _, r := range st.Missing {
		missing = append(missing, rpc.ByteRange{Offset: r.Offset, Length: r.Length})
	}
	return &rpc.TransferStatusResponse{
		TransferID:     st.TransferID,
		DeviceID:       st.DeviceID,
		FileName:       st.FileName,
		State:          string(st.State),
		Addressing:     string(st.Addressing),
		ChunkSize:      st.ChunkSize,
		BytesReceived:  st.BytesReceived,
		ChunksReceived: st.ChunksReceived,
		Total:          st.Total,
		NextIndex:      st.NextIndex,
		Missing:        missing,
		Location:       st.Location,
		CreatedAt:      st.CreatedAt,
		CompletedAt:    st.CompletedAt,
	}
}
