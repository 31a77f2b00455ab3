package rpc

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
)

const (
	maxDeviceNameLen = 128
	publicKeyLen     = 32
)

// Validator is implemented by requests that can check themselves before
// reaching a handler.
type Validator interface {
	Validate() error
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

type PingRequest struct{}

type PingResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

type RequestPairingRequest struct {
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

func (r *RequestPairingRequest) Validate() error {
	if r.DeviceName == "" {
		return invalid("device name is required")
	}
	if len(r.DeviceName) > maxDeviceNameLen {
		return invalid("device name longer than %d bytes", maxDeviceNameLen)
	}
	return nil
}

type RequestPairingResponse struct {
	DeviceID        string    `json:"device_id"`
	URI             string    `json:"uri"`
	QRCode          string    `json:"qr_code,omitempty"`
	ServerPublicKey []byte    `json:"server_public_key"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type CompletePairingRequest struct {
	DeviceID  string `json:"device_id"`
	PublicKey []byte `json:"public_key"`
}

func (r *CompletePairingRequest) Validate() error {
	if r.DeviceID == "" {
		return invalid("device id is required")
	}
	if len(r.PublicKey) != publicKeyLen {
		return invalid("public key must be %d bytes", publicKeyLen)
	}
	return nil
}

type CompletePairingResponse struct {
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	AccessToken     string `json:"access_token"`
	ServerPublicKey []byte `json:"server_public_key"`
	// KeyConfirmation proves the server derived the same session key.
	KeyConfirmation []byte `json:"key_confirmation"`
}

type Device struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	DeviceType string     `json:"device_type"`
	PairedAt   time.Time  `json:"paired_at"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

type ListDevicesRequest struct{}

type ListDevicesResponse struct {
	Devices []Device `json:"devices"`
}

type DeleteDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (r *DeleteDeviceRequest) Validate() error {
	if r.DeviceID == "" {
		return invalid("device id is required")
	}
	return nil
}

type DeleteDeviceResponse struct{}

type InitTransferRequest struct {
	FileName   string `json:"file_name"`
	FileSize   uint64 `json:"file_size"`
	FileHash   string `json:"file_hash"`
	Addressing string `json:"addressing,omitempty"`
	ChunkSize  int64  `json:"chunk_size,omitempty"`
}

func (r *InitTransferRequest) Validate() error {
	if r.FileName == "" {
		return invalid("file name is required")
	}
	if r.FileHash == "" {
		return invalid("file hash is required")
	}
	if r.ChunkSize < 0 {
		return invalid("chunk size must not be negative")
	}
	return nil
}

type ByteRange struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

type TransferStatusResponse struct {
	TransferID     string      `json:"transfer_id"`
	DeviceID       string      `json:"device_id"`
	FileName       string      `json:"file_name"`
	State          string      `json:"state"`
	Addressing     string      `json:"addressing"`
	ChunkSize      int64       `json:"chunk_size,omitempty"`
	BytesReceived  uint64      `json:"bytes_received"`
	ChunksReceived int         `json:"chunks_received"`
	Total          uint64      `json:"total"`
	NextIndex      uint64      `json:"next_index"`
	Missing        []ByteRange `json:"missing,omitempty"`
	Location       string      `json:"location,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

type UploadChunkRequest struct {
	TransferID string `json:"transfer_id"`
	Position   uint64 `json:"position"`
	Data       []byte `json:"data"`
	Tag        []byte `json:"tag"`
}

func (r *UploadChunkRequest) Validate() error {
	if r.TransferID == "" {
		return invalid("transfer id is required")
	}
	if len(r.Data) == 0 {
		return invalid("chunk data is empty")
	}
	if len(r.Tag) == 0 {
		return invalid("chunk tag is required")
	}
	return nil
}

type UploadChunkResponse struct {
	TransferID     string `json:"transfer_id"`
	Position       uint64 `json:"position"`
	Offset         uint64 `json:"offset"`
	BytesReceived  uint64 `json:"bytes_received"`
	ChunksReceived int    `json:"chunks_received"`
	Total          uint64 `json:"total"`
	NextIndex      uint64 `json:"next_index"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Corrected      bool   `json:"corrected,omitempty"`
	State          string `json:"state"`
}

type FinalizeTransferRequest struct {
	TransferID string `json:"transfer_id"`
}

func (r *FinalizeTransferRequest) Validate() error {
	if r.TransferID == "" {
		return invalid("transfer id is required")
	}
	return nil
}

type FinalizeTransferResponse struct {
	TransferID  string    `json:"transfer_id"`
	State       string    `json:"state"`
	Size        uint64    `json:"size"`
	Hash        string    `json:"hash"`
	Location    string    `json:"location"`
	DownloadURL string    `json:"download_url,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

type TransferStatusRequest struct {
	TransferID string `json:"transfer_id"`
}

func (r *TransferStatusRequest) Validate() error {
	if r.TransferID == "" {
		return invalid("transfer id is required")
	}
	return nil
}

type ListTransfersRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (r *ListTransfersRequest) Validate() error {
	if r.Limit < 0 {
		return invalid("limit must not be negative")
	}
	return nil
}

type TransferSummary struct {
	TransferID  string     `json:"transfer_id"`
	FileName    string     `json:"file_name"`
	FileSize    uint64     `json:"file_size"`
	State       string     `json:"state"`
	Location    string     `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type ListTransfersResponse struct {
	Transfers []TransferSummary `json:"transfers"`
}
