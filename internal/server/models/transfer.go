package models

import "time"

// TransferStatus is the persisted state of a transfer.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferUploading  TransferStatus = "uploading"
	TransferAssembling TransferStatus = "assembling"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferFailed
}

// Addressing selects how chunks are positioned within a transfer. It is fixed
// for the lifetime of one transfer.
type Addressing string

const (
	// AddressingOffset places chunks by byte offset, in any arrival order.
	AddressingOffset Addressing = "offset"
	// AddressingIndex places chunks by sequential index times ChunkSize.
	AddressingIndex Addressing = "index"
)

func (a Addressing) Valid() bool {
	return a == AddressingOffset || a == AddressingIndex
}

// Transfer is the durable record of one file transfer. Records are kept
// after completion or failure for history.
type Transfer struct {
	ID         string
	DeviceID   string
	FileName   string
	FileSize   uint64
	FileHash   string
	Addressing Addressing
	ChunkSize  int64
	Status     TransferStatus
	CreatedAt  time.Time
	// CompletedAt is set when the transfer reaches a terminal state.
	CompletedAt *time.Time
	// Location of the final artifact once completed.
	Location string
}
