package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotPaired    = errors.New("device is not paired")
	// ErrRejected marks requests the server refused because of transfer
	// state, such as finalizing before every byte arrived.
	ErrRejected  = errors.New("rejected by server")
	ErrNotFound  = errors.New("not found")
	ErrIntegrity = errors.New("integrity check failed")
)
