// Package common defines shared constants and sentinel errors used across
// the pairing, transfer and registry layers of BridgeX. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid request")

	// Pairing errors.
	ErrExpired          = errors.New("pairing invitation expired")
	ErrAlreadyCompleted = errors.New("pairing invitation already completed")
	ErrKeyMismatch      = errors.New("public key does not match paired device")
	ErrInvalidKey       = errors.New("invalid public key")
	ErrNoSession        = errors.New("no session key for device")

	// Transfer errors.
	ErrUnknownDevice      = errors.New("unknown device")
	ErrIncompleteTransfer = errors.New("incomplete transfer")
	ErrIntegrity          = errors.New("integrity check failed")
	ErrInvalidState       = errors.New("invalid transfer state")
	ErrChunkAuth          = errors.New("chunk authentication failed")
	ErrChunkOutOfRange    = errors.New("chunk outside declared file size")
	ErrChunkOverlap       = errors.New("chunk overlaps a received chunk")
	ErrChunkOutOfOrder    = errors.New("chunk index out of order")
	ErrChunkSize          = errors.New("chunk size does not match transfer chunk size")
	ErrAddressingScheme   = errors.New("addressing scheme does not match transfer")
	ErrDirectoryTraversal = errors.New("file name contains path components")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
