// Package client contains the sender's connection to the bridge server.
//
// GRPCClient wraps rpc.BridgeClient, attaches the device access token to
// every call through a unary interceptor and maps gRPC status codes to the
// sentinel errors in errors.go so callers can use errors.Is.
//
// InitDatabase opens the local SQLite state file and applies the embedded
// migrations; NewRepositories binds the repositories to it.
package client
