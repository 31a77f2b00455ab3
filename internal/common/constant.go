package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the device
// access token issued at pairing completion.
const AccessTokenHeaderName = "access_token"

// ServiceName is reported by health endpoints and used as the metrics namespace.
const ServiceName = "bridgex"

// Version of the backend reported by health endpoints.
const Version = "0.3.0"
