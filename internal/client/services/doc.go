// Package services holds the sender's application services: pairing with a
// bridge server and sending files over resumable, authenticated transfers.
package services
