// Package connections tracks the peers currently talking to the server.
package connections

import (
	"slices"
	"strings"
	"sync"
	"time"
)

type ConnectionType string

const (
	TypeWebRTC    ConnectionType = "webrtc"
	TypeTCP       ConnectionType = "tcp"
	TypeWebSocket ConnectionType = "websocket"
	TypeGRPC      ConnectionType = "grpc"
)

// Connection describes one connected peer.
type Connection struct {
	DeviceID      string
	DeviceName    string
	Type          ConnectionType
	EstablishedAt time.Time
	LastSeen      time.Time
}

// Registry is a set of connections keyed by device id. A device has at most
// one connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Connection)}
}

// Add records c, replacing any connection of the same device.
func (r *Registry) Add(c Connection) {
	if c.LastSeen.IsZero() {
		c.LastSeen = c.EstablishedAt
	}
	r.mu.Lock()
	r.conns[c.DeviceID] = c
	r.mu.Unlock()
}

// Touch refreshes LastSeen of a device, adding a connection of type t when
// none is known.
func (r *Registry) Touch(deviceID string, t ConnectionType, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[deviceID]
	if !ok {
		c = Connection{DeviceID: deviceID, Type: t, EstablishedAt: at}
	}
	c.LastSeen = at
	r.conns[deviceID] = c
}

func (r *Registry) Get(deviceID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[deviceID]
	return c, ok
}

func (r *Registry) Remove(deviceID string) {
	r.mu.Lock()
	delete(r.conns, deviceID)
	r.mu.Unlock()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// List returns the connections ordered by device id.
func (r *Registry) List() []Connection {
	r.mu.RLock()
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Connection) int { return strings.Compare(a.DeviceID, b.DeviceID) })
	return out
}

// Prune drops connections not seen since cutoff and returns how many were
// dropped.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, c := range r.conns {
		if c.LastSeen.Before(cutoff) {
			delete(r.conns, id)
			n++
		}
	}
	return n
}
