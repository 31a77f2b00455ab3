// Package httpapi serves the side HTTP listener: health, status, metrics
// and QR images of pending pairing invitations.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/logging"
	"github.com/dmitrijs2005/bridgex/internal/pairing"
	"github.com/dmitrijs2005/bridgex/internal/qr"
	"github.com/dmitrijs2005/bridgex/internal/timex"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DeviceCounter reports persisted totals.
type DeviceCounter interface {
	CountDevices(ctx context.Context) (int64, error)
	CountActiveTransfers(ctx context.Context) (int64, error)
}

type TransferCounter interface {
	ActiveCount() int
}

type ConnectionCounter interface {
	Count() int
}

type InvitationSource interface {
	Invitation(deviceID string) (*pairing.Invitation, error)
	PendingCount() int
}

type Deps struct {
	Devices     DeviceCounter
	Transfers   TransferCounter
	Connections ConnectionCounter
	Pairing     InvitationSource
	Gatherer    prometheus.Gatherer
	Clock       timex.Clock
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusResponse struct {
	ActiveConnections   int   `json:"active_connections"`
	ActiveTransfers     int   `json:"active_transfers"`
	PairedDevices       int64 `json:"paired_devices"`
	PendingPairings     int   `json:"pending_pairings"`
	// UnfinishedTransfers counts stored records not yet completed or failed.
	UnfinishedTransfers int64 `json:"unfinished_transfers"`
}

type handler struct {
	deps   Deps
	logger logging.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(d Deps, l logging.Logger) http.Handler {
	if d.Clock == nil {
		d.Clock = timex.SystemClock{}
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{deps: d, logger: l}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/status", h.status)
		r.Get("/pair/{id}/qr.png", h.qrImage)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   common.ServiceName,
		Version:   common.Version,
		Timestamp: h.deps.Clock.Now(),
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deps.Devices.CountDevices(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "count devices", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	unfinished, err := h.deps.Devices.CountActiveTransfers(r.Context())
	if err != nil {
		h.logger.Error(r.Context(), "count transfers", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		ActiveConnections:   h.deps.Connections.Count(),
		ActiveTransfers:     h.deps.Transfers.ActiveCount(),
		PairedDevices:       devices,
		PendingPairings:     h.deps.Pairing.PendingCount(),
		UnfinishedTransfers: unfinished,
	})
}

func (h *handler) qrImage(w http.ResponseWriter, r *http.Request) {
	inv, err := h.deps.Pairing.Invitation(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error(r.Context(), "lookup invitation", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	png, err := qr.PNG(inv.URI, qr.DefaultSize)
	if err != nil {
		h.logger.Error(r.Context(), "render qr", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
