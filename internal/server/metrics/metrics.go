// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the server's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	PairingsTotal      *prometheus.CounterVec
	ChunksTotal        *prometheus.CounterVec
	BytesReceivedTotal prometheus.Counter
	FinalizeTotal      *prometheus.CounterVec
	ActiveTransfers    prometheus.Gauge
	GRPCRequestsTotal  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PairingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgex",
				Name:      "pairings_total",
				Help:      "Pairing attempts by outcome.",
			},
			[]string{"outcome"},
		),
		ChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgex",
				Name:      "chunks_total",
				Help:      "Chunks ingested by result.",
			},
			[]string{"result"},
		),
		BytesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bridgex",
				Name:      "bytes_received_total",
				Help:      "Chunk payload bytes accepted into staging.",
			},
		),
		FinalizeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgex",
				Name:      "finalize_total",
				Help:      "Finalize calls by outcome.",
			},
			[]string{"outcome"},
		),
		ActiveTransfers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bridgex",
				Name:      "active_transfers",
				Help:      "Transfers held in memory that have not reached a terminal state.",
			},
		),
		GRPCRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridgex",
				Name:      "grpc_requests_total",
				Help:      "gRPC requests by method and status code.",
			},
			[]string{"method", "code"},
		),
	}

	reg.MustRegister(
		m.PairingsTotal,
		m.ChunksTotal,
		m.BytesReceivedTotal,
		m.FinalizeTotal,
		m.ActiveTransfers,
		m.GRPCRequestsTotal,
	)
	return m
}

func (m *Metrics) Pairing(outcome string) {
	if m == nil {
		return
	}
	m.PairingsTotal.WithLabelValues(outcome).Inc()
}

// Chunk counts one ingested chunk and, when accepted, its payload size.
func (m *Metrics) Chunk(result string, n int) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(result).Inc()
	if n > 0 {
		m.BytesReceivedTotal.Add(float64(n))
	}
}

func (m *Metrics) Finalize(outcome string) {
	if m == nil {
		return
	}
	m.FinalizeTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TransferStarted() {
	if m == nil {
		return
	}
	m.ActiveTransfers.Inc()
}

func (m *Metrics) TransferEnded() {
	if m == nil {
		return
	}
	m.ActiveTransfers.Dec()
}

func (m *Metrics) GRPCRequest(method, code string) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
}
