// Package telemetry exposes Prometheus metrics and the health endpoint.
package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/models"
)

// Metrics is the process metric set.
type Metrics struct {
	registry *prometheus.Registry

	BooksIngested  *prometheus.CounterVec
	BooksDropped   prometheus.Counter
	Opportunities  *prometheus.CounterVec
	AlertsSent     prometheus.Counter
	AlertsDeduped  prometheus.Counter
	ScanDuration   *prometheus.HistogramVec
	QueueDepth     *prometheus.GaugeVec
	VenueConnected *prometheus.GaugeVec
}

// NewMetrics builds and registers the metric set on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		BooksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbwatch_books_ingested_total",
			Help: "Order book snapshots accepted into the store.",
		}, []string{"venue"}),
		BooksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbwatch_books_dropped_total",
			Help: "Malformed or crossed snapshots discarded at the boundary.",
		}),
		Opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbwatch_opportunities_total",
			Help: "Detections emitted by the scanners.",
		}, []string{"kind"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbwatch_alerts_sent_total",
			Help: "Alerts delivered through the notifier.",
		}),
		AlertsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbwatch_alerts_deduped_total",
			Help: "Detections suppressed by the dedup window.",
		}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbwatch_scan_duration_seconds",
			Help:    "Duration of one scanner pass.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbwatch_queue_depth",
			Help: "Per-venue ingest queue high-water depth.",
		}, []string{"venue"}),
		VenueConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arbwatch_venue_connected",
			Help: "1 when the venue stream is connected.",
		}, []string{"venue"}),
	}
	reg.MustRegister(
		m.BooksIngested, m.BooksDropped, m.Opportunities,
		m.AlertsSent, m.AlertsDeduped, m.ScanDuration,
		m.QueueDepth, m.VenueConnected,
	)
	return m
}

// HealthSource supplies the current health snapshots for the endpoint.
type HealthSource interface {
	Snapshot() []models.VenueHealth
}

// Server serves /metrics and /health.
type Server struct {
	srv *http.Server
}

// NewServer wires the telemetry endpoints on addr.
func NewServer(addr string, m *Metrics, health HealthSource) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		snaps := health.Snapshot()
		now := time.Now()
		healthy := true
		for _, h := range snaps {
			if !h.Healthy(now) {
				healthy = false
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"healthy": healthy,
			"venues":  snaps,
		})
	}).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start serves until Shutdown. It returns immediately.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("telemetry server failed")
		}
	}()
	log.Info().Str("addr", s.srv.Addr).Msg("telemetry listening")
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
