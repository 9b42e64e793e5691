package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	journalsPosted  *prometheus.CounterVec
	invoices        *prometheus.CounterVec
	collisions      prometheus.Counter
	costRecomputes  *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry, metrik HTTP dan metrik domain.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	journals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_journals_posted_total",
		Help: "Jurnal yang berhasil diposting per tipe.",
	}, []string{"type"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_invoices_allocated_total",
		Help: "Nomor invoice yang dialokasikan per prefix.",
	}, []string{"prefix"})
	collisions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_invoice_collisions_total",
		Help: "Alokasi invoice yang gagal setelah batas percobaan.",
	})
	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_cost_recomputes_total",
		Help: "Perhitungan ulang harga pokok per hasil.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, journals, invoices, collisions, recomputes)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		journalsPosted:  journals,
		invoices:        invoices,
		collisions:      collisions,
		costRecomputes:  recomputes,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// JournalPosted dipanggil ledger setelah jurnal tersimpan.
func (m *Metrics) JournalPosted(journalType string) {
	if m == nil {
		return
	}
	m.journalsPosted.WithLabelValues(journalType).Inc()
}

// InvoiceAllocated dipanggil sequencer untuk setiap nomor baru.
func (m *Metrics) InvoiceAllocated(prefix string) {
	if m == nil {
		return
	}
	m.invoices.WithLabelValues(prefix).Inc()
}

// InvoiceCollision mencatat alokasi yang menyerah.
func (m *Metrics) InvoiceCollision() {
	if m == nil {
		return
	}
	m.collisions.Inc()
}

// CostRecomputed mencatat hasil perhitungan ulang harga pokok.
func (m *Metrics) CostRecomputed(outcome string) {
	if m == nil {
		return
	}
	m.costRecomputes.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
