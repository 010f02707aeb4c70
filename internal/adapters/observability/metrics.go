package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "placemap", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "placemap", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "placemap", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "placemap", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "placemap", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	InvalidCoordinates = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "placemap", Name: "invalid_coordinates_total", Help: "Locations dropped before clustering."},
	)
	ClusterPasses = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "placemap", Name: "cluster_passes_total", Help: "Cluster detection passes."},
	)
	ClusterSizes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "placemap", Name: "cluster_pass_size",
			Help:    "Points in and clusters out per detection pass.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"kind"}, // kind: points|clusters
	)
	LiveMarkers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "placemap", Name: "live_markers", Help: "Markers attached across all live map sessions."},
	)
	MapSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "placemap", Name: "map_sessions", Help: "Open live map sessions."},
	)
	Imports = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "placemap", Name: "imported_locations_total", Help: "Locations imported."},
		[]string{"source", "result"}, // result: ok|invalid|miss
	)
)

// Serve exposes reg on addr/metrics in the background. An empty addr
// disables it and returns nil.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		InvalidCoordinates, ClusterPasses, ClusterSizes, LiveMarkers, MapSessions, Imports,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveInvalidCoordinate() { InvalidCoordinates.Inc() }

func ObserveClusters(points, clusters int) {
	ClusterPasses.Inc()
	ClusterSizes.WithLabelValues("points").Observe(float64(points))
	ClusterSizes.WithLabelValues("clusters").Observe(float64(clusters))
}

// AddLiveMarkers adjusts the live marker gauge by delta (negative on removal).
func AddLiveMarkers(delta int) { LiveMarkers.Add(float64(delta)) }

func SessionOpened() { MapSessions.Inc() }
func SessionClosed() { MapSessions.Dec() }

func ObserveImport(source, result string) { Imports.WithLabelValues(source, result).Inc() }

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
