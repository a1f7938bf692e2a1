// Package metrics exposes the Prometheus collectors for the chat fabric and
// sync engine: connection/room gauges, message counters, pipeline run
// counters and durations, plus generic HTTP and service-lifecycle
// instrumentation shared by both subsystems.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partshub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	wsConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "ws_connections_active",
			Help:      "Current number of open WebSocket connections.",
		},
	)

	wsConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "ws_connections_total",
			Help:      "Total WebSocket connections accepted, by close reason once closed.",
		},
		[]string{"reason"},
	)

	wsFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "ws_frames_total",
			Help:      "Total WebSocket frames processed, grouped by direction and kind.",
		},
		[]string{"direction", "kind"},
	)

	wsFrameDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "ws_frame_duration_seconds",
			Help:      "Duration of inbound WebSocket frame handling.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"kind"},
	)

	chatPresenceUsersOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "presence_users_online",
			Help:      "Current number of distinct users with an open WebSocket connection.",
		},
	)

	chatMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total chat messages processed, grouped by command and result.",
		},
		[]string{"command", "result"},
	)

	chatRoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "rooms_active",
			Help:      "Current number of rooms with at least one connected member.",
		},
	)

	chatRateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "chat",
			Name:      "rate_limit_rejections_total",
			Help:      "Messages rejected by the per-user rate limiter.",
		},
		[]string{"room_id"},
	)

	syncPipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "sync",
			Name:      "pipeline_runs_total",
			Help:      "Total sync pipeline runs, grouped by connector, entity kind, and result.",
		},
		[]string{"connector", "entity_kind", "result"},
	)

	syncPipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "partshub",
			Subsystem: "sync",
			Name:      "pipeline_duration_seconds",
			Help:      "Duration of sync pipeline runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"connector", "entity_kind"},
	)

	syncRecordsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "sync",
			Name:      "records_processed_total",
			Help:      "Total records processed by the sync engine, grouped by entity kind and outcome.",
		},
		[]string{"entity_kind", "outcome"},
	)

	syncConnectorErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "sync",
			Name:      "connector_errors_total",
			Help:      "Total connector-level errors, grouped by connector kind.",
		},
		[]string{"connector"},
	)

	moduleReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "runtime",
			Name:      "module_ready",
			Help:      "Current readiness of runtime services (1 ready, 0 otherwise).",
		},
		[]string{"service"},
	)

	moduleStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "runtime",
			Name:      "module_status",
			Help:      "Lifecycle status of runtime services (one-hot by status label).",
		},
		[]string{"service", "status"},
	)

	moduleStartSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "runtime",
			Name:      "module_start_seconds",
			Help:      "Start duration for runtime services (seconds).",
		},
		[]string{"service"},
	)

	moduleStopSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "partshub",
			Subsystem: "runtime",
			Name:      "module_stop_seconds",
			Help:      "Stop duration for runtime services (seconds).",
		},
		[]string{"service"},
	)

	busFanout = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "partshub",
			Subsystem: "runtime",
			Name:      "event_bus_dispatch_total",
			Help:      "Count of event bus dispatches grouped by topic and result.",
		},
		[]string{"topic", "result"},
	)

	busFanoutCounts = struct {
		mu    sync.Mutex
		count map[string]struct{ ok, err float64 }
	}{count: make(map[string]struct{ ok, err float64 })}

	busFanoutHistory = struct {
		mu     sync.Mutex
		points map[string][]fanoutPoint
	}{points: make(map[string][]fanoutPoint)}

	fanoutRetention = 10 * time.Minute

	observationCollectors sync.Map
)

// fanoutPoint captures a timestamped fan-out result for short-term windows.
type fanoutPoint struct {
	at    time.Time
	isErr bool
}

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		wsConnectionsActive,
		wsConnectionsTotal,
		wsFramesTotal,
		wsFrameDuration,
		chatPresenceUsersOnline,
		chatMessagesTotal,
		chatRoomsActive,
		chatRateLimitRejections,
		syncPipelineRuns,
		syncPipelineDuration,
		syncRecordsProcessed,
		syncConnectorErrors,
		moduleReady,
		moduleStatus,
		moduleStartSeconds,
		moduleStopSeconds,
		busFanout,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// WSConnectionOpened records a newly accepted WebSocket connection.
func WSConnectionOpened() {
	wsConnectionsActive.Inc()
}

// WSConnectionClosed records a closed WebSocket connection and its reason
// (e.g. "client_close", "idle_timeout", "server_shutdown").
func WSConnectionClosed(reason string) {
	wsConnectionsActive.Dec()
	if reason == "" {
		reason = "unknown"
	}
	wsConnectionsTotal.WithLabelValues(reason).Inc()
}

// RecordChatMessage records a processed chat command and its outcome.
func RecordChatMessage(command string, err error) {
	if command == "" {
		command = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	chatMessagesTotal.WithLabelValues(command, result).Inc()
}

// SetChatRoomsActive sets the current count of rooms with a connected member.
func SetChatRoomsActive(count int) {
	chatRoomsActive.Set(float64(count))
}

// RecordWSFrame records one WebSocket frame's direction, kind, and processing time.
// direction is "in" or "out"; duration is only meaningful for inbound frames.
func RecordWSFrame(direction, kind string, duration time.Duration) {
	if direction == "" {
		direction = "in"
	}
	if kind == "" {
		kind = "unknown"
	}
	wsFramesTotal.WithLabelValues(direction, kind).Inc()
	if direction == "in" {
		wsFrameDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// SetChatPresenceUsersOnline sets the current distinct-user presence gauge.
func SetChatPresenceUsersOnline(count int) {
	chatPresenceUsersOnline.Set(float64(count))
}

// RecordChatRateLimitRejection records a message dropped by the per-user limiter.
func RecordChatRateLimitRejection(roomID string) {
	if roomID == "" {
		roomID = "unknown"
	}
	chatRateLimitRejections.WithLabelValues(roomID).Inc()
}

// RecordSyncPipelineRun records the outcome and duration of a sync pipeline run.
func RecordSyncPipelineRun(connector, entityKind string, duration time.Duration, err error) {
	if connector == "" {
		connector = "unknown"
	}
	if entityKind == "" {
		entityKind = "unknown"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	syncPipelineRuns.WithLabelValues(connector, entityKind, result).Inc()
	syncPipelineDuration.WithLabelValues(connector, entityKind).Observe(duration.Seconds())
}

// RecordSyncRecords records created/updated/failed record counts for one run
// under records_processed_total, one outcome label each.
func RecordSyncRecords(entityKind string, created, updated, failed int) {
	if entityKind == "" {
		entityKind = "unknown"
	}
	syncRecordsProcessed.WithLabelValues(entityKind, "created").Add(float64(created))
	syncRecordsProcessed.WithLabelValues(entityKind, "updated").Add(float64(updated))
	syncRecordsProcessed.WithLabelValues(entityKind, "failed").Add(float64(failed))
}

// RecordSyncConnectorError records a connector-level failure (connect, query, or parse).
func RecordSyncConnectorError(connector string) {
	if connector == "" {
		connector = "unknown"
	}
	syncConnectorErrors.WithLabelValues(connector).Inc()
}

// ServiceMetric captures lifecycle/readiness for a runtime service.
type ServiceMetric struct {
	Name   string
	Status string
	Ready  bool
}

// RecordServiceMetrics publishes service lifecycle/readiness gauges, resetting
// previous values so a service's prior status doesn't linger after a transition.
func RecordServiceMetrics(services []ServiceMetric) {
	moduleReady.Reset()
	moduleStatus.Reset()
	for _, svc := range services {
		ready := 0.0
		if svc.Ready {
			ready = 1.0
		}
		moduleReady.WithLabelValues(svc.Name).Set(ready)
		moduleStatus.WithLabelValues(svc.Name, svc.Status).Set(1)
	}
}

// ServiceTiming captures start/stop durations for a runtime service.
type ServiceTiming struct {
	Name         string
	StartSeconds float64
	StopSeconds  float64
}

// RecordServiceTimings publishes service start/stop durations (seconds).
func RecordServiceTimings(timings []ServiceTiming) {
	moduleStartSeconds.Reset()
	moduleStopSeconds.Reset()
	for _, t := range timings {
		if t.Name == "" {
			continue
		}
		moduleStartSeconds.WithLabelValues(t.Name).Set(t.StartSeconds)
		moduleStopSeconds.WithLabelValues(t.Name).Set(t.StopSeconds)
	}
}

// RecordBusDispatch increments event bus dispatch counters by topic and result (ok|error).
func RecordBusDispatch(topic string, err error) {
	if topic == "" {
		topic = "unknown"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	busFanout.WithLabelValues(topic, result).Inc()
	busFanoutCounts.mu.Lock()
	entry := busFanoutCounts.count[topic]
	if result == "error" {
		entry.err++
	} else {
		entry.ok++
	}
	busFanoutCounts.count[topic] = entry
	busFanoutCounts.mu.Unlock()
	now := time.Now()
	busFanoutHistory.mu.Lock()
	points := append(busFanoutHistory.points[topic], fanoutPoint{at: now, isErr: result == "error"})
	cutoff := now.Add(-fanoutRetention)
	pruned := points[:0]
	for _, p := range points {
		if p.at.After(cutoff) {
			pruned = append(pruned, p)
		}
	}
	busFanoutHistory.points[topic] = pruned
	busFanoutHistory.mu.Unlock()
}

// BusDispatchSnapshot returns aggregate dispatch counts grouped by topic.
func BusDispatchSnapshot() map[string]struct {
	OK    float64 `json:"ok"`
	Error float64 `json:"error"`
} {
	busFanoutCounts.mu.Lock()
	defer busFanoutCounts.mu.Unlock()
	out := make(map[string]struct {
		OK    float64 `json:"ok"`
		Error float64 `json:"error"`
	}, len(busFanoutCounts.count))
	for topic, val := range busFanoutCounts.count {
		out[topic] = struct {
			OK    float64 `json:"ok"`
			Error float64 `json:"error"`
		}{OK: val.ok, Error: val.err}
	}
	return out
}

// BusDispatchWindow returns dispatch counts for the provided window (e.g., 5m).
func BusDispatchWindow(window time.Duration) map[string]struct {
	OK    float64 `json:"ok"`
	Error float64 `json:"error"`
} {
	if window <= 0 {
		window = 5 * time.Minute
	}
	now := time.Now()
	cutoff := now.Add(-window)
	busFanoutHistory.mu.Lock()
	defer busFanoutHistory.mu.Unlock()
	out := make(map[string]struct {
		OK    float64 `json:"ok"`
		Error float64 `json:"error"`
	}, len(busFanoutHistory.points))
	for topic, points := range busFanoutHistory.points {
		var ok, errCount float64
		var pruned []fanoutPoint
		for _, p := range points {
			if p.at.Before(now.Add(-fanoutRetention)) {
				continue
			}
			pruned = append(pruned, p)
			if p.at.Before(cutoff) {
				continue
			}
			if p.isErr {
				errCount++
			} else {
				ok++
			}
		}
		busFanoutHistory.points[topic] = pruned
		out[topic] = struct {
			OK    float64 `json:"ok"`
			Error float64 `json:"error"`
		}{OK: ok, Error: errCount}
	}
	return out
}

// ObservationHooks are lifecycle callbacks a long-running operation invokes
// on start and completion; the runtime registry wires these to in-flight
// gauges and duration histograms per named operation.
type ObservationHooks struct {
	OnStart    func(ctx context.Context, meta map[string]string)
	OnComplete func(ctx context.Context, meta map[string]string, err error, duration time.Duration)
}

// DispatchHooks is an alias for ObservationHooks used at dispatch call sites.
type DispatchHooks = ObservationHooks

type observationCollector struct {
	gauge *prometheus.GaugeVec
	hist  *prometheus.HistogramVec
}

// NewObservationHooks creates observation hooks backed by Prometheus metrics,
// caching the underlying collector per (namespace, subsystem, name) so repeat
// calls reuse the same vectors instead of re-registering them.
func NewObservationHooks(namespace, subsystem, name string) ObservationHooks {
	key := namespace + ":" + subsystem + ":" + name
	var collector observationCollector
	if entry, ok := observationCollectors.Load(key); ok {
		collector = entry.(observationCollector)
	} else {
		collector = createObservationCollector(namespace, subsystem, name)
		observationCollectors.Store(key, collector)
	}
	return ObservationHooks{
		OnStart: func(ctx context.Context, meta map[string]string) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Inc()
		},
		OnComplete: func(ctx context.Context, meta map[string]string, err error, duration time.Duration) {
			label := metaLabel(meta)
			collector.gauge.WithLabelValues(label).Dec()
			status := "success"
			if err != nil {
				status = "error"
			}
			collector.hist.WithLabelValues(label, status).Observe(duration.Seconds())
		},
	}
}

func createObservationCollector(namespace, subsystem, name string) observationCollector {
	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_in_flight",
			Help:      "Current operations in flight for " + subsystem,
		},
		[]string{"resource"},
	)
	hist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name + "_duration_seconds",
			Help:      "Duration of operations for " + subsystem,
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"resource", "status"},
	)
	Registry.MustRegister(gauge, hist)
	return observationCollector{gauge: gauge, hist: hist}
}

func metaLabel(meta map[string]string) string {
	if meta == nil {
		return "unknown"
	}
	if id, ok := meta["resource"]; ok && id != "" {
		return id
	}
	if id, ok := meta["room_id"]; ok && id != "" {
		return id
	}
	if id, ok := meta["entity_kind"]; ok && id != "" {
		return id
	}
	if id, ok := meta["connector"]; ok && id != "" {
		return id
	}
	return "unknown"
}

// SyncPipelineHooks captures per-entity-kind pipeline run instrumentation.
func SyncPipelineHooks() ObservationHooks {
	return NewObservationHooks("partshub", "sync", "pipeline")
}

// ChatDispatchHooks captures chat command dispatch attempts.
func ChatDispatchHooks() DispatchHooks {
	return NewObservationHooks("partshub", "chat", "dispatch")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 {
		return "/"
	}
	if parts[0] != "rooms" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/rooms"
	}
	if len(parts) == 2 {
		return "/rooms/:room"
	}
	resource := parts[1]
	return "/rooms/" + resource
}
