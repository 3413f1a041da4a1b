package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the collector and its HTTP endpoint.
type Config struct {
	Enabled        bool              `yaml:"enabled"`
	Port           int               `yaml:"port"`
	Path           string            `yaml:"path"`
	Labels         map[string]string `yaml:"labels"`
	Namespace      string            `yaml:"namespace"`
	Subsystem      string            `yaml:"subsystem"`
	UpdateInterval time.Duration     `yaml:"update_interval"`
}

// OperationMetrics is the internal per-operation aggregate kept alongside
// the Prometheus series, for the debug endpoints.
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalSize     int64         `json:"total_size"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
	AvgSize       float64       `json:"avg_size"`
}

// Collector aggregates upload, restore, and lifecycle metrics and serves
// them over /metrics.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	operationSize     *prometheus.HistogramVec
	queueDepthGauge   *prometheus.GaugeVec
	activeUploads     prometheus.Gauge
	activeConnections prometheus.Gauge
	errorCounter      *prometheus.CounterVec

	operations map[string]*OperationMetrics
	lastReset  time.Time

	server *http.Server
}

// NewCollector constructs a Collector. A nil config enables the default
// endpoint on :8080 under the "reelvault" namespace; a disabled config
// yields a collector whose record methods are all no-ops.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:        true,
			Port:           8080,
			Path:           "/metrics",
			Namespace:      "reelvault",
			UpdateInterval: 30 * time.Second,
			Labels:         make(map[string]string),
		}
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	c := &Collector{
		config:     config,
		registry:   prometheus.NewRegistry(),
		operations: make(map[string]*OperationMetrics),
		lastReset:  time.Now(),
	}

	c.operationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "operations_total",
		Help:      "Total number of operations",
	}, []string{"operation", "status"})

	c.operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "operation_duration_seconds",
		Help:      "Duration of operations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
	}, []string{"operation"})

	c.operationSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "operation_size_bytes",
		Help:      "Size of operations in bytes",
		Buckets:   prometheus.ExponentialBuckets(1024, 2, 20),
	}, []string{"operation"})

	c.queueDepthGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "queue_depth",
		Help:      "Number of upload items per status",
	}, []string{"status"})

	c.activeUploads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "active_uploads",
		Help:      "Current effective-active upload count",
	})

	c.activeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "active_connections",
		Help:      "Number of active object-store connections",
	})

	c.errorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Subsystem: config.Subsystem,
		Name:      "errors_total",
		Help:      "Total number of errors",
	}, []string{"operation", "type"})

	for _, m := range []prometheus.Collector{
		c.operationCounter, c.operationDuration, c.operationSize,
		c.queueDepthGauge, c.activeUploads, c.activeConnections, c.errorCounter,
	} {
		if err := c.registry.Register(m); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return c, nil
}

// Start serves the metrics endpoint in the background until Stop.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/metrics", c.debugMetricsHandler)

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records one operation's outcome, duration and size.
func (c *Collector) RecordOperation(operation string, duration time.Duration, size int64, success bool) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	op, ok := c.operations[operation]
	if !ok {
		op = &OperationMetrics{}
		c.operations[operation] = op
	}
	op.Count++
	op.TotalDuration += duration
	op.TotalSize += size
	if !success {
		op.Errors++
	}
	op.LastOperation = time.Now()
	op.AvgDuration = time.Duration(int64(op.TotalDuration) / op.Count)
	op.AvgSize = float64(op.TotalSize) / float64(op.Count)
	c.mu.Unlock()

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.With(prometheus.Labels{"operation": operation, "status": status}).Inc()
	c.operationDuration.With(prometheus.Labels{"operation": operation}).Observe(duration.Seconds())
	if size > 0 {
		c.operationSize.With(prometheus.Labels{"operation": operation}).Observe(float64(size))
	}
	if !success {
		c.errorCounter.With(prometheus.Labels{"operation": operation, "type": "failure"}).Inc()
	}
}

// RecordUploadPart records one completed multipart part upload, grouped
// under the "upload_part" operation so dashboards can chart part
// throughput independent of whole-file completion.
func (c *Collector) RecordUploadPart(duration time.Duration, size int64, success bool) {
	c.RecordOperation("upload_part", duration, size, success)
}

// RecordUploadComplete records a terminal upload (single-PUT or
// multipart) reaching Completed or Failed.
func (c *Collector) RecordUploadComplete(duration time.Duration, size int64, success bool) {
	c.RecordOperation("upload_complete", duration, size, success)
}

// RecordRestoreRequest records a restore request, keyed by tier so
// Standard/Expedited/Bulk usage is visible separately.
func (c *Collector) RecordRestoreRequest(tier string, success bool) {
	c.RecordOperation("restore_request_"+tier, 0, 0, success)
}

// RecordLifecycleVerify records one poll of the lifecycle verification
// loop.
func (c *Collector) RecordLifecycleVerify(duration time.Duration, success bool) {
	c.RecordOperation("lifecycle_verify", duration, 0, success)
}

// RecordError records a classified error against an operation.
func (c *Collector) RecordError(operation string, err error) {
	if !c.config.Enabled {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"type":      c.classifyError(err),
	}).Inc()
}

// UpdateQueueDepth sets the number of queued items in the given status
// (pending, in_progress, completed, failed, paused, cancelled).
func (c *Collector) UpdateQueueDepth(status string, count int) {
	if !c.config.Enabled {
		return
	}
	c.queueDepthGauge.With(prometheus.Labels{"status": status}).Set(float64(count))
}

// UpdateActiveUploads sets the effective-active upload count the
// admission controller is holding against the concurrency cap.
func (c *Collector) UpdateActiveUploads(count int) {
	if !c.config.Enabled {
		return
	}
	c.activeUploads.Set(float64(count))
}

// UpdateActiveConnections sets the object-store connection count.
func (c *Collector) UpdateActiveConnections(count int) {
	if !c.config.Enabled {
		return
	}
	c.activeConnections.Set(float64(count))
}

// GetMetrics returns the internal per-operation aggregates plus uptime.
func (c *Collector) GetMetrics() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operations := make(map[string]*OperationMetrics, len(c.operations))
	for name, op := range c.operations {
		snapshot := *op
		operations[name] = &snapshot
	}

	return map[string]interface{}{
		"operations": operations,
		"last_reset": c.lastReset,
		"uptime":     time.Since(c.lastReset),
	}
}

// ResetMetrics clears the internal aggregates. Prometheus series are
// cumulative and untouched.
func (c *Collector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations = make(map[string]*OperationMetrics)
	c.lastReset = time.Now()
}

func (c *Collector) classifyError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout"):
		return "timeout"
	case strings.Contains(msg, "connection"):
		return "connection"
	case strings.Contains(msg, "not found"):
		return "not_found"
	case strings.Contains(msg, "permission"):
		return "permission"
	case strings.Contains(msg, "throttl"):
		return "throttling"
	default:
		return "other"
	}
}

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"reelvault-metrics"}`))
}

func (c *Collector) debugMetricsHandler(w http.ResponseWriter, _ *http.Request) {
	c.mu.RLock()
	payload := struct {
		Uptime     string                       `json:"uptime"`
		LastReset  time.Time                    `json:"last_reset"`
		Operations map[string]*OperationMetrics `json:"operations"`
	}{
		Uptime:     time.Since(c.lastReset).String(),
		LastReset:  c.lastReset,
		Operations: c.operations,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	c.mu.RUnlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
