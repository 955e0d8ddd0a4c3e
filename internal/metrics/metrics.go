// Package metrics exposes Prometheus counters for HTTP traffic and the
// question/answer pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeAccepted         = "accepted"
	OutcomeRejected         = "rejected"
	OutcomeGenerationFailed = "generation_failed"
)

// Pipeline stages.
const (
	StageGenerate   = "generate"
	StageDetect     = "detect"
	StageSynthesize = "synthesize"
)

// Recorder owns a private registry so several recorders can coexist in tests.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	turns         *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	feedback      *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shariahguide_http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shariahguide_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shariahguide_turns_total",
			Help: "Conversation turns by outcome",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shariahguide_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shariahguide_stage_failures_total",
			Help: "Pipeline stage failures",
		}, []string{"stage"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shariahguide_feedback_total",
			Help: "Feedback submissions by result",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.turns,
		r.stageDuration,
		r.stageFailures,
		r.feedback,
	)
	return r
}

// Registry is exposed for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveTurn(outcome string) {
	if r == nil {
		return
	}
	r.turns.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took and whether it failed.
func (r *Recorder) ObserveStage(stage string, started time.Time, failed bool) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
	if failed {
		r.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (r *Recorder) RecordFeedback(err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.feedback.WithLabelValues(result).Inc()
}

// Middleware counts requests using the matched route template as the path
// label, which keeps message ids out of the label set.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		r.httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.AbortWithStatus(http.StatusNotFound)
		}
	}
	handler := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
