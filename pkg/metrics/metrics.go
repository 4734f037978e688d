// Package metrics provides Prometheus-based metrics recording for provider
// calls and session lifecycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tiktoken-go/tokenizer"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
)

// Recorder implements llm.Recorder and exposes session-level gauges.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	codec           tokenizer.Codec
}

// NewRecorder creates a recorder registered against the default Prometheus
// registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith registers the recorder's collectors against reg.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		// Token counts fall back to a character estimate.
		codec = nil
	}

	factory := promauto.With(reg)
	return &Recorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_requests_total",
				Help: "Total provider generation attempts by provider, mode, status, and error type",
			},
			[]string{"provider", "mode", "status", "error_type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_request_duration_seconds",
				Help:    "Duration of provider generation attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "mode"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_tokens_total",
				Help: "Total tokens exchanged with providers",
			},
			[]string{"provider", "mode", "type"},
		),
		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "interview_sessions_active",
				Help: "Number of sessions currently held by the registry",
			},
		),
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interview_sessions_total",
				Help: "Total sessions by terminal disposition",
			},
			[]string{"disposition"},
		),
		codec: codec,
	}
}

// ObserveCall implements llm.Recorder.
func (r *Recorder) ObserveCall(provider string, mode llm.Mode, promptText, completionText string, err error, duration time.Duration) {
	status := "success"
	errorType := ""
	if err != nil {
		status = "error"
		errorType = llmerrors.TypeOf(err).String()
	}

	r.requestsTotal.WithLabelValues(provider, string(mode), status, errorType).Inc()
	r.requestDuration.WithLabelValues(provider, string(mode)).Observe(duration.Seconds())

	r.tokensTotal.WithLabelValues(provider, string(mode), "prompt").Add(float64(r.countTokens(promptText)))
	if err == nil {
		r.tokensTotal.WithLabelValues(provider, string(mode), "completion").Add(float64(r.countTokens(completionText)))
	}
}

// SessionStarted records a new registry entry.
func (r *Recorder) SessionStarted() {
	r.sessionsActive.Inc()
}

// SessionRemoved records a registry eviction with its disposition
// ("completed", "aborted", "failed", "abandoned").
func (r *Recorder) SessionRemoved(disposition string) {
	r.sessionsActive.Dec()
	r.sessionsTotal.WithLabelValues(disposition).Inc()
}

func (r *Recorder) countTokens(text string) int {
	if text == "" {
		return 0
	}
	if r.codec == nil {
		// 4 chars ≈ 1 token
		return len(text) / 4
	}
	count, err := r.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
