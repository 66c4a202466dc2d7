// Package metrics exports Prometheus collectors for the decoding loop and
// the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/tgstep/internal/generation"
)

var (
	GeneratedTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstep_generated_tokens_total",
		Help: "Tokens emitted, by shard rank",
	}, []string{"rank"})

	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tgstep_step_duration_seconds",
		Help:    "Forward pass plus decoding step latency",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"rank"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tgstep_batch_size",
		Help:    "Requests in a batch at each step",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
	})

	RequestsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstep_requests_finished_total",
		Help: "Requests that stopped, by finish reason",
	}, []string{"reason"})

	GeneratedTokensPerRequest = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tgstep_request_generated_tokens",
		Help:    "Generated tokens per finished request",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	PrefillTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tgstep_prefill_tokens_total",
		Help: "Prompt tokens returned with prefill details",
	})

	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tgstep_request_errors_total",
		Help: "Failed requests, by error kind",
	}, []string{"kind"})
)

// Observer feeds the collectors from one shard's generator.
type Observer struct {
	rank string
}

func NewObserver(rank int) *Observer {
	return &Observer{rank: strconv.Itoa(rank)}
}

func (o *Observer) ObserveStep(batchSize int, elapsed time.Duration) {
	StepDuration.WithLabelValues(o.rank).Observe(elapsed.Seconds())
	// replicas step in lockstep; count the batch once
	if o.rank == "0" {
		BatchSize.Observe(float64(batchSize))
	}
}

func (o *Observer) ObserveToken(g *generation.Generation) {
	GeneratedTokensTotal.WithLabelValues(o.rank).Inc()
	if g.PrefillTokens != nil {
		PrefillTokensTotal.Add(float64(len(g.PrefillTokens.TokenIDs)))
	}
	if g.GeneratedText != nil {
		RequestsFinished.WithLabelValues(string(g.GeneratedText.FinishReason)).Inc()
		GeneratedTokensPerRequest.Observe(float64(g.GeneratedText.GeneratedTokens))
	}
}

func RecordError(kind string) {
	RequestErrors.WithLabelValues(kind).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
