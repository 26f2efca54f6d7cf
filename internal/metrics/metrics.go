// Package metrics exposes prometheus collectors for chat turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Chat holds the chat turn collectors
type Chat struct {
	registry    *prometheus.Registry
	turns       *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	disconnects prometheus.Counter
	ragHits     *prometheus.CounterVec
}

// NewChat registers the collectors on a fresh registry
func NewChat() *Chat {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Chat{
		registry: reg,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ragmentor_chat_turns_total",
			Help: "Chat turns by provider and outcome",
		}, []string{"provider", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragmentor_chat_turn_duration_seconds",
			Help:    "Wall time from request to persisted answer",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"provider"}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "ragmentor_chat_client_disconnects_total",
			Help: "Streams abandoned by the client before completion",
		}),
		ragHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ragmentor_chat_retrieval_total",
			Help: "Chat turns by whether retrieval produced context",
		}, []string{"found"}),
	}
}

// ObserveTurn records one finished turn
func (c *Chat) ObserveTurn(provider, outcome string, elapsed time.Duration, contextFound bool) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(provider, outcome).Inc()
	c.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
	found := "false"
	if contextFound {
		found = "true"
	}
	c.ragHits.WithLabelValues(found).Inc()
	if outcome == OutcomeCancelled {
		c.disconnects.Inc()
	}
}

// Handler serves the registry in the exposition format
func (c *Chat) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
