package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveTurn(t *testing.T) {
	c := NewChat()
	c.ObserveTurn("ollama", OutcomeCompleted, time.Second, true)
	c.ObserveTurn("ollama", OutcomeCancelled, time.Second, false)
	c.ObserveTurn("ollama", OutcomeCancelled, time.Second, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.turns.WithLabelValues("ollama", OutcomeCompleted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.turns.WithLabelValues("ollama", OutcomeCancelled)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.disconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ragHits.WithLabelValues("false")))
}

func TestNilChatIsSafe(t *testing.T) {
	var c *Chat
	assert.NotPanics(t, func() { c.ObserveTurn("openai", OutcomeFailed, 0, false) })
}

func TestHandlerExposesCollectors(t *testing.T) {
	c := NewChat()
	c.ObserveTurn("gemini", OutcomeCompleted, 2*time.Second, true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ragmentor_chat_turns_total{outcome="completed",provider="gemini"} 1`)
	assert.Contains(t, rec.Body.String(), "ragmentor_chat_turn_duration_seconds_bucket")
}
