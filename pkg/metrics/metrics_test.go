package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
)

func testRecorder(t *testing.T) *Recorder {
	t.Helper()
	return NewRecorderWith(prometheus.NewRegistry())
}

func TestObserveCallSuccess(t *testing.T) {
	r := testRecorder(t)
	r.ObserveCall("ollama", llm.ModeQuestion, "prompt text here", "a generated question", nil, 120*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		r.requestsTotal.WithLabelValues("ollama", "question", "success", "")))
	assert.Greater(t, testutil.ToFloat64(
		r.tokensTotal.WithLabelValues("ollama", "question", "prompt")), 0.0)
	assert.Greater(t, testutil.ToFloat64(
		r.tokensTotal.WithLabelValues("ollama", "question", "completion")), 0.0)
}

func TestObserveCallErrorCarriesType(t *testing.T) {
	r := testRecorder(t)
	err := llmerrors.New(llmerrors.ErrorTypeTimeout, "deadline exceeded")
	r.ObserveCall("gemini", llm.ModeFeedback, "prompt", "", err, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		r.requestsTotal.WithLabelValues("gemini", "feedback", "error", "timeout")))
	// Completion tokens are only counted on success.
	assert.Equal(t, 0.0, testutil.ToFloat64(
		r.tokensTotal.WithLabelValues("gemini", "feedback", "completion")))
}

func TestObserveCallUnclassifiedError(t *testing.T) {
	r := testRecorder(t)
	r.ObserveCall("ollama", llm.ModeQuestion, "p", "", errors.New("boom"), time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(
		r.requestsTotal.WithLabelValues("ollama", "question", "error", "unknown")))
}

func TestSessionLifecycleGauges(t *testing.T) {
	r := testRecorder(t)

	r.SessionStarted()
	r.SessionStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.sessionsActive))

	r.SessionRemoved("completed")
	r.SessionRemoved("abandoned")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.sessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsTotal.WithLabelValues("abandoned")))
}

func TestCountTokens(t *testing.T) {
	r := testRecorder(t)
	assert.Equal(t, 0, r.countTokens(""))
	require.Greater(t, r.countTokens("The quick brown fox jumps over the lazy dog."), 0)

	// The character fallback still yields a usable estimate.
	r.codec = nil
	assert.Equal(t, 11, r.countTokens("12345678901234567890123456789012345678901234"))
}
