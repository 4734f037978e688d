package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
	"interviewd/pkg/proto"
	"interviewd/pkg/session"
)

type mockSink struct {
	mu     sync.Mutex
	id     string
	msgs   []any
	fail   bool
	closed bool
}

func newMockSink(id string) *mockSink {
	return &mockSink{id: id}
}

func (s *mockSink) ID() string { return s.id }

func (s *mockSink) Send(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection gone")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *mockSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *mockSink) messages() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.msgs...)
}

func (s *mockSink) questions() []string {
	var qs []string
	for _, m := range s.messages() {
		if q, ok := m.(proto.AIQuestion); ok {
			qs = append(qs, q.Question)
		}
	}
	return qs
}

func (s *mockSink) errorCodes() []string {
	var codes []string
	for _, m := range s.messages() {
		if e, ok := m.(proto.ErrorMessage); ok {
			codes = append(codes, e.Code)
		}
	}
	return codes
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func responses(texts ...string) []llm.CompletionResponse {
	out := make([]llm.CompletionResponse, len(texts))
	for i, t := range texts {
		out[i] = llm.CompletionResponse{Content: t}
	}
	return out
}

func startDriver(t *testing.T, client llm.Client, maxCycles int) (*Driver, *session.Session) {
	t.Helper()
	sess := session.New("int-1")
	router := llm.NewRouter([]llm.Client{client}, time.Second)
	d := NewDriver(sess, router, maxCycles)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d, sess
}

func waitForState(t *testing.T, sess *session.Session, want proto.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.State() == want
	}, 2*time.Second, 10*time.Millisecond, "session never reached %s (got %s)", want, sess.State())
}

func TestDriverAsksFirstQuestionOnAttach(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Tell me about yourself."), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)

	waitForState(t, sess, proto.StateWaitingForUser)
	assert.Equal(t, []string{"Tell me about yourself."}, sink.questions())
	assert.Equal(t, "mock", sess.Provider())

	turns := sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, proto.RoleInterviewer, turns[0].Role)
}

func TestDriverTranscriptProducesNextQuestion(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?", "Q2?"), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("My answer.")
	require.Eventually(t, func() bool {
		return len(sink.questions()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	waitForState(t, sess, proto.StateWaitingForUser)
	assert.Equal(t, []string{"Q1?", "Q2?"}, sink.questions())
	assert.Equal(t, 3, len(sess.Turns()))
	assert.Empty(t, sink.errorCodes())
}

func TestDriverEndMarkerEndsInterview(t *testing.T) {
	client := llm.NewMockClient("mock", responses(
		"Q1?",
		"Thanks, that concludes our interview. Score: 84/100. "+llm.EndMarker,
	), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("Answer one.")
	waitForState(t, sess, proto.StateEnded)

	out := sess.Outcome()
	require.NotNil(t, out)
	assert.False(t, out.Err)
	assert.NotContains(t, out.Feedback, llm.EndMarker)
	require.NotNil(t, out.Score)
	assert.Equal(t, 84.0, *out.Score)
	assert.True(t, sink.isClosed())
}

func TestDriverMaxCyclesForcesFeedback(t *testing.T) {
	client := llm.NewMockClient("mock", responses(
		"Q1?",
		"Great interview. Score: 90/100. "+llm.EndMarker,
	), nil)
	d, sess := startDriver(t, client, 1)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("Only answer.")
	waitForState(t, sess, proto.StateEnded)

	// The second completion was requested in feedback mode, not as a
	// question.
	assert.Equal(t, 2, client.Calls())
	assert.Len(t, sink.questions(), 1)
	out := sess.Outcome()
	require.NotNil(t, out)
	require.NotNil(t, out.Score)
	assert.Equal(t, 90.0, *out.Score)
}

func TestDriverFailoverRecordsServingProvider(t *testing.T) {
	unavailable := llmerrors.New(llmerrors.ErrorTypeUnavailable, "not running")
	primary := llm.NewMockClient("local", nil, []error{unavailable, unavailable})
	fallback := llm.NewMockClient("cloud", responses(
		"Q1?",
		"Good answer, we are done here. 88/100. "+llm.EndMarker,
	), nil)

	sess := session.New("int-1")
	router := llm.NewRouter([]llm.Client{primary, fallback}, time.Second)
	d := NewDriver(sess, router, 8)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("Answer one.")
	waitForState(t, sess, proto.StateEnded)

	assert.Equal(t, 2, primary.Calls(), "primary attempted once per call")
	assert.Equal(t, "cloud", sess.Provider())

	out := sess.Outcome()
	require.NotNil(t, out)
	assert.False(t, out.Err)
	require.NotNil(t, out.Score)
	assert.Equal(t, 88.0, *out.Score)
}

func TestDriverAllProvidersFailedIsFatal(t *testing.T) {
	client := llm.NewMockClient("mock", nil, []error{
		llmerrors.New(llmerrors.ErrorTypeUnavailable, "connection refused"),
	})
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)

	waitForState(t, sess, proto.StateEnded)
	assert.Contains(t, sink.errorCodes(), proto.CodeInitError)

	out := sess.Outcome()
	require.NotNil(t, out)
	assert.True(t, out.Err)
	assert.True(t, sink.isClosed())
}

func TestDriverProviderOutageMidInterviewIsFatal(t *testing.T) {
	timeout := llmerrors.New(llmerrors.ErrorTypeTimeout, "deadline exceeded")
	primary := llm.NewMockClient("local", responses("Q1?"), []error{nil, timeout})
	fallback := llm.NewMockClient("cloud", nil, []error{timeout})

	sess := session.New("int-1")
	router := llm.NewRouter([]llm.Client{primary, fallback}, time.Second)
	d := NewDriver(sess, router, 8)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("Answer one.")
	waitForState(t, sess, proto.StateEnded)

	assert.Contains(t, sink.errorCodes(), proto.CodeAllProvidersDown)

	out := sess.Outcome()
	require.NotNil(t, out)
	assert.True(t, out.Err)
	assert.True(t, sink.isClosed())
}

func TestDriverTransientFailureReturnsToWaiting(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?", "Q2?"), []error{
		nil, // first question succeeds
		errors.New("model exploded"), // hard, non-recoverable, single provider
	})
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("My answer.")
	require.Eventually(t, func() bool {
		for _, code := range sink.errorCodes() {
			if code == proto.CodeProcessingError {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	// Back to waiting so the candidate can retry; the answer is kept.
	waitForState(t, sess, proto.StateWaitingForUser)
	assert.Equal(t, 1, sess.CandidateTurns())
	assert.Nil(t, sess.Outcome())

	// The retry regenerates from the recorded answer instead of appending
	// a duplicate turn or burning another cycle.
	d.HandleTranscript("My answer.")
	require.Eventually(t, func() bool {
		return len(sink.questions()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Q2?", sink.questions()[1])
	assert.Equal(t, 1, sess.CandidateTurns())
	waitForState(t, sess, proto.StateWaitingForUser)
}

func TestDriverQuestionRedeliveredAfterReconnect(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?"), nil)
	d, sess := startDriver(t, client, 8)

	// The first connection dies before the question can be written.
	dead := newMockSink("c1")
	dead.fail = true
	d.Attach(dead)

	require.Eventually(t, func() bool {
		_, pending := sess.PendingQuestion()
		return pending
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, proto.StateSpeaking, sess.State())

	// Reattaching delivers the held question exactly once.
	live := newMockSink("c2")
	d.Attach(live)
	waitForState(t, sess, proto.StateWaitingForUser)
	assert.Equal(t, []string{"Q1?"}, live.questions())

	// A further reattach must not replay it.
	again := newMockSink("c3")
	d.Attach(again)
	require.Eventually(t, func() bool {
		return len(again.messages()) > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, again.questions())
}

func TestDriverEndRequestBeforeAnyAnswer(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?"), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.RequestEnd("changed my mind")
	waitForState(t, sess, proto.StateEnded)

	// Synthetic outcome: no provider feedback call, no score.
	assert.Equal(t, 1, client.Calls())
	out := sess.Outcome()
	require.NotNil(t, out)
	assert.Nil(t, out.Score)
	assert.False(t, out.Err)
}

func TestDriverEndRequestIsIdempotent(t *testing.T) {
	client := llm.NewMockClient("mock", responses(
		"Q1?",
		"Well done. Score: 80/100. "+llm.EndMarker,
	), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.HandleTranscript("An answer.")
	waitForState(t, sess, proto.StateEnded)
	require.Equal(t, 2, client.Calls())

	// Repeat end requests re-observe the outcome without new provider calls
	// or outcome changes.
	sink2 := newMockSink("c2")
	d.Attach(sink2)
	d.RequestEnd("again")
	require.Eventually(t, func() bool {
		for _, m := range sink2.messages() {
			if _, ok := m.(proto.InterviewEnd); ok {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, client.Calls())
}

func TestDriverTranscriptAfterEndRejected(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?"), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.RequestEnd("done")
	waitForState(t, sess, proto.StateEnded)

	d.HandleTranscript("too late")
	require.Eventually(t, func() bool {
		for _, code := range sink.errorCodes() {
			if code == proto.CodeInterviewOver {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sess.CandidateTurns(), "no turns recorded after end")
}

func TestDriverAdvisoryStates(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?"), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.ReportState(proto.StateUserSpeaking)
	waitForState(t, sess, proto.StateUserSpeaking)

	d.ReportState(proto.StateSilenceDetected)
	waitForState(t, sess, proto.StateSilenceDetected)

	// An advisory that the table forbids is ignored.
	d.ReportState(proto.StateUserSpeaking)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, proto.StateSilenceDetected, sess.State())
}

func TestDriverFailEndsSession(t *testing.T) {
	client := llm.NewMockClient("mock", responses("Q1?"), nil)
	d, sess := startDriver(t, client, 8)

	sink := newMockSink("c1")
	d.Attach(sink)
	waitForState(t, sess, proto.StateWaitingForUser)

	d.Fail(proto.CodeMalformedMessage, "too many malformed frames")
	waitForState(t, sess, proto.StateEnded)

	assert.Contains(t, sink.errorCodes(), proto.CodeMalformedMessage)
	out := sess.Outcome()
	require.NotNil(t, out)
	assert.True(t, out.Err)
}
