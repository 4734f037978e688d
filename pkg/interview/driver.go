package interview

import (
	"context"
	"errors"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
	"interviewd/pkg/logx"
	"interviewd/pkg/proto"
	"interviewd/pkg/session"
)

// Sink is where the driver sends outbound protocol messages. A connection
// handler implements it; the driver never touches the transport directly.
type Sink interface {
	// ID distinguishes connections so a stale detach cannot clear a newer
	// attachment.
	ID() string
	// Send delivers one message. An error means the message did not reach
	// the client.
	Send(msg any) error
	// Close tears the connection down after any queued writes drain.
	Close()
}

type event interface{ isEvent() }

type attachEvent struct{ sink Sink }
type detachEvent struct{ sinkID string }
type transcriptEvent struct{ text string }
type endRequestEvent struct{ reason string }
type advisoryEvent struct{ state proto.State }
type fatalEvent struct{ code, message string }

func (attachEvent) isEvent()     {}
func (detachEvent) isEvent()     {}
func (transcriptEvent) isEvent() {}
func (endRequestEvent) isEvent() {}
func (advisoryEvent) isEvent()   {}
func (fatalEvent) isEvent()      {}

// Driver runs one session's interview loop. All state changes and provider
// calls happen on its single goroutine, so a slow provider call for this
// session never blocks any other session, and events are applied strictly in
// arrival order.
type Driver struct {
	sess      *session.Session
	router    *llm.Router
	maxCycles int
	logger    *logx.Logger

	events chan event
	done   chan struct{}

	// sink, firstAsked, and retryPending are owned by the run goroutine.
	sink       Sink
	firstAsked bool

	// retryPending marks a transcript already recorded but not yet answered
	// because generation failed; the next transcript retries generation
	// instead of appending a duplicate turn.
	retryPending bool
}

// NewDriver creates a driver for sess. maxCycles bounds the number of
// question/answer rounds before feedback is forced.
func NewDriver(sess *session.Session, router *llm.Router, maxCycles int) *Driver {
	return &Driver{
		sess:      sess,
		router:    router,
		maxCycles: maxCycles,
		logger:    logx.NewLogger("interview"),
		events:    make(chan event, 32),
		done:      make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. It owns all session mutation.
func (d *Driver) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.events:
			d.handle(ctx, e)
		}
	}
}

func (d *Driver) dispatch(e event) {
	select {
	case d.events <- e:
	case <-d.done:
	}
}

// Attach hands the driver a live connection. The driver replies with the
// current state and anything the client missed while detached.
func (d *Driver) Attach(sink Sink) { d.dispatch(attachEvent{sink: sink}) }

// Detach clears the connection if it is still the current one.
func (d *Driver) Detach(sinkID string) { d.dispatch(detachEvent{sinkID: sinkID}) }

// HandleTranscript feeds one finalized candidate answer into the loop.
func (d *Driver) HandleTranscript(text string) { d.dispatch(transcriptEvent{text: text}) }

// RequestEnd asks for an orderly end. Idempotent.
func (d *Driver) RequestEnd(reason string) { d.dispatch(endRequestEvent{reason: reason}) }

// ReportState applies an advisory client-side state signal.
func (d *Driver) ReportState(state proto.State) { d.dispatch(advisoryEvent{state: state}) }

// Fail ends the session with an error, e.g. when a connection exhausts its
// malformed-frame budget.
func (d *Driver) Fail(code, message string) { d.dispatch(fatalEvent{code: code, message: message}) }

func (d *Driver) handle(ctx context.Context, e event) {
	switch e := e.(type) {
	case attachEvent:
		d.handleAttach(ctx, e.sink)
	case detachEvent:
		d.handleDetach(e.sinkID)
	case transcriptEvent:
		d.handleTranscript(ctx, e.text)
	case endRequestEvent:
		d.handleEndRequest(ctx)
	case advisoryEvent:
		d.handleAdvisory(e.state)
	case fatalEvent:
		d.fatalEnd(e.code, e.message)
	}
}

func (d *Driver) handleAttach(ctx context.Context, sink Sink) {
	if d.sink != nil && d.sink.ID() != sink.ID() {
		// A newer connection replaces the old one.
		d.sink.Close()
	}
	d.sink = sink
	d.sess.MarkAttached(true)

	d.emitState()

	if d.sess.State() == proto.StateEnded {
		if out := d.sess.Outcome(); out != nil && !out.Err {
			d.send(proto.NewInterviewEnd(d.sess.ID(), *out))
		}
		return
	}

	if !d.firstAsked && d.sess.State() == proto.StateAsking {
		d.firstAsked = true
		d.askFirstQuestion(ctx)
		return
	}

	d.deliverPending()
}

func (d *Driver) handleDetach(sinkID string) {
	if d.sink == nil || d.sink.ID() != sinkID {
		return
	}
	d.sink = nil
	d.sess.MarkAttached(false)
	d.logger.Debug("session %s: connection %s detached", d.sess.ID(), sinkID)
}

func (d *Driver) askFirstQuestion(ctx context.Context) {
	res, err := d.router.Generate(ctx, d.sess.Turns(), llm.ModeQuestion)
	if err != nil {
		d.logger.Error("session %s: first question failed: %v", d.sess.ID(), err)
		d.sendError(proto.CodeInitError, "Failed to start the interview. Please try again later.")
		d.endWithError("the interview could not be started")
		return
	}
	d.sess.SetProvider(res.Provider)
	d.emitQuestion(res.Text)
}

func (d *Driver) handleTranscript(ctx context.Context, text string) {
	state := d.sess.State()
	if state == proto.StateEnded || state == proto.StateGeneratingFeedback {
		d.sendError(proto.CodeInterviewOver, "The interview has already ended.")
		return
	}
	switch state {
	case proto.StateWaitingForUser, proto.StateUserSpeaking, proto.StateSilenceDetected, proto.StateSpeaking:
	default:
		d.sendError(proto.CodeProcessingError, "Not expecting an answer right now.")
		return
	}

	// The client may send a transcript before acknowledging playback; the
	// collapsed wait is normalized here rather than rejected.
	if state == proto.StateSpeaking {
		d.transition(proto.StateWaitingForUser)
	}

	if d.retryPending {
		// The previous answer is already recorded; this transcript is the
		// client trying again, so regenerate from the existing history.
		d.retryPending = false
		d.logger.Debug("session %s: retrying generation for the recorded answer", d.sess.ID())
	} else if err := d.sess.AppendTurn(proto.RoleCandidate, text); err != nil {
		d.sendError(proto.CodeInterviewOver, "The interview has already ended.")
		return
	}
	d.transition(proto.StateProcessing)
	d.emitState()

	cycles := d.sess.CandidateTurns()
	if cycles >= d.maxCycles {
		d.finish(ctx)
		return
	}

	res, err := d.router.Generate(ctx, d.sess.Turns(), llm.ModeQuestion)
	if err != nil {
		if llmerrors.IsAllFailed(err) {
			d.logger.Error("session %s: all providers failed: %v", d.sess.ID(), err)
			d.sendError(proto.CodeAllProvidersDown, "The interviewer is unavailable. The interview has ended.")
			d.endWithError("all providers unavailable")
			return
		}
		// A single-provider hard failure is surfaced; the answer stays
		// recorded and the client's retry regenerates from it.
		d.retryPending = true
		d.logger.Warn("session %s: question generation failed: %v", d.sess.ID(), err)
		d.sendError(proto.CodeProcessingError, "Something went wrong processing your answer. Please try again.")
		d.transition(proto.StateWaitingForUser)
		d.emitState()
		return
	}
	d.sess.SetProvider(res.Provider)

	if HasEndMarker(res.Text) {
		// The model wrapped up on its own; what it produced is the feedback.
		d.transition(proto.StateGeneratingFeedback)
		d.emitState()
		d.endWithOutcome(ParseOutcome(res.Text, cycles))
		return
	}
	d.transition(proto.StateAsking)
	d.emitState()
	d.emitQuestion(res.Text)
}

func (d *Driver) handleEndRequest(ctx context.Context) {
	switch d.sess.State() {
	case proto.StateEnded:
		// Idempotent: re-observe the outcome.
		if out := d.sess.Outcome(); out != nil && !out.Err {
			d.send(proto.NewInterviewEnd(d.sess.ID(), *out))
		}
		return
	case proto.StateGeneratingFeedback:
		return
	}

	if d.sess.CandidateTurns() == 0 {
		// Nothing to assess; end with a synthetic outcome and no score.
		d.transition(proto.StateGeneratingFeedback)
		d.emitState()
		d.endWithOutcome(proto.Outcome{Feedback: "Interview ended at your request."})
		return
	}
	d.finish(ctx)
}

// finish generates final feedback and lands the session in the terminal
// state.
func (d *Driver) finish(ctx context.Context) {
	d.transition(proto.StateGeneratingFeedback)
	d.emitState()

	res, err := d.router.Generate(ctx, d.sess.Turns(), llm.ModeFeedback)
	if err != nil {
		d.logger.Error("session %s: feedback generation failed: %v", d.sess.ID(), err)
		d.sendError(proto.CodeAllProvidersDown, "Feedback could not be generated.")
		d.endWithError("feedback generation failed")
		return
	}
	d.sess.SetProvider(res.Provider)
	d.endWithOutcome(ParseOutcome(res.Text, d.sess.CandidateTurns()))
}

func (d *Driver) handleAdvisory(state proto.State) {
	if !proto.ValidTransitions.IsValidTransition(d.sess.State(), state) {
		d.logger.Debug("session %s: ignoring advisory %s from %s", d.sess.ID(), state, d.sess.State())
		return
	}
	d.transition(state)
	d.emitState()
}

// endWithOutcome records the outcome and moves to the terminal state. The
// session must already be in the terminal-pending state.
func (d *Driver) endWithOutcome(outcome proto.Outcome) {
	if err := d.sess.SetOutcome(outcome); err != nil {
		d.logger.Error("session %s: set outcome: %v", d.sess.ID(), err)
		return
	}
	d.transition(proto.StateEnded)
	d.emitState()
	d.send(proto.NewInterviewEnd(d.sess.ID(), outcome))
	d.closeSink()
	d.logger.Info("session %s ended (%d turns)", d.sess.ID(), len(d.sess.Turns()))
}

// endWithError lands the session in the terminal state with an error
// outcome. The ERROR notice itself is sent by the caller, which knows the
// right code.
func (d *Driver) endWithError(reason string) {
	if d.sess.State() != proto.StateGeneratingFeedback {
		d.transition(proto.StateGeneratingFeedback)
	}
	if err := d.sess.SetOutcome(proto.Outcome{Feedback: reason, Err: true}); err != nil {
		d.logger.Error("session %s: set error outcome: %v", d.sess.ID(), err)
	}
	d.transition(proto.StateEnded)
	d.emitState()
	d.closeSink()
	d.logger.Warn("session %s ended with error: %s", d.sess.ID(), reason)
}

func (d *Driver) fatalEnd(code, message string) {
	if d.sess.State() == proto.StateEnded {
		return
	}
	d.sendError(code, message)
	d.endWithError(message)
}

// emitQuestion appends the interviewer turn and walks it out to the client.
func (d *Driver) emitQuestion(text string) {
	if err := d.sess.AppendTurn(proto.RoleInterviewer, text); err != nil {
		d.logger.Error("session %s: append question: %v", d.sess.ID(), err)
		return
	}
	d.transition(proto.StateSpeaking)
	d.emitState()
	d.deliverPending()
}

// deliverPending sends the latest undelivered question, if any, and advances
// to the waiting state once it is on the wire. If delivery fails the session
// stays in the speaking state and the question is redelivered on reattach.
func (d *Driver) deliverPending() {
	q, ok := d.sess.PendingQuestion()
	if !ok {
		return
	}
	if err := d.send(proto.NewAIQuestion(d.sess.ID(), q)); err != nil {
		d.logger.Debug("session %s: question held for redelivery: %v", d.sess.ID(), err)
		return
	}
	d.sess.MarkQuestionDelivered()
	if d.sess.State() == proto.StateSpeaking {
		d.transition(proto.StateWaitingForUser)
		d.emitState()
	}
}

func (d *Driver) transition(to proto.State) {
	if err := d.sess.Transition(to); err != nil {
		// Transitions are driven from the current state on this goroutine,
		// so this indicates a bug rather than a race.
		d.logger.Error("session %s: %v", d.sess.ID(), err)
	}
}

func (d *Driver) emitState() {
	d.send(proto.NewInterviewState(d.sess.ID(), d.sess.State()))
}

func (d *Driver) sendError(code, message string) {
	d.send(proto.NewErrorMessage(d.sess.ID(), message, code))
}

var errNoSink = errors.New("no connection attached")

func (d *Driver) send(msg any) error {
	if d.sink == nil {
		return errNoSink
	}
	if err := d.sink.Send(msg); err != nil {
		d.logger.Debug("session %s: send failed: %v", d.sess.ID(), err)
		return err
	}
	return nil
}

func (d *Driver) closeSink() {
	if d.sink != nil {
		d.sink.Close()
	}
}
