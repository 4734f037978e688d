package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MsgType identifies a WebSocket message kind.
type MsgType string

const (
	MsgTypeConnectionAck  MsgType = "CONNECTION_ACK"  // server→client: attach succeeded
	MsgTypeInterviewState MsgType = "INTERVIEW_STATE" // server→client: FSM state change
	MsgTypeAIQuestion     MsgType = "AI_QUESTION"     // server→client: next interviewer turn
	MsgTypeInterviewEnd   MsgType = "INTERVIEW_END"   // server→client: terminal outcome
	MsgTypeError          MsgType = "ERROR"           // server→client: failure notice
	MsgTypeUserTranscript MsgType = "USER_TRANSCRIPT" // client→server: finalized answer
	MsgTypeEndRequest     MsgType = "END_REQUEST"     // client→server: explicit end, idempotent
	MsgTypeStateUpdate    MsgType = "STATE_UPDATE"    // client→server: advisory speaking/silence signal
)

// Error codes carried in ERROR messages. Transport and provider detail never
// leaks to clients; these codes are the stable surface.
const (
	CodeInitError        = "INIT_ERROR"
	CodeProcessingError  = "PROCESSING_ERROR"
	CodeAllProvidersDown = "AI_UNAVAILABLE"
	CodeMalformedMessage = "MALFORMED_MESSAGE"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodeInterviewOver    = "INTERVIEW_OVER"
)

// Envelope is the common header of every message.
type Envelope struct {
	Type        MsgType `json:"type"`
	InterviewID string  `json:"interview_id,omitempty"`
	Timestamp   float64 `json:"timestamp"` // Unix seconds
}

// ConnectionAck confirms a successful attach.
type ConnectionAck struct {
	Envelope
	Message string `json:"message"`
}

// InterviewState notifies the client of the authoritative FSM state.
type InterviewState struct {
	Envelope
	State State `json:"state"`
}

// AIQuestion carries the next interviewer turn.
type AIQuestion struct {
	Envelope
	Question string `json:"question"`
}

// InterviewEnd carries the terminal outcome.
type InterviewEnd struct {
	Envelope
	Feedback string   `json:"feedback"`
	Score    *float64 `json:"score,omitempty"`
	Summary  string   `json:"summary,omitempty"`
}

// ErrorMessage reports a recoverable or fatal failure.
type ErrorMessage struct {
	Envelope
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// UserTranscript is the candidate's finalized answer text.
type UserTranscript struct {
	Envelope
	Transcript string `json:"transcript"`
}

// EndRequest asks the server to end the interview now.
type EndRequest struct {
	Envelope
	Reason string `json:"reason,omitempty"`
}

// StateUpdate is an advisory client-side signal (USER_SPEAKING or
// SILENCE_DETECTED). The server never gates protocol decisions on it.
type StateUpdate struct {
	Envelope
	State State `json:"state"`
}

// DecodeError describes why an inbound frame was rejected.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string {
	return e.Message
}

func malformed(message string) *DecodeError {
	return &DecodeError{Code: CodeMalformedMessage, Message: message}
}

// DecodeClientMessage parses one inbound frame into its typed form. The
// message set is closed: anything outside it decodes to a *DecodeError so the
// caller can answer with an ERROR notice without touching session state.
func DecodeClientMessage(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("frame is not valid JSON")
	}

	switch env.Type {
	case MsgTypeUserTranscript:
		var msg UserTranscript
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid USER_TRANSCRIPT frame")
		}
		if strings.TrimSpace(msg.Transcript) == "" {
			return nil, malformed("transcript must not be empty")
		}
		return msg, nil

	case MsgTypeEndRequest:
		var msg EndRequest
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid END_REQUEST frame")
		}
		return msg, nil

	case MsgTypeStateUpdate:
		var msg StateUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, malformed("invalid STATE_UPDATE frame")
		}
		if msg.State != StateUserSpeaking && msg.State != StateSilenceDetected {
			return nil, malformed(fmt.Sprintf("state %q is not a client-reportable state", msg.State))
		}
		return msg, nil

	case "":
		return nil, malformed("missing message type")
	default:
		return nil, malformed(fmt.Sprintf("unknown message type: %s", env.Type))
	}
}

// Now returns the current time as a wire timestamp.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// NewEnvelope builds the common header for an outbound message.
func NewEnvelope(t MsgType, interviewID string) Envelope {
	return Envelope{Type: t, InterviewID: interviewID, Timestamp: Now()}
}

// NewConnectionAck builds the attach confirmation.
func NewConnectionAck(interviewID string) ConnectionAck {
	return ConnectionAck{
		Envelope: NewEnvelope(MsgTypeConnectionAck, interviewID),
		Message:  "Connected successfully",
	}
}

// NewInterviewState builds a state notification.
func NewInterviewState(interviewID string, state State) InterviewState {
	return InterviewState{
		Envelope: NewEnvelope(MsgTypeInterviewState, interviewID),
		State:    state,
	}
}

// NewAIQuestion builds a question message.
func NewAIQuestion(interviewID, question string) AIQuestion {
	return AIQuestion{
		Envelope: NewEnvelope(MsgTypeAIQuestion, interviewID),
		Question: question,
	}
}

// NewInterviewEnd builds the terminal outcome message.
func NewInterviewEnd(interviewID string, outcome Outcome) InterviewEnd {
	return InterviewEnd{
		Envelope: NewEnvelope(MsgTypeInterviewEnd, interviewID),
		Feedback: outcome.Feedback,
		Score:    outcome.Score,
		Summary:  outcome.Summary,
	}
}

// NewErrorMessage builds a failure notice.
func NewErrorMessage(interviewID, errText, code string) ErrorMessage {
	return ErrorMessage{
		Envelope: NewEnvelope(MsgTypeError, interviewID),
		Error:    errText,
		Code:     code,
	}
}

// ValidInterviewID reports whether an interview id is syntactically
// acceptable: non-empty, at most 128 chars, visible ASCII without slashes.
func ValidInterviewID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r > '~' || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}
