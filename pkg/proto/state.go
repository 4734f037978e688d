package proto

import "time"

// State represents an interview session's position in the interview flow.
// Wire values are sent verbatim in INTERVIEW_STATE messages.
type State string

const (
	// StateAsking is the initial state: a question is being generated.
	StateAsking State = "AI_ASKING"
	// StateSpeaking means the question has been emitted and the client is
	// rendering it audibly.
	StateSpeaking State = "AI_SPEAKING"
	// StateWaitingForUser means the server is waiting for the candidate's
	// transcript.
	StateWaitingForUser State = "WAITING_FOR_USER"
	// StateUserSpeaking is an advisory state reported by the client while
	// the candidate is talking.
	StateUserSpeaking State = "USER_SPEAKING"
	// StateSilenceDetected is an advisory state reported by the client once
	// the candidate stops talking.
	StateSilenceDetected State = "SILENCE_DETECTED"
	// StateProcessing means an accepted transcript is being turned into the
	// next question.
	StateProcessing State = "PROCESSING"
	// StateGeneratingFeedback is the terminal-pending state: the interview is
	// over and final feedback is being generated. The outcome may only be set
	// from this state.
	StateGeneratingFeedback State = "GENERATING_FEEDBACK"
	// StateEnded is terminal.
	StateEnded State = "INTERVIEW_ENDED"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateEnded
}

// TransitionTable maps each state to the set of states it may move to.
type TransitionTable map[State][]State

// ValidTransitions is the interview flow. StateEnded and
// StateGeneratingFeedback are additionally reachable from every live state
// (explicit end, fatal provider failure), which IsValidTransition handles
// without the table listing them everywhere.
var ValidTransitions = TransitionTable{
	StateAsking:          {StateSpeaking},
	StateSpeaking:        {StateWaitingForUser},
	StateWaitingForUser:  {StateUserSpeaking, StateProcessing},
	StateUserSpeaking:    {StateSilenceDetected, StateProcessing},
	StateSilenceDetected: {StateProcessing},
	// A transient provider failure returns Processing to WaitingForUser so
	// the candidate can retry.
	StateProcessing:         {StateAsking, StateSpeaking, StateWaitingForUser},
	StateGeneratingFeedback: {},
	StateEnded:              {},
}

// IsValidTransition reports whether from → to is allowed.
func (t TransitionTable) IsValidTransition(from, to State) bool {
	if to == StateEnded {
		return from != StateEnded
	}
	if from == StateGeneratingFeedback || from == StateEnded {
		// Feedback generation only resolves to StateEnded, handled above.
		return false
	}
	if to == StateGeneratingFeedback {
		// The terminal-pending state is reachable from anywhere: a natural
		// completion, an explicit end request, or a fatal failure all route
		// through it so the outcome has a single entry point.
		return true
	}
	for _, allowed := range t[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Role identifies who produced a turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// Turn is one utterance in the conversation. Turns are append-only: once
// recorded they are never mutated, so the context sent to a provider is
// reproducible.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome is the terminal result of an interview. It is set exactly once.
type Outcome struct {
	Feedback string   `json:"feedback"`
	Score    *float64 `json:"score,omitempty"` // 0-100, absent for synthetic outcomes
	Summary  string   `json:"summary,omitempty"`
	Err      bool     `json:"error,omitempty"` // true when the outcome marks a fatal failure
}
