// Package session holds per-interview state and the registry that owns it.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"interviewd/pkg/proto"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyExists is returned by Create for a duplicate id.
	ErrAlreadyExists = errors.New("session already exists")
	// ErrInvalidTransition is returned for a state change the transition
	// table forbids.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrOutcomeAlreadySet guards the set-exactly-once outcome invariant.
	ErrOutcomeAlreadySet = errors.New("outcome already set")
	// ErrSessionEnded is returned for mutations after the terminal state.
	ErrSessionEnded = errors.New("session has ended")
)

// Session is one candidate's complete interview lifecycle. It is exclusively
// owned by the Registry; connection handlers hold only transient references
// and must not retain them past connection teardown.
type Session struct {
	mu sync.Mutex

	id        string
	state     proto.State
	turns     []proto.Turn
	provider  string // provider that served the most recent call
	outcome   *proto.Outcome
	createdAt time.Time
	endedAt   time.Time

	lastActivity time.Time
	attached     bool

	// questionsDelivered counts interviewer turns whose question reached a
	// client. Comparing it against the interviewer turn count gives
	// exactly-once delivery across reconnects.
	questionsDelivered int
	malformedCount     int
}

// New creates a session in the initial state.
func New(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		id:           id,
		state:        proto.StateAsking,
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() proto.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves to a new state if the transition table allows it.
func (s *Session) Transition(to proto.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !proto.ValidTransitions.IsValidTransition(s.state, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	s.lastActivity = time.Now().UTC()
	if to == proto.StateEnded {
		s.endedAt = s.lastActivity
	}
	return nil
}

// AppendTurn records one utterance. Turns are append-only; nothing is ever
// mutated or removed, so provider context stays reproducible.
func (s *Session) AppendTurn(role proto.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == proto.StateEnded {
		return ErrSessionEnded
	}
	s.turns = append(s.turns, proto.Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	s.lastActivity = time.Now().UTC()
	return nil
}

// Turns returns a copy of the turn history.
func (s *Session) Turns() []proto.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Turn(nil), s.turns...)
}

// CandidateTurns counts completed answer cycles.
func (s *Session) CandidateTurns() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.turns {
		if s.turns[i].Role == proto.RoleCandidate {
			n++
		}
	}
	return n
}

// SetProvider records which provider served the most recent call.
func (s *Session) SetProvider(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = name
}

// Provider returns the most recent serving provider.
func (s *Session) Provider() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

// SetOutcome records the terminal outcome. It may be called exactly once,
// and only while the session is in the terminal-pending state.
func (s *Session) SetOutcome(outcome proto.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcome != nil {
		return ErrOutcomeAlreadySet
	}
	if s.state != proto.StateGeneratingFeedback {
		return fmt.Errorf("%w: outcome may only be set from %s, not %s",
			ErrInvalidTransition, proto.StateGeneratingFeedback, s.state)
	}
	s.outcome = &outcome
	return nil
}

// Outcome returns the terminal outcome, nil until set.
func (s *Session) Outcome() *proto.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return nil
	}
	out := *s.outcome
	return &out
}

// PendingQuestion returns the latest interviewer question if it has not yet
// reached any client.
func (s *Session) PendingQuestion() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	undelivered := ""
	count := 0
	for i := range s.turns {
		if s.turns[i].Role == proto.RoleInterviewer {
			count++
			undelivered = s.turns[i].Text
		}
	}
	if count > s.questionsDelivered {
		return undelivered, true
	}
	return "", false
}

// MarkQuestionDelivered records that the latest question reached a client.
func (s *Session) MarkQuestionDelivered() {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for i := range s.turns {
		if s.turns[i].Role == proto.RoleInterviewer {
			count++
		}
	}
	s.questionsDelivered = count
}

// MarkAttached records a connection attach or detach.
func (s *Session) MarkAttached(attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = attached
	s.lastActivity = time.Now().UTC()
}

// Attached reports whether a connection is currently attached.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Touch refreshes the activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
}

// LastActivity returns the most recent activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IncrementMalformed bumps the malformed frame counter and returns the new
// total.
func (s *Session) IncrementMalformed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.malformedCount++
	return s.malformedCount
}

// Snapshot is an immutable copy of a session for archiving.
type Snapshot struct {
	ID        string
	State     proto.State
	Turns     []proto.Turn
	Provider  string
	Outcome   *proto.Outcome
	CreatedAt time.Time
	EndedAt   time.Time
}

// Snapshot captures the session for the archive.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Turns:     append([]proto.Turn(nil), s.turns...),
		Provider:  s.provider,
		CreatedAt: s.createdAt,
		EndedAt:   s.endedAt,
	}
	if s.outcome != nil {
		out := *s.outcome
		snap.Outcome = &out
	}
	return snap
}
