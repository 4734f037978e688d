package session

import (
	"context"
	"sync"
	"time"

	"interviewd/pkg/logx"
	"interviewd/pkg/proto"
)

// Observer receives session lifecycle notifications, typically for metrics.
type Observer interface {
	SessionStarted()
	SessionRemoved(disposition string)
}

// Archiver persists a finished session. Called once per session, at eviction.
type Archiver interface {
	Archive(ctx context.Context, snap Snapshot) error
}

// Dispositions reported to the Observer when a session is evicted.
const (
	DispositionCompleted = "completed"
	DispositionAborted   = "aborted"
	DispositionFailed    = "failed"
	DispositionAbandoned = "abandoned"
)

// Limits controls registry eviction timing.
type Limits struct {
	// ReconnectWindow is how long a detached, unfinished session is kept
	// alive waiting for the client to come back.
	ReconnectWindow time.Duration
	// EndedLinger is how long an ended session stays visible so a client can
	// reconnect and observe the outcome.
	EndedLinger time.Duration
	// SweepInterval is how often the reaper scans for evictable sessions.
	SweepInterval time.Duration
}

type entry struct {
	session *Session
	// onEvict stops the session's driver. Set by the creator before the
	// session is reachable by the reaper.
	onEvict func()
}

// Registry owns every live session. Map access is brief; all per-session work
// happens under the session's own lock, so handlers for different sessions
// never contend with each other.
type Registry struct {
	// mu guards map membership only; it is never held across archiving,
	// provider calls, or any per-session work.
	mu       sync.Mutex
	sessions map[string]*entry

	limits   Limits
	observer Observer
	archiver Archiver
	logger   *logx.Logger
}

// NewRegistry creates an empty registry. Observer and Archiver may be nil.
func NewRegistry(limits Limits, observer Observer, archiver Archiver) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		limits:   limits,
		observer: observer,
		archiver: archiver,
		logger:   logx.NewLogger("registry"),
	}
}

// GetOrCreate returns the session for id, creating it if absent. The second
// return reports whether this call created it. onCreate runs under the
// registry lock before the new session becomes visible, so the caller can
// wire an eviction hook without racing the reaper.
func (r *Registry) GetOrCreate(id string, onCreate func(s *Session) (onEvict func())) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[id]; ok {
		return e.session, false
	}

	s := New(id)
	e := &entry{session: s}
	if onCreate != nil {
		e.onEvict = onCreate(s)
	}
	r.sessions[id] = e
	if r.observer != nil {
		r.observer.SessionStarted()
	}
	r.logger.Info("session %s created", id)
	return s, true
}

// Create registers a session for id, failing if one already exists. Callers
// that tolerate racing creators should use GetOrCreate instead.
func (r *Registry) Create(id string, onCreate func(s *Session) (onEvict func())) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		return nil, ErrAlreadyExists
	}

	s := New(id)
	e := &entry{session: s}
	if onCreate != nil {
		e.onEvict = onCreate(s)
	}
	r.sessions[id] = e
	if r.observer != nil {
		r.observer.SessionStarted()
	}
	r.logger.Info("session %s created", id)
	return s, nil
}

// Get returns an existing session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.session, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Remove evicts a session: archives it, notifies the observer, and stops its
// driver. Removing an unknown id is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.evict(ctx, e)
}

func (r *Registry) evict(ctx context.Context, e *entry) {
	snap := e.session.Snapshot()
	disposition := disposition(snap)

	if r.archiver != nil {
		if err := r.archiver.Archive(ctx, snap); err != nil {
			r.logger.Warn("session %s: archive failed: %v", snap.ID, err)
		}
	}
	if r.observer != nil {
		r.observer.SessionRemoved(disposition)
	}
	if e.onEvict != nil {
		e.onEvict()
	}
	r.logger.Info("session %s evicted (%s, %d turns)", snap.ID, disposition, len(snap.Turns))
}

func disposition(snap Snapshot) string {
	switch {
	case snap.Outcome == nil:
		return DispositionAbandoned
	case snap.Outcome.Err:
		return DispositionFailed
	case snap.Outcome.Score == nil:
		// Synthetic outcome from an early user-requested end.
		return DispositionAborted
	default:
		return DispositionCompleted
	}
}

// Run sweeps for evictable sessions until ctx is cancelled, then evicts
// everything that remains so outcomes still reach the archive on shutdown.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.limits.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Registry) sweep(ctx context.Context) {
	now := time.Now().UTC()

	r.mu.Lock()
	var expired []*entry
	for id, e := range r.sessions {
		if r.expired(e.session, now) {
			delete(r.sessions, id)
			expired = append(expired, e)
		}
	}
	r.mu.Unlock()

	for _, e := range expired {
		r.evict(ctx, e)
	}
}

func (r *Registry) expired(s *Session, now time.Time) bool {
	idle := now.Sub(s.LastActivity())
	if s.State() == proto.StateEnded {
		return idle > r.limits.EndedLinger
	}
	// An attached session is live regardless of idle time; disconnect
	// timeouts only apply while nobody is listening.
	return !s.Attached() && idle > r.limits.ReconnectWindow
}

func (r *Registry) drain() {
	r.mu.Lock()
	remaining := make([]*entry, 0, len(r.sessions))
	for id, e := range r.sessions {
		delete(r.sessions, id)
		remaining = append(remaining, e)
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, e := range remaining {
		r.evict(ctx, e)
	}
}
