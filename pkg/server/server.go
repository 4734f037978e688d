// Package server exposes the interview WebSocket endpoint plus health and
// metrics surfaces.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"interviewd/pkg/config"
	"interviewd/pkg/interview"
	"interviewd/pkg/llm"
	"interviewd/pkg/logx"
	"interviewd/pkg/proto"
	"interviewd/pkg/session"
)

// Server accepts interview connections and routes them to per-session
// drivers.
type Server struct {
	cfg      *config.Config
	registry *session.Registry
	router   *llm.Router
	logger   *logx.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	drivers map[string]*interview.Driver
}

// New wires a server from its parts. The registry must use the eviction hook
// returned by the server's session factory, which New installs itself.
func New(cfg *config.Config, registry *session.Registry, router *llm.Router) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		router:   router,
		logger:   logx.NewLogger("server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browsers connect from arbitrary dev origins; auth is out of
			// scope here, so the origin check stays open.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		drivers: make(map[string]*interview.Driver),
	}
}

// Handler returns the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{id}", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !proto.ValidInterviewID(id) {
		http.Error(w, "invalid interview id", http.StatusBadRequest)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed for %s: %v", id, err)
		return
	}

	drv, sess := s.driverFor(id)
	c := newConn(uuid.NewString(), ws, s.logger)
	go c.pingLoop()

	if err := c.Send(proto.NewConnectionAck(id)); err != nil {
		s.logger.Debug("session %s: ack failed: %v", id, err)
		c.Close()
		return
	}
	drv.Attach(c)
	s.logger.Info("session %s: connection %s attached", id, c.ID())

	s.readLoop(c, drv, sess)

	drv.Detach(c.ID())
	c.Close()
}

// driverFor returns the session's driver, creating session and driver
// together on first contact. The driver goroutine lives until the registry
// evicts the session.
func (s *Server) driverFor(id string) (*interview.Driver, *session.Session) {
	for {
		sess, _ := s.registry.GetOrCreate(id, func(sess *session.Session) func() {
			d := interview.NewDriver(sess, s.router, s.cfg.Interview.MaxCycles)
			ctx, cancel := context.WithCancel(context.Background())
			go d.Run(ctx)

			s.mu.Lock()
			s.drivers[id] = d
			s.mu.Unlock()

			return func() {
				// A reconnect during a slow eviction registers a fresh
				// driver under the same id before this hook runs; only
				// remove the entry if it is still ours.
				s.mu.Lock()
				if s.drivers[id] == d {
					delete(s.drivers, id)
				}
				s.mu.Unlock()
				cancel()
			}
		})

		s.mu.Lock()
		drv := s.drivers[id]
		s.mu.Unlock()
		if drv != nil {
			return drv, sess
		}
		// The reaper evicted the session between lookup and driver fetch;
		// retry and recreate.
	}
}

// readLoop pumps inbound frames into the driver until the connection drops
// or the session turns hopeless.
func (s *Server) readLoop(c *conn, drv *interview.Driver, sess *session.Session) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("session %s: read: %v", sess.ID(), err)
			}
			return
		}
		sess.Touch()

		msg, err := proto.DecodeClientMessage(data)
		if err != nil {
			s.handleMalformed(c, drv, sess, err)
			continue
		}

		switch m := msg.(type) {
		case proto.UserTranscript:
			if !s.checkID(c, drv, sess, m.InterviewID) {
				continue
			}
			drv.HandleTranscript(m.Transcript)
		case proto.EndRequest:
			if !s.checkID(c, drv, sess, m.InterviewID) {
				continue
			}
			drv.RequestEnd(m.Reason)
		case proto.StateUpdate:
			if !s.checkID(c, drv, sess, m.InterviewID) {
				continue
			}
			drv.ReportState(m.State)
		}
	}
}

// checkID rejects frames addressed to a different interview; they count
// against the malformed budget.
func (s *Server) checkID(c *conn, drv *interview.Driver, sess *session.Session, id string) bool {
	if id == "" || id == sess.ID() {
		return true
	}
	s.handleMalformed(c, drv, sess,
		&proto.DecodeError{Code: proto.CodeMalformedMessage, Message: "interview_id does not match this connection"})
	return false
}

// handleMalformed answers a rejected frame with an ERROR notice. Session
// state is never touched. Past the budget the session is failed; the driver
// then closes the connection after its final notices, which is what ends the
// read loop.
func (s *Server) handleMalformed(c *conn, drv *interview.Driver, sess *session.Session, err error) {
	code := proto.CodeMalformedMessage
	var decodeErr *proto.DecodeError
	if errors.As(err, &decodeErr) {
		code = decodeErr.Code
	}
	_ = c.Send(proto.NewErrorMessage(sess.ID(), err.Error(), code))

	if sess.IncrementMalformed() >= s.cfg.Interview.MalformedBudget {
		s.logger.Warn("session %s: malformed budget exhausted", sess.ID())
		drv.Fail(proto.CodeMalformedMessage, "Too many malformed messages.")
	}
}
