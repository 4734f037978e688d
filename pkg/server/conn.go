package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"interviewd/pkg/logx"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 20 * time.Second
	pongTimeout  = 60 * time.Second
	// maxFrameSize bounds inbound frames; transcripts are text, never audio.
	maxFrameSize = 64 * 1024
)

var errConnClosed = errors.New("connection closed")

// conn wraps one WebSocket connection. It implements interview.Sink: writes
// are synchronous so a nil error from Send means the frame reached the
// transport, which is what exactly-once question delivery relies on.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *logx.Logger

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func newConn(id string, ws *websocket.Conn, logger *logx.Logger) *conn {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	return &conn{
		id:     id,
		ws:     ws,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (c *conn) ID() string { return c.id }

// Send writes one JSON frame. Driver and read loop may both call it; the
// mutex serializes them.
func (c *conn) Send(msg any) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once and from any goroutine.
func (c *conn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		deadline := time.Now().Add(writeTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

// pingLoop keeps the connection alive. A failed ping closes the socket,
// which unblocks the read loop.
func (c *conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("conn %s: ping failed: %v", c.id, err)
				c.Close()
				return
			}
		}
	}
}
