package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Defaults for live connections.
const (
	DefaultIdleTimeout  = 60 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// Conn adapts a websocket connection to Subscriber.
// gorilla/websocket allows one concurrent writer, so writes are serialised here.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws. A non-positive writeTimeout uses DefaultWriteTimeout.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// Send writes one text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// The write deadline is the subscriber's own; a short publisher
	// deadline must not leave a half-written frame on a healthy connection.
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// ServeOptions tunes a live connection.
type ServeOptions struct {
	// IdleTimeout reaps a connection that has sent neither a frame nor a pong for this long.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

// Serve registers ws as a subscriber of sessionID and pumps inbound frames
// until the peer disconnects, idles out, or ctx is cancelled. Inbound text is
// acknowledged; no other inbound commands exist.
func Serve(ctx context.Context, r *Registry, sessionID uuid.UUID, ws *websocket.Conn, opts ServeOptions) error {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}

	conn := NewConn(ws, opts.WriteTimeout)
	r.Subscribe(sessionID, conn)
	defer func() {
		r.Unsubscribe(sessionID, conn)
		conn.Close()
	}()

	extend := func() error {
		return ws.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
	}
	if err := extend(); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(opts.IdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
		if err := extend(); err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ack, err := json.Marshal(Message{
			Type:      TypeAck,
			SessionID: sessionID,
			Payload:   map[string]string{"received": string(data)},
		})
		if err != nil {
			continue
		}
		if err := conn.Send(ctx, ack); err != nil {
			return err
		}
	}
}
