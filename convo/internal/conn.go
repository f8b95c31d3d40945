package internal

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Conn is the transport seam between the client loops and the websocket. It
// frames JSON values with wsjson and bounds each call by the configured
// timeout; a zero timeout leaves the caller's context in charge.
type Conn struct {
	ws           *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewConn(ws *websocket.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{ws: ws, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

// Read decodes the next frame into v, failing when none arrives in time.
func (c *Conn) Read(ctx context.Context, v any) error {
	ctx, cancel := withDeadline(ctx, c.readTimeout)
	defer cancel()
	return wsjson.Read(ctx, c.ws, v)
}

// Write encodes v as one frame, failing when the peer does not take it in
// time.
func (c *Conn) Write(ctx context.Context, v any) error {
	ctx, cancel := withDeadline(ctx, c.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.ws, v)
}

func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	return c.ws.Close(code, reason)
}

func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
