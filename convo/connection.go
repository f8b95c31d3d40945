package convo

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/jameselner/convo-client-go/convo/internal"

	"github.com/coder/websocket"
)

// Connect dials the server, sends the connect frame, and starts the internal
// loops. Calling Connect while connecting or connected is a no-op. An absent
// credential is a hard precondition failure: it is logged and reported, and
// no retry is scheduled.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ErrorNotConnected, "client is closed")
	}
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if c.cfg.Token == "" {
		c.mu.Unlock()
		c.logger.Warn("connect skipped, no credential available", nil)
		return NewError(ErrorNoCredential, "connect requires a credential")
	}
	if c.cfg.URL == "" {
		c.mu.Unlock()
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	ev := c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()
	c.fireState(ev)

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		ev := c.setStateLocked(StateFailed, err)
		retry := c.cfg.AutoReconnect && !c.closed
		c.mu.Unlock()
		c.fireState(ev)
		if retry {
			go c.reconnectLoop()
		}
		return err
	}
	return nil
}

// Close tears down the active room subscription (emitting its leave notice),
// flushes queued frames, and closes the transport. No reconnect follows an
// explicit Close.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.state == StateConnected {
		leaveCtx, cancelLeave := context.WithTimeout(context.Background(), time.Second)
		if err := c.registry.leaveAll(leaveCtx); err != nil {
			c.logger.Warn("leave on close failed", map[string]any{"error": err.Error()})
		}
		cancelLeave()
		close(c.writeCh) // write loop drains the queue, then exits
	}
	c.registry.dropAll()
	c.window.unbind()
	c.session = SessionIdle
	conn, cancel, done := c.conn, c.cancel, c.writeDone
	ev := c.setStateLocked(StateDisconnected, nil)
	c.mu.Unlock()

	c.typing.clear()
	c.fireState(ev)

	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client close")
	}
	return nil
}

// dial opens the transport, performs the connect handshake, and starts the
// read and write loops.
func (c *Client) dial(ctx context.Context) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "invalid URL", err)
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	ws, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		return WrapError(ErrorHandshakeFailure, "dial failed", err)
	}
	conn := internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout)

	hello := Inbound{
		Type: inboundConnect,
		Data: ConnectPayload{
			Protocol: ProtocolVersion,
			Token:    c.cfg.Token,
			User:     c.cfg.User,
		},
	}
	if err := conn.Write(ctx, hello); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "handshake error")
		return WrapError(ErrorHandshakeFailure, "connect frame rejected", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "client closed")
		return NewError(ErrorNotConnected, "client is closed")
	}
	c.conn = conn
	c.cancel = cancel
	c.writeCh = make(chan Inbound, 64)
	c.writeDone = make(chan struct{})
	ev := c.setStateLocked(StateConnected, nil)
	writeCh, writeDone := c.writeCh, c.writeDone
	c.mu.Unlock()
	c.fireState(ev)

	go c.readLoop(runCtx, conn)
	go c.writeLoop(runCtx, conn, writeCh, writeDone)
	return nil
}

// handleDrop reacts to an unexpected transport-level disconnect. The active
// subscription is discarded locally (the leave notice cannot be delivered),
// and a fixed-delay redial loop starts when auto-reconnect is enabled.
// Subscriptions never survive a reconnect; callers re-enter their room after
// observing StateConnected again.
func (c *Client) handleDrop(err error) {
	c.mu.Lock()
	if c.closed || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.registry.dropAll()
	c.window.unbind()
	c.generation++
	c.session = SessionIdle
	ev := c.setStateLocked(StateFailed, WrapError(ErrorTransportDropped, "transport dropped", err))
	retry := c.cfg.AutoReconnect
	c.mu.Unlock()

	c.typing.clear()
	c.fireState(ev)
	if retry {
		go c.reconnectLoop()
	}
}

// reconnectLoop redials at the fixed configured delay until it succeeds, the
// client is closed, or the attempt budget runs out.
func (c *Client) reconnectLoop() {
	tries := 0
	for {
		time.Sleep(c.cfg.ReconnectDelay)

		c.mu.Lock()
		if c.closed || c.state == StateConnected {
			c.mu.Unlock()
			return
		}
		tries++
		if c.cfg.MaxReconnectTries > 0 && tries > c.cfg.MaxReconnectTries {
			ev := c.setStateLocked(StateDisconnected, nil)
			c.mu.Unlock()
			c.fireState(ev)
			c.logger.Warn("reconnect attempts exhausted", map[string]any{"tries": tries - 1})
			return
		}
		ev := c.setStateLocked(StateConnecting, nil)
		c.mu.Unlock()
		c.fireState(ev)

		c.logger.Info("reconnecting", map[string]any{"attempt": tries})
		err := c.dial(context.Background())
		if err == nil {
			return
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		ev = c.setStateLocked(StateFailed, err)
		c.mu.Unlock()
		c.fireState(ev)
	}
}

func (c *Client) readLoop(ctx context.Context, conn *internal.Conn) {
	for {
		var out Outbound
		if err := conn.Read(ctx, &out); err != nil {
			if isExpectedDisconnect(ctx, err) {
				return
			}
			c.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
			c.handleDrop(err)
			return
		}
		c.dispatcher.Dispatch(out)
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *internal.Conn, ch chan Inbound, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case in, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.Write(ctx, in); err != nil {
				c.dispatcher.fireError(WrapError(ErrorTransportDropped, "write failed", err))
				c.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// publish queues a frame for the transport. Callers hold the client mutex, so
// frame order on the wire matches call order.
func (c *Client) publish(ctx context.Context, in Inbound) error {
	if c.state != StateConnected || c.writeCh == nil {
		return NewError(ErrorNotConnected, "not connected")
	}
	select {
	case c.writeCh <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) setStateLocked(s ConnectionState, err error) StateEvent {
	ev := StateEvent{OldState: c.state, NewState: s, Error: err}
	c.state = s
	return ev
}

func (c *Client) fireState(ev StateEvent) {
	if ev.OldState == ev.NewState {
		return
	}
	if fn := c.onStateChanged; fn != nil {
		fn(ev)
	}
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
