package convo

import (
	"context"
	"sync"
	"time"

	"github.com/jameselner/convo-client-go/convo/internal"
	"github.com/jameselner/convo-client-go/convo/rest"
)

// HistoryAPI is the request/response surface the session uses for history
// pages and oracle calls. *rest.Client implements it.
type HistoryAPI interface {
	GetMessages(ctx context.Context, roomID int64, page, size int) (*rest.PagedMessages, error)
	AskOracle(ctx context.Context, roomID int64, req rest.OracleRequest) (*rest.ChatMessage, error)
}

// Client provides the high-level SDK for Convo. It owns the bus connection,
// the active room subscription, the message window, and the typing set, and
// coordinates room switches: leave old room, clear state, fetch history,
// subscribe new room.
type Client struct {
	cfg    Config
	logger Logger

	window     *messageWindow
	typing     *typingTracker
	registry   *subscriptionRegistry
	dispatcher Dispatcher
	api        HistoryAPI
	rest       *rest.Client

	mu         sync.Mutex
	state      ConnectionState
	session    SessionState
	conn       *internal.Conn
	writeCh    chan Inbound
	writeDone  chan struct{}
	cancel     context.CancelFunc
	closed     bool
	generation uint64 // bumped on every room transition; guards stale fetches

	onStateChanged func(StateEvent)
}

// NewClient constructs a client with the provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		logger: noopLogger{},
		window: newMessageWindow(),
	}
	expiry := cfg.TypingExpiry
	if expiry <= 0 {
		expiry = 3 * time.Second
	}
	c.typing = newTypingTracker(cfg.User, expiry)
	c.registry = newSubscriptionRegistry(c, c.logger)
	c.dispatcher = Dispatcher{window: c.window, typing: c.typing, logger: c.logger}
	if cfg.APIBaseURL != "" {
		rc := rest.NewClient(cfg.APIBaseURL)
		rc.SetToken(cfg.Token)
		c.api = rc
		c.rest = rc
	}
	return c
}

// REST exposes the full request/response API client, or nil when no
// APIBaseURL was configured.
func (c *Client) REST() *rest.Client { return c.rest }

// SetLogger overrides the logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
	c.registry.log = l
	c.dispatcher.logger = l
}

// SetHistoryAPI overrides the history backend; mostly useful for tests and
// custom transports.
func (c *Client) SetHistoryAPI(api HistoryAPI) { c.api = api }

// OnMessage registers a callback fired for every message appended to the
// active room's window.
func (c *Client) OnMessage(fn func(Message)) { c.dispatcher.SetOnMessage(fn) }

// OnTyping registers a callback fired with the recomputed typing summary
// whenever the typing set changes.
func (c *Client) OnTyping(fn func(summary string)) { c.typing.setOnChange(fn) }

// OnStateChanged registers a callback for connection state changes. Delivery
// is asynchronous; consumers must not assume immediate delivery of the
// initial state.
func (c *Client) OnStateChanged(fn func(StateEvent)) { c.onStateChanged = fn }

// OnError registers a callback for protocol and decode errors.
func (c *Client) OnError(fn func(error)) { c.dispatcher.SetOnError(fn) }

// EnterRoom switches the session to a room: the previous subscription is torn
// down, local state is cleared, page 0 of history is fetched, and only then
// is the new room subscribed. If the fetch fails the room is left
// unsubscribed and the session returns to idle.
func (c *Client) EnterRoom(ctx context.Context, roomID int64) error {
	if c.api == nil {
		return NewError(ErrorInvalidConfig, "no history API configured")
	}

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		c.logger.Warn("enter room skipped, not connected", map[string]any{"room": roomID})
		return NewError(ErrorNotConnected, "enter room requires an active connection")
	}
	c.generation++
	gen := c.generation
	if err := c.registry.leaveAll(ctx); err != nil {
		c.mu.Unlock()
		return err
	}
	c.session = SessionLoading
	c.window.reset(roomID)
	c.mu.Unlock()

	c.typing.clear()

	page, err := c.api.GetMessages(ctx, roomID, 0, c.pageSize())
	if err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.session = SessionIdle
			c.window.unbind()
		}
		c.mu.Unlock()
		return WrapError(ErrorHistoryFetchFailure, "history fetch failed", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.logger.Debug("stale history fetch discarded", map[string]any{"room": roomID})
		return NewError(ErrorStaleResult, "room changed during history fetch")
	}
	if c.state != StateConnected {
		c.session = SessionIdle
		c.window.unbind()
		return NewError(ErrorNotConnected, "connection lost during history fetch")
	}
	c.window.applyHistoryPage(roomID, 0, page)
	if err := c.registry.enter(ctx, roomID); err != nil {
		c.session = SessionIdle
		c.window.unbind()
		return err
	}
	c.session = SessionActive
	return nil
}

// LeaveRoom tears down the room's subscription if it is the active one.
// Leaving a room that is not subscribed is a silent no-op.
func (c *Client) LeaveRoom(ctx context.Context, roomID int64) error {
	c.mu.Lock()
	cur, ok := c.registry.current()
	left := ok && cur == roomID
	if err := c.registry.leave(ctx, roomID); err != nil {
		c.mu.Unlock()
		return err
	}
	if left {
		c.generation++
		c.session = SessionIdle
		c.window.unbind()
	}
	c.mu.Unlock()

	if left {
		c.typing.clear()
	}
	return nil
}

// LoadOlder fetches the next older history page and prepends it to the
// window. It is a no-op when the oldest page has already been loaded.
func (c *Client) LoadOlder(ctx context.Context) error {
	if c.api == nil {
		return NewError(ErrorInvalidConfig, "no history API configured")
	}

	c.mu.Lock()
	roomID, ok := c.registry.current()
	gen := c.generation
	c.mu.Unlock()
	if !ok {
		return NewError(ErrorNoActiveRoom, "no active room")
	}
	page, more := c.window.nextPage()
	if !more {
		return nil
	}

	pm, err := c.api.GetMessages(ctx, roomID, page, c.pageSize())
	if err != nil {
		return WrapError(ErrorHistoryFetchFailure, "history fetch failed", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		c.logger.Debug("stale history fetch discarded", map[string]any{"room": roomID, "page": page})
		return NewError(ErrorStaleResult, "room changed during history fetch")
	}
	c.window.applyHistoryPage(roomID, page, pm)
	return nil
}

// Send publishes a chat message to the active room. When disconnected this
// degrades to a logged warning instead of sending.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		c.logger.Warn("send dropped, not connected", nil)
		return NewError(ErrorNotConnected, "not connected")
	}
	roomID, ok := c.registry.current()
	if !ok {
		return NewError(ErrorNoActiveRoom, "no active room")
	}
	msg := Message{
		ChatRoomID:     roomID,
		SenderUsername: c.cfg.User,
		Content:        text,
		Type:           MessageChat,
	}
	return c.publish(ctx, Inbound{Type: inboundSend, Destination: chatDest(roomID), Data: msg})
}

// SendTyping publishes a typing indicator for the active room.
func (c *Client) SendTyping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return NewError(ErrorNotConnected, "not connected")
	}
	roomID, ok := c.registry.current()
	if !ok {
		return NewError(ErrorNoActiveRoom, "no active room")
	}
	msg := Message{
		ChatRoomID:     roomID,
		SenderUsername: c.cfg.User,
		Type:           MessageTyping,
	}
	return c.publish(ctx, Inbound{Type: inboundSend, Destination: typingDest(roomID), Data: msg})
}

// AskOracle asks the active room's oracle over the request/response API and
// merges the reply into the window. The same reply is also pushed on the room
// topic, so the merge is deduplicated by message ID; a reply without an ID is
// rejected rather than merged twice.
func (c *Client) AskOracle(ctx context.Context, question string) (*Message, error) {
	if c.api == nil {
		return nil, NewError(ErrorInvalidConfig, "no history API configured")
	}

	c.mu.Lock()
	roomID, ok := c.registry.current()
	gen := c.generation
	c.mu.Unlock()
	if !ok {
		return nil, NewError(ErrorNoActiveRoom, "no active room")
	}

	reply, err := c.api.AskOracle(ctx, roomID, rest.OracleRequest{Question: question})
	if err != nil {
		return nil, err
	}
	msg := messageFromHistory(*reply)
	if msg.ID == 0 {
		return nil, NewError(ErrorSerialization, "oracle reply missing message id")
	}

	c.mu.Lock()
	stale := c.generation != gen
	c.mu.Unlock()
	if stale {
		c.logger.Debug("stale oracle reply discarded", map[string]any{"room": roomID})
		return &msg, nil
	}
	if c.window.appendPushed(msg) {
		c.dispatcher.fireMessage(msg)
	}
	return &msg, nil
}

// Messages returns a copy of the active room's message window.
func (c *Client) Messages() []Message { return c.window.snapshot() }

// TypingSummary returns the current typing presence summary.
func (c *Client) TypingSummary() string { return c.typing.summary() }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the bus connection is up.
func (c *Client) Connected() bool { return c.State() == StateConnected }

// Session returns the current room-transition state.
func (c *Client) Session() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ActiveRoom returns the subscribed room, if any.
func (c *Client) ActiveRoom() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.current()
}

func (c *Client) pageSize() int {
	if c.cfg.PageSize > 0 {
		return c.cfg.PageSize
	}
	return 50
}
