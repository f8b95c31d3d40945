package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jameselner/convo-client-go/convo/rest"
)

// busServer is a minimal in-process bus: it records every client frame and
// lets tests push server frames back.
type busServer struct {
	srv    *httptest.Server
	mu     sync.Mutex
	ws     *websocket.Conn
	frames []Inbound
}

func newBusServer(t *testing.T) *busServer {
	bs := &busServer{}
	bs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		bs.mu.Lock()
		bs.ws = ws
		bs.mu.Unlock()
		for {
			var in Inbound
			if err := wsjson.Read(r.Context(), ws, &in); err != nil {
				return
			}
			bs.mu.Lock()
			bs.frames = append(bs.frames, in)
			bs.mu.Unlock()
		}
	}))
	t.Cleanup(bs.srv.Close)
	return bs
}

func (bs *busServer) url() string {
	return "ws://" + strings.TrimPrefix(bs.srv.URL, "http://")
}

func (bs *busServer) recorded() []Inbound {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	out := make([]Inbound, len(bs.frames))
	copy(out, bs.frames)
	return out
}

// awaitFrames waits until the server has recorded at least n frames.
func (bs *busServer) awaitFrames(t *testing.T, n int) []Inbound {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(bs.recorded()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return bs.recorded()
}

// dropClient severs the server side of the websocket to simulate a transport
// drop; httptest's CloseClientConnections cannot reach hijacked connections.
func (bs *busServer) dropClient(t *testing.T) {
	t.Helper()
	bs.mu.Lock()
	ws := bs.ws
	bs.mu.Unlock()
	require.NotNil(t, ws)
	_ = ws.CloseNow()
}

func (bs *busServer) push(t *testing.T, dest string, msg Message) {
	t.Helper()
	bs.mu.Lock()
	ws := bs.ws
	bs.mu.Unlock()
	require.NotNil(t, ws)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(context.Background(), ws, Outbound{
		Type:        outboundMessage,
		Destination: dest,
		Data:        data,
	}))
}

// fakeHistory is an in-memory HistoryAPI.
type fakeHistory struct {
	mu     sync.Mutex
	pages  map[int64]map[int]*rest.PagedMessages
	errs   map[int64]error
	oracle *rest.ChatMessage
	calls  []int64
	hook   func(roomID int64, page int)
}

func (f *fakeHistory) GetMessages(_ context.Context, roomID int64, page, _ int) (*rest.PagedMessages, error) {
	if f.hook != nil {
		f.hook(roomID, page)
	}
	f.mu.Lock()
	f.calls = append(f.calls, roomID)
	f.mu.Unlock()
	if err := f.errs[roomID]; err != nil {
		return nil, err
	}
	pm := f.pages[roomID][page]
	if pm == nil {
		return &rest.PagedMessages{TotalPages: 1}, nil
	}
	return pm, nil
}

func (f *fakeHistory) AskOracle(context.Context, int64, rest.OracleRequest) (*rest.ChatMessage, error) {
	if f.oracle == nil {
		return nil, fmt.Errorf("oracle unavailable")
	}
	return f.oracle, nil
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func singlePage(roomID int64, ids ...int64) map[int]*rest.PagedMessages {
	content := make([]rest.ChatMessage, 0, len(ids))
	for _, id := range ids {
		content = append(content, rest.ChatMessage{ID: id, ChatRoomID: roomID, Type: "CHAT"})
	}
	return map[int]*rest.PagedMessages{0: {Content: content, TotalPages: 1}}
}

func newTestClient(t *testing.T, bs *busServer, api HistoryAPI) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = bs.url()
	cfg.Token = "token"
	cfg.User = "me"
	cfg.AutoReconnect = false
	c := NewClient(cfg)
	if api != nil {
		c.SetHistoryAPI(api)
	}
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func messageIDs(msgs []Message) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestConnectWithoutCredential(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:1"
	c := NewClient(cfg)

	err := c.Connect(context.Background())
	assert.Equal(t, ErrorNoCredential, CodeOf(err))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectIsIdempotent(t *testing.T) {
	bs := newBusServer(t)
	c := newTestClient(t, bs, nil)

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))

	time.Sleep(50 * time.Millisecond)
	frames := bs.awaitFrames(t, 1)
	connects := 0
	for _, f := range frames {
		if f.Type == inboundConnect {
			connects++
		}
	}
	assert.Equal(t, 1, connects)
	assert.True(t, c.Connected())
}

func TestSendWhileDisconnectedIsRefused(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token = "token"
	c := NewClient(cfg)

	err := c.Send(context.Background(), "hello")
	assert.Equal(t, ErrorNotConnected, CodeOf(err))

	err = c.SendTyping(context.Background())
	assert.Equal(t, ErrorNotConnected, CodeOf(err))
}

func TestEnterRoomLoadsHistoryThenSubscribes(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5, 4)}}
	c := newTestClient(t, bs, api)

	require.NoError(t, c.EnterRoom(context.Background(), 1))

	assert.Equal(t, []int64{4, 5}, messageIDs(c.Messages()))
	assert.Equal(t, SessionActive, c.Session())
	room, ok := c.ActiveRoom()
	require.True(t, ok)
	assert.Equal(t, int64(1), room)

	// connect frame, then both subscriptions, then the join notice
	frames := bs.awaitFrames(t, 4)
	assert.Equal(t, inboundConnect, frames[0].Type)
	assert.Equal(t, "/topic/room/1", frames[1].Destination)
	assert.Equal(t, "/topic/typing/1", frames[2].Destination)
	assert.Equal(t, "/app/join/1", frames[3].Destination)
}

func TestRoomSwitchLeavesBeforeJoining(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{
		1: singlePage(1, 5, 4),
		2: singlePage(2, 10),
	}}
	c := newTestClient(t, bs, api)

	require.NoError(t, c.EnterRoom(context.Background(), 1))
	require.NoError(t, c.EnterRoom(context.Background(), 2))

	frames := bs.awaitFrames(t, 10)
	var leaveIdx, joinIdx int
	for i, f := range frames {
		switch f.Destination {
		case "/app/leave/1":
			leaveIdx = i
		case "/topic/room/2":
			joinIdx = i
		}
	}
	require.NotZero(t, leaveIdx)
	require.NotZero(t, joinIdx)
	assert.Less(t, leaveIdx, joinIdx, "old room leave notice precedes new room subscription")

	assert.Equal(t, []int64{10}, messageIDs(c.Messages()))
}

func TestEnterRoomHistoryFailureLeavesUnsubscribed(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{errs: map[int64]error{9: fmt.Errorf("status 500")}}
	c := newTestClient(t, bs, api)

	err := c.EnterRoom(context.Background(), 9)
	assert.Equal(t, ErrorHistoryFetchFailure, CodeOf(err))
	assert.Equal(t, SessionIdle, c.Session())
	_, ok := c.ActiveRoom()
	assert.False(t, ok)

	time.Sleep(50 * time.Millisecond)
	for _, f := range bs.recorded() {
		assert.NotContains(t, f.Destination, "/9")
	}
}

func TestPushedMessagesExtendWindow(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5, 4)}}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	bs.push(t, roomTopic(1), Message{ID: 6, ChatRoomID: 1, Type: MessageChat})
	require.Eventually(t, func() bool {
		return len(c.Messages()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	// duplicate id and foreign-room pushes are both dropped
	bs.push(t, roomTopic(1), Message{ID: 6, ChatRoomID: 1, Type: MessageChat})
	bs.push(t, roomTopic(2), Message{ID: 7, ChatRoomID: 2, Type: MessageChat})
	bs.push(t, roomTopic(1), Message{ID: 8, ChatRoomID: 1, Type: MessageChat})

	require.Eventually(t, func() bool {
		ids := messageIDs(c.Messages())
		return len(ids) > 0 && ids[len(ids)-1] == 8
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{4, 5, 6, 8}, messageIDs(c.Messages()))
}

func TestTypingSummaryLifecycle(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{
		1: singlePage(1, 5),
		2: singlePage(2, 10),
	}}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	bs.push(t, typingTopic(1), Message{ChatRoomID: 1, SenderUsername: "alice", Type: MessageTyping})
	require.Eventually(t, func() bool {
		return c.TypingSummary() == "alice is typing..."
	}, 2*time.Second, 5*time.Millisecond)

	// own events never show up
	bs.push(t, typingTopic(1), Message{ChatRoomID: 1, SenderUsername: "me", Type: MessageTyping})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "alice is typing...", c.TypingSummary())

	// switching rooms clears the set
	require.NoError(t, c.EnterRoom(context.Background(), 2))
	assert.Equal(t, "", c.TypingSummary())
}

func TestLeaveRoomDetachesWindowAndTyping(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5)}}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	require.NoError(t, c.LeaveRoom(context.Background(), 1))
	assert.Equal(t, SessionIdle, c.Session())

	// pushes that race the unsubscribe must not mutate the idle session
	bs.push(t, roomTopic(1), Message{ID: 6, ChatRoomID: 1, Type: MessageChat})
	bs.push(t, typingTopic(1), Message{ChatRoomID: 1, SenderUsername: "alice", Type: MessageTyping})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int64{5}, messageIDs(c.Messages()))
	assert.Equal(t, "", c.TypingSummary())
}

func TestStaleHistoryFetchIsDiscarded(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{
		1: singlePage(1, 5),
		2: singlePage(2, 10),
	}}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	api.hook = func(roomID int64, _ int) {
		if roomID == 1 {
			once.Do(func() { close(started) })
			<-release
		}
	}

	c := newTestClient(t, bs, api)

	errCh := make(chan error, 1)
	go func() { errCh <- c.EnterRoom(context.Background(), 1) }()
	<-started

	// a second switch supersedes the in-flight fetch for room 1
	require.NoError(t, c.EnterRoom(context.Background(), 2))
	close(release)

	err := <-errCh
	assert.Equal(t, ErrorStaleResult, CodeOf(err))

	room, ok := c.ActiveRoom()
	require.True(t, ok)
	assert.Equal(t, int64(2), room)
	assert.Equal(t, []int64{10}, messageIDs(c.Messages()))
	assert.Equal(t, SessionActive, c.Session())
}

func TestLoadOlderPrependsAndStopsAtOldestPage(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{
		1: {
			0: {Content: []rest.ChatMessage{{ID: 5, ChatRoomID: 1, Type: "CHAT"}, {ID: 4, ChatRoomID: 1, Type: "CHAT"}}, TotalPages: 2},
			1: {Content: []rest.ChatMessage{{ID: 3, ChatRoomID: 1, Type: "CHAT"}, {ID: 2, ChatRoomID: 1, Type: "CHAT"}}, TotalPages: 2},
		},
	}}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	require.NoError(t, c.LoadOlder(context.Background()))
	assert.Equal(t, []int64{2, 3, 4, 5}, messageIDs(c.Messages()))

	before := api.callCount()
	require.NoError(t, c.LoadOlder(context.Background()))
	assert.Equal(t, before, api.callCount(), "no fetch past the oldest page")
}

func TestAskOracleMergesReplyOnce(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{
		pages:  map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5)},
		oracle: &rest.ChatMessage{ID: 99, ChatRoomID: 1, SenderUsername: "oracle", Content: "42", Type: "ORACLE"},
	}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	reply, err := c.AskOracle(context.Background(), "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, int64(99), reply.ID)
	assert.Equal(t, MessageOracle, reply.Type)

	// the same reply arrives again on the push channel
	bs.push(t, roomTopic(1), Message{ID: 99, ChatRoomID: 1, SenderUsername: "oracle", Type: MessageOracle})
	bs.push(t, roomTopic(1), Message{ID: 100, ChatRoomID: 1, Type: MessageChat})

	require.Eventually(t, func() bool {
		ids := messageIDs(c.Messages())
		return len(ids) > 0 && ids[len(ids)-1] == 100
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{5, 99, 100}, messageIDs(c.Messages()))
}

func TestAskOracleRejectsReplyWithoutID(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{
		pages:  map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5)},
		oracle: &rest.ChatMessage{ChatRoomID: 1, Content: "42", Type: "ORACLE"},
	}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	_, err := c.AskOracle(context.Background(), "?")
	assert.Equal(t, ErrorSerialization, CodeOf(err))
	assert.Equal(t, []int64{5}, messageIDs(c.Messages()))
}

func TestCloseEmitsLeaveNotice(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5)}}
	c := newTestClient(t, bs, api)
	require.NoError(t, c.EnterRoom(context.Background(), 1))
	bs.awaitFrames(t, 4)

	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())

	frames := bs.awaitFrames(t, 7)
	last := frames[len(frames)-1]
	assert.Equal(t, "/app/leave/1", last.Destination)
}

func TestReconnectAfterTransportDrop(t *testing.T) {
	bs := newBusServer(t)
	api := &fakeHistory{pages: map[int64]map[int]*rest.PagedMessages{1: singlePage(1, 5)}}

	cfg := DefaultConfig()
	cfg.URL = bs.url()
	cfg.Token = "token"
	cfg.User = "me"
	cfg.ReconnectDelay = 20 * time.Millisecond
	c := NewClient(cfg)
	c.SetHistoryAPI(api)

	var mu sync.Mutex
	var states []ConnectionState
	c.OnStateChanged(func(ev StateEvent) {
		mu.Lock()
		states = append(states, ev.NewState)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.EnterRoom(context.Background(), 1))

	bs.dropClient(t)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		sawFailed := false
		for _, s := range states {
			if s == StateFailed {
				sawFailed = true
			}
			if sawFailed && s == StateConnected {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)

	// subscriptions do not survive a reconnect
	_, ok := c.ActiveRoom()
	assert.False(t, ok)
	assert.Equal(t, SessionIdle, c.Session())

	// the caller re-enters the room after observing the reconnect
	require.NoError(t, c.EnterRoom(context.Background(), 1))
	assert.Equal(t, []int64{5}, messageIDs(c.Messages()))
}
