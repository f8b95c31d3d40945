package convo

import (
	"sync"

	"github.com/jameselner/convo-client-go/convo/rest"
)

// messageWindow is the in-memory ordered message sequence for the active
// room, assembled from history pages (oldest-first) and extended by pushed
// messages (newest-last). Duplicate server-assigned IDs are merged once.
// While unbound the window refuses all mutation; the last room's transcript
// stays readable until the next reset.
type messageWindow struct {
	mu         sync.Mutex
	roomID     int64
	bound      bool
	msgs       []Message
	seen       map[int64]struct{}
	page       int // highest history page loaded so far
	totalPages int
}

func newMessageWindow() *messageWindow {
	return &messageWindow{seen: make(map[int64]struct{})}
}

// reset clears the window and binds it to a new room.
func (w *messageWindow) reset(roomID int64) {
	w.mu.Lock()
	w.roomID = roomID
	w.bound = true
	w.msgs = nil
	w.seen = make(map[int64]struct{})
	w.page = 0
	w.totalPages = 0
	w.mu.Unlock()
}

// unbind detaches the window from its room without clearing it. Called when
// the room is left or the transport drops: a late push for the old room must
// not mutate state once no room is active.
func (w *messageWindow) unbind() {
	w.mu.Lock()
	w.bound = false
	w.mu.Unlock()
}

// applyHistoryPage merges one fetched page. The server returns pages
// newest-first, so each page is reversed to chronological order; page 0
// replaces the window, later pages are prepended (older messages first).
// A page for a room other than the bound one is discarded.
func (w *messageWindow) applyHistoryPage(roomID int64, page int, pm *rest.PagedMessages) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.bound || roomID != w.roomID {
		return false
	}
	if page == 0 {
		// a reload replaces everything, including the dedup state
		w.seen = make(map[int64]struct{})
	}

	chrono := make([]Message, 0, len(pm.Content))
	for i := len(pm.Content) - 1; i >= 0; i-- {
		msg := messageFromHistory(pm.Content[i])
		if msg.ID != 0 {
			if _, dup := w.seen[msg.ID]; dup {
				continue
			}
			w.seen[msg.ID] = struct{}{}
		}
		chrono = append(chrono, msg)
	}

	if page == 0 {
		w.msgs = chrono
	} else {
		w.msgs = append(chrono, w.msgs...)
	}
	if page > w.page {
		w.page = page
	}
	w.totalPages = pm.TotalPages
	return true
}

// appendPushed appends a server-pushed message. Messages for other rooms and
// repeated IDs are dropped; the bool reports whether the window changed.
func (w *messageWindow) appendPushed(msg Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.bound || msg.ChatRoomID != w.roomID {
		return false
	}
	if msg.ID != 0 {
		if _, dup := w.seen[msg.ID]; dup {
			return false
		}
		w.seen[msg.ID] = struct{}{}
	}
	w.msgs = append(w.msgs, msg)
	return true
}

// nextPage returns the next older history page, or false when the oldest
// loaded page was the last one.
func (w *messageWindow) nextPage() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.totalPages == 0 || w.page+1 >= w.totalPages {
		return 0, false
	}
	return w.page + 1, true
}

// snapshot returns a copy of the current window contents.
func (w *messageWindow) snapshot() []Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Message, len(w.msgs))
	copy(out, w.msgs)
	return out
}

// room returns the bound room; ok is false while no room is active.
func (w *messageWindow) room() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.roomID, w.bound
}
