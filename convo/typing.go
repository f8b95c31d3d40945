package convo

import (
	"fmt"
	"sync"
	"time"
)

// typingTracker aggregates per-user typing events for the active room. Each
// user carries an expiry timer; a fresh event supersedes the pending timer.
// The tracker owns the set exclusively; nothing else mutates it.
type typingTracker struct {
	mu       sync.Mutex
	self     string
	expiry   time.Duration
	order    []string // insertion order; order[0] is the summary representative
	timers   map[string]*time.Timer
	seq      map[string]uint64 // guards against a superseded timer firing late
	onChange func(summary string)
}

func newTypingTracker(self string, expiry time.Duration) *typingTracker {
	return &typingTracker{
		self:   self,
		expiry: expiry,
		timers: make(map[string]*time.Timer),
		seq:    make(map[string]uint64),
	}
}

func (t *typingTracker) setOnChange(fn func(string)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// handleEvent records that user is typing and (re)arms their expiry timer.
// The local identity is never reflected back to itself.
func (t *typingTracker) handleEvent(user string) {
	if user == "" || user == t.self {
		return
	}
	t.mu.Lock()
	if timer, ok := t.timers[user]; ok {
		timer.Stop()
	} else {
		t.order = append(t.order, user)
	}
	u := user
	t.seq[user]++
	n := t.seq[user]
	t.timers[user] = time.AfterFunc(t.expiry, func() { t.expire(u, n) })
	summary, fn := t.summaryLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(summary)
	}
}

// stop removes a user immediately, e.g. on an explicit stop-typing event.
func (t *typingTracker) stop(user string) {
	t.mu.Lock()
	timer, ok := t.timers[user]
	if !ok {
		t.mu.Unlock()
		return
	}
	timer.Stop()
	delete(t.timers, user)
	delete(t.seq, user)
	t.removeLocked(user)
	summary, fn := t.summaryLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(summary)
	}
}

func (t *typingTracker) expire(user string, n uint64) {
	t.mu.Lock()
	if t.seq[user] != n {
		// already cleared or superseded
		t.mu.Unlock()
		return
	}
	delete(t.timers, user)
	delete(t.seq, user)
	t.removeLocked(user)
	summary, fn := t.summaryLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(summary)
	}
}

// clear cancels every pending timer and empties the set. Called on room
// switch and on disconnect so no timer leaks across rooms. An already empty
// set produces no callback.
func (t *typingTracker) clear() {
	t.mu.Lock()
	if len(t.order) == 0 && len(t.timers) == 0 {
		t.mu.Unlock()
		return
	}
	for user, timer := range t.timers {
		timer.Stop()
		delete(t.timers, user)
		delete(t.seq, user)
	}
	t.order = t.order[:0]
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn("")
	}
}

func (t *typingTracker) summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summaryLocked()
}

func (t *typingTracker) summaryLocked() string {
	switch n := len(t.order); n {
	case 0:
		return ""
	case 1:
		return t.order[0] + " is typing..."
	case 2:
		return t.order[0] + " and " + t.order[1] + " are typing..."
	default:
		return fmt.Sprintf("%s and %d others are typing...", t.order[0], n-1)
	}
}

func (t *typingTracker) removeLocked(user string) {
	for i, u := range t.order {
		if u == user {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
