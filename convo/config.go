package convo

import "time"

// Config controls how the SDK connects.
type Config struct {
	URL        string // websocket endpoint, e.g. ws://localhost:8080/ws
	APIBaseURL string // REST base URL, e.g. http://localhost:8080/api
	Token      string // bearer credential; required for Connect
	User       string // local identity; own typing events are filtered out

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// AutoReconnect redials after an unexpected transport drop. Subscriptions
	// do not survive a reconnect; callers re-enter their room after observing
	// StateConnected again.
	AutoReconnect     bool
	ReconnectDelay    time.Duration // fixed delay between attempts
	MaxReconnectTries int           // 0 means unlimited

	TypingExpiry time.Duration // per-user typing indicator lifetime
	PageSize     int           // history page size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     10 * time.Second,
		AutoReconnect:    true,
		ReconnectDelay:   5 * time.Second,
		TypingExpiry:     3 * time.Second,
		PageSize:         50,
	}
}
