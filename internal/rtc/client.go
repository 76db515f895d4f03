// Package rtc wraps the realtime signaling connection behind an explicitly
// owned client with lifecycle methods and a typed event stream. Vendor
// payload shapes are normalized once, at this boundary; nothing above it
// performs fallback field lookups.
package rtc

import (
	"context"
	"log/slog"
)

// Client is the surface the session layer needs from the realtime connection.
// Connect and Close bracket the lifetime; Close is idempotent. Events is
// closed when the connection goes away.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Events() <-chan Event

	// Call control, keyed by the vendor call id.
	Answer(ctx context.Context, callID string) error
	Hangup(ctx context.Context, callID string) error
	SetMute(ctx context.Context, callID string, muted bool) error
	SendDTMF(ctx context.Context, callID, digit string) error
}

// Config carries everything needed to open a realtime session.
type Config struct {
	ServerURL  string
	LoginToken string

	// ICEServers is passed through from the token response; defaults apply
	// when empty.
	ICEServers []string

	Debug bool
	Log   *slog.Logger
}

// DefaultICEServers is the public fallback used when the token response
// carries no ICE configuration.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// Factory constructs a Client; the session layer takes it as a dependency so
// tests can substitute a fake.
type Factory func(Config) Client

// Event is a normalized occurrence on the realtime connection.
type Event interface{ isEvent() }

// ReadyEvent fires once the login handshake completes.
type ReadyEvent struct {
	SessionID string
}

// ErrorEvent fires on a connection-level failure.
type ErrorEvent struct {
	Err error
}

// ClosedEvent fires when the socket closes; Err is nil on a clean close.
type ClosedEvent struct {
	Err error
}

// CallUpdateEvent carries one normalized call notification.
type CallUpdateEvent struct {
	Update CallUpdate
}

// MediaEvent reports that a call's remote media stream is available. It may
// arrive before or after the corresponding active state transition.
type MediaEvent struct {
	CallID   string
	StreamID string
}

func (ReadyEvent) isEvent()      {}
func (ErrorEvent) isEvent()      {}
func (ClosedEvent) isEvent()     {}
func (CallUpdateEvent) isEvent() {}
func (MediaEvent) isEvent()      {}

// CallUpdate is the internal shape of a vendor call notification.
type CallUpdate struct {
	ID        string
	State     CallState
	Direction Direction

	// Remote is the far party; Local is the leg owned by this session.
	Remote string
	Local  string
}
