// Package session owns the connection and call lifecycle. Vendor events come
// in as a typed stream from the rtc client and are folded into the state by a
// single reducer; user actions validate against that state before touching
// the network. At most one incoming and one active call are tracked.
package session

import (
	"log/slog"
	"time"

	"telnyx-agent/internal/rtc"
)

// ConnectionState is the realtime connection's display state.
type ConnectionState string

const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionReady        ConnectionState = "ready"
	ConnectionError        ConnectionState = "error"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// CallSession is one call as this agent sees it.
type CallSession struct {
	ID        string        `json:"id"`
	Direction rtc.Direction `json:"direction"`
	Remote    string        `json:"remote"`
	Local     string        `json:"local,omitempty"`
	State     rtc.CallState `json:"state"`
	Muted     bool          `json:"muted"`

	// BackendID is set when the backend originated the call; hangup for such
	// calls goes through the backend first.
	BackendID string `json:"backend_id,omitempty"`
}

// Snapshot is a copy of the observable session state.
type Snapshot struct {
	Connection ConnectionState `json:"connection"`
	Status     string          `json:"status"`
	Incoming   *CallSession    `json:"incoming,omitempty"`
	Active     *CallSession    `json:"active,omitempty"`
	Muted      bool            `json:"muted"`

	// TokenExpiresAt is decoded (not verified) from the login token, zero
	// when unknown.
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// AudioSink receives the remote media stream of the active call. The sink is
// exclusively owned by the session; reattachment replaces the prior stream.
type AudioSink interface {
	Attach(callID, streamID string)
	Detach()
}

// LogSink is the default sink for a headless deployment: it records
// attachments without touching an audio device.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Attach(callID, streamID string) {
	if s.Log != nil {
		s.Log.Info("media attached", "call_id", callID, "stream_id", streamID)
	}
}

func (s LogSink) Detach() {
	if s.Log != nil {
		s.Log.Debug("media detached")
	}
}

func newCallSession(u rtc.CallUpdate) *CallSession {
	return &CallSession{
		ID:        u.ID,
		Direction: u.Direction,
		Remote:    u.Remote,
		Local:     u.Local,
		State:     u.State,
	}
}
