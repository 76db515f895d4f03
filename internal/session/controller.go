package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"telnyx-agent/internal/backend"
	"telnyx-agent/internal/journal"
	"telnyx-agent/internal/metrics"
	"telnyx-agent/internal/rtc"
)

var (
	ErrNotReady         = errors.New("session: connection not ready")
	ErrCallInProgress   = errors.New("session: a call is already in progress")
	ErrNoIncomingCall   = errors.New("session: no incoming call")
	ErrNoActiveCall     = errors.New("session: no active call")
	ErrEmptyDestination = errors.New("session: destination is required")
	ErrInvalidDigit     = errors.New("session: invalid DTMF digit")
	ErrDisposed         = errors.New("session: controller closed")
)

// clearedTTL bounds how long a dismissed call id is remembered so that late
// vendor notifications for it are ignored.
const clearedTTL = 2 * time.Minute

// Backend is the slice of the backend API the session needs.
type Backend interface {
	FetchToken(ctx context.Context) (backend.TokenResponse, error)
	OriginateCall(ctx context.Context, to string) (string, error)
	HangupCall(ctx context.Context, id string) error
}

// Recorder journals call activity, best-effort.
type Recorder interface {
	Record(ctx context.Context, typ journal.EntryType, refID, remote, detail string)
}

// Config is the session-relevant configuration.
type Config struct {
	RTCServerURL string
	CallerNumber string
	Debug        bool
}

// Controller bootstraps the realtime session and runs the call lifecycle.
// All state is guarded by mu; vendor events are applied by a single loop.
type Controller struct {
	cfg     Config
	backend Backend
	factory rtc.Factory
	sink    AudioSink
	rec     Recorder
	log     *slog.Logger

	mu       sync.Mutex
	disposed bool
	client   rtc.Client

	conn      ConnectionState
	lastError string
	status    string
	incoming  *CallSession
	active    *CallSession
	muted     bool
	tokenExp  time.Time

	// pendingDial holds the destination between PlaceCall validation and the
	// arrival of either the backend response or the vendor notification.
	pendingDial string
	// pendingBackendID holds the backend call id when the origination
	// response lands before the vendor notification.
	pendingBackendID string
	// pendingMedia holds stream ids that arrived before the active
	// transition of their call.
	pendingMedia map[string]string
	// cleared remembers call ids dismissed locally (reject, hangup) so the
	// late terminal or state notification is a no-op.
	cleared map[string]time.Time

	wg sync.WaitGroup
}

func NewController(cfg Config, be Backend, factory rtc.Factory, sink AudioSink, rec Recorder, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = LogSink{Log: log}
	}
	return &Controller{
		cfg:          cfg,
		backend:      be,
		factory:      factory,
		sink:         sink,
		rec:          rec,
		log:          log.With("component", "session"),
		conn:         ConnectionConnecting,
		status:       "Connecting",
		pendingMedia: make(map[string]string),
		cleared:      make(map[string]time.Time),
	}
}

// Start kicks off the token fetch and connection in the background. There is
// no automatic retry; a failed bootstrap leaves the session in the error
// state until the process is restarted.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.conn = ConnectionConnecting
	c.status = c.deriveStatus()
	c.mu.Unlock()

	c.wg.Add(1)
	go c.bootstrap(ctx)
}

// Close disconnects the realtime client and prevents any further state
// mutation, including from async work already in flight. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	client := c.client
	c.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}
	c.wg.Wait()
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Connection:     c.conn,
		Status:         c.status,
		Muted:          c.muted,
		TokenExpiresAt: c.tokenExp,
	}
	if c.incoming != nil {
		inc := *c.incoming
		snap.Incoming = &inc
	}
	if c.active != nil {
		act := *c.active
		snap.Active = &act
	}
	return snap
}

func (c *Controller) bootstrap(ctx context.Context) {
	defer c.wg.Done()

	tok, err := c.backend.FetchToken(ctx)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.conn = ConnectionError
		c.lastError = "token request failed"
		c.status = c.deriveStatus()
		c.mu.Unlock()
		c.log.Error("token fetch failed", "err", err)
		return
	}
	c.tokenExp = decodeTokenExpiry(tok.LoginToken)

	client := c.factory(rtc.Config{
		ServerURL:  c.cfg.RTCServerURL,
		LoginToken: tok.LoginToken,
		ICEServers: flattenICE(tok.ICEServers),
		Debug:      c.cfg.Debug,
		Log:        c.log,
	})
	c.client = client
	c.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		c.mu.Lock()
		if !c.disposed {
			c.conn = ConnectionError
			c.lastError = "connect failed"
			c.status = c.deriveStatus()
		}
		c.mu.Unlock()
		c.log.Error("rtc connect failed", "err", err)
		return
	}

	c.wg.Add(1)
	go c.eventLoop(client)
}

func (c *Controller) eventLoop(client rtc.Client) {
	defer c.wg.Done()
	for ev := range client.Events() {
		c.mu.Lock()
		if c.disposed {
			c.mu.Unlock()
			return
		}
		c.handleEvent(ev)
		c.mu.Unlock()
	}
}

// handleEvent is the reducer. Callers hold mu.
func (c *Controller) handleEvent(ev rtc.Event) {
	switch ev := ev.(type) {
	case rtc.ReadyEvent:
		c.conn = ConnectionReady
		c.lastError = ""
		metrics.ConnectionReady.Set(1)
		c.status = c.deriveStatus()
		c.log.Info("realtime session ready", "session_id", ev.SessionID)

	case rtc.ErrorEvent:
		c.conn = ConnectionError
		c.lastError = ev.Err.Error()
		metrics.ConnectionReady.Set(0)
		c.status = c.deriveStatus()
		c.log.Error("realtime error", "err", ev.Err)

	case rtc.ClosedEvent:
		c.conn = ConnectionDisconnected
		metrics.ConnectionReady.Set(0)
		c.status = c.deriveStatus()
		if ev.Err != nil {
			c.log.Warn("realtime socket closed", "err", ev.Err)
		}

	case rtc.CallUpdateEvent:
		c.applyCallUpdate(ev.Update)

	case rtc.MediaEvent:
		c.applyMedia(ev)
	}
}

func (c *Controller) applyCallUpdate(u rtc.CallUpdate) {
	metrics.Notifications.WithLabelValues(string(u.State)).Inc()

	if u.Direction == rtc.DirectionOutbound && u.Local == "" {
		u.Local = c.cfg.CallerNumber
	}

	if _, ok := c.cleared[u.ID]; ok {
		// The user already dismissed this call; the vendor's notification
		// lost the race. Must not resurrect a record.
		c.log.Debug("notification for cleared call ignored", "call_id", u.ID, "state", u.State)
		return
	}

	switch {
	case u.State.IsTerminal():
		c.clearCalls("remote_" + string(u.State))

	case u.State == rtc.StateActive:
		s := newCallSession(u)
		if c.active != nil && c.active.ID == u.ID {
			s.Muted = c.active.Muted
			s.BackendID = c.active.BackendID
		}
		if s.BackendID == "" && c.pendingBackendID != "" && u.Direction == rtc.DirectionOutbound {
			s.BackendID = c.pendingBackendID
			c.pendingBackendID = ""
		}
		if c.incoming != nil && c.incoming.ID == u.ID {
			c.incoming = nil
		}
		c.active = s
		c.muted = s.Muted
		c.pendingDial = ""
		metrics.ActiveCalls.Set(1)
		c.status = c.deriveStatus()
		if streamID, ok := c.pendingMedia[u.ID]; ok {
			delete(c.pendingMedia, u.ID)
			c.sink.Attach(u.ID, streamID)
		}

	case u.State == rtc.StateRinging && u.Direction == rtc.DirectionInbound:
		c.incoming = newCallSession(u)
		c.status = c.deriveStatus()
		c.record(journal.EntryCallRinging, u.ID, u.Remote, "")

	case u.Direction == rtc.DirectionOutbound && (u.State == rtc.StateNew || u.State == rtc.StateRinging):
		// The backend-originated call surfacing; track it pre-answer so
		// hangup works while it is still dialing.
		s := newCallSession(u)
		if c.pendingBackendID != "" {
			s.BackendID = c.pendingBackendID
			c.pendingBackendID = ""
		}
		c.active = s
		c.pendingDial = ""
		c.status = c.deriveStatus()

	default:
		// held and anything unrecognized: relabel only, never clear records.
		if c.active != nil && c.active.ID == u.ID {
			c.active.State = u.State
		}
		c.status = c.deriveStatus()
	}
}

func (c *Controller) applyMedia(ev rtc.MediaEvent) {
	if _, ok := c.cleared[ev.CallID]; ok {
		return
	}
	if c.active != nil && c.active.ID == ev.CallID {
		c.sink.Attach(ev.CallID, ev.StreamID)
		return
	}
	// Stream arrived ahead of the active transition; attach on promotion.
	c.pendingMedia[ev.CallID] = ev.StreamID
}

// clearCalls drops both call records and resets call-scoped state. Safe to
// invoke when nothing is tracked. Callers hold mu.
func (c *Controller) clearCalls(reason string) {
	hadCall := c.active != nil || c.incoming != nil
	if c.active != nil {
		c.markCleared(c.active.ID)
		c.record(journal.EntryCallEnded, c.active.ID, c.active.Remote, reason)
	}
	if c.incoming != nil {
		c.markCleared(c.incoming.ID)
	}
	c.active = nil
	c.incoming = nil
	c.muted = false
	c.pendingDial = ""
	c.pendingBackendID = ""
	c.pendingMedia = make(map[string]string)
	c.sink.Detach()
	metrics.ActiveCalls.Set(0)
	if hadCall {
		metrics.CallsEnded.WithLabelValues(reason).Inc()
	}
	c.status = c.deriveStatus()
}

func (c *Controller) markCleared(id string) {
	now := time.Now()
	c.cleared[id] = now
	for k, t := range c.cleared {
		if now.Sub(t) > clearedTTL {
			delete(c.cleared, k)
		}
	}
}

func (c *Controller) deriveStatus() string {
	switch c.conn {
	case ConnectionConnecting:
		return "Connecting"
	case ConnectionDisconnected:
		return "Disconnected"
	case ConnectionError:
		if c.lastError != "" {
			return "Connection error: " + c.lastError
		}
		return "Connection error"
	}
	if c.active != nil {
		switch c.active.State {
		case rtc.StateActive:
			return "Connected"
		case rtc.StateHeld:
			return "On hold"
		case rtc.StateNew, rtc.StateRinging:
			return "Dialing " + c.active.Remote
		default:
			return "Call " + string(c.active.State)
		}
	}
	if c.incoming != nil {
		return "Incoming: " + c.incoming.Remote
	}
	if c.pendingDial != "" {
		return "Dialing " + c.pendingDial
	}
	return "Ready"
}

func (c *Controller) record(typ journal.EntryType, refID, remote, detail string) {
	if c.rec == nil {
		return
	}
	c.rec.Record(context.Background(), typ, refID, remote, detail)
}

func flattenICE(servers []backend.ICEServer) []string {
	var out []string
	for _, s := range servers {
		out = append(out, s.URLs...)
	}
	return out
}

func decodeTokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

/* ===================== CALL CONTROL ===================== */

// PlaceCall asks the backend to originate an outbound call. The call record
// itself arrives later as a vendor notification; either ordering of the
// backend response and that notification converges to one active call.
func (c *Controller) PlaceCall(ctx context.Context, dest string) error {
	dest = strings.TrimSpace(dest)

	c.mu.Lock()
	switch {
	case c.disposed:
		c.mu.Unlock()
		return ErrDisposed
	case dest == "":
		c.mu.Unlock()
		return ErrEmptyDestination
	case c.conn != ConnectionReady:
		c.mu.Unlock()
		return ErrNotReady
	case c.active != nil || c.incoming != nil || c.pendingDial != "":
		c.mu.Unlock()
		return ErrCallInProgress
	}
	c.pendingDial = dest
	c.status = c.deriveStatus()
	c.mu.Unlock()

	id, err := c.backend.OriginateCall(ctx, dest)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if err != nil {
		if c.pendingDial == dest {
			c.pendingDial = ""
			c.status = c.deriveStatus()
		}
		c.record(journal.EntryCallFailed, "", dest, "originate failed")
		return fmt.Errorf("place call: %w", err)
	}
	switch {
	case c.active != nil && c.active.BackendID == "":
		// Notification beat the response; reconcile ids.
		c.active.BackendID = id
	case c.pendingDial == dest:
		c.pendingBackendID = id
	default:
		// The call was dismissed before the response landed; drop the id.
		c.log.Debug("origination response for dismissed call", "backend_id", id)
	}
	c.record(journal.EntryCallPlaced, id, dest, "")
	return nil
}

// Answer accepts the incoming call. Media capture is acquired by the client;
// on failure the incoming record is kept and the status reflects the miss.
func (c *Controller) Answer(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.incoming == nil {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	inc := *c.incoming
	client := c.client
	c.mu.Unlock()

	err := client.Answer(ctx, inc.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if err != nil {
		if c.incoming != nil && c.incoming.ID == inc.ID {
			c.status = "Failed to answer"
		}
		return fmt.Errorf("answer: %w", err)
	}
	c.record(journal.EntryCallAnswered, inc.ID, inc.Remote, "")
	return nil
}

// Reject dismisses the incoming call immediately, without waiting for the
// vendor's terminal notification; when that notification arrives it is a
// no-op against the cleared id.
func (c *Controller) Reject(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.incoming == nil {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	inc := *c.incoming
	client := c.client
	c.markCleared(inc.ID)
	c.incoming = nil
	c.muted = false
	c.status = c.deriveStatus()
	metrics.CallsEnded.WithLabelValues("rejected").Inc()
	c.mu.Unlock()

	if client != nil {
		if err := client.Hangup(ctx, inc.ID); err != nil {
			c.log.Warn("reject hangup failed", "call_id", inc.ID, "err", err)
		}
	}
	c.record(journal.EntryCallRejected, inc.ID, inc.Remote, "")
	return nil
}

// Hangup ends the active call. Backend-originated calls hang up through the
// backend, falling back to the local client when that fails; local state is
// cleared regardless so the session can never stay stuck on a dead call.
func (c *Controller) Hangup(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	act := *c.active
	client := c.client
	c.mu.Unlock()

	if act.BackendID != "" {
		if err := c.backend.HangupCall(ctx, act.BackendID); err != nil {
			c.log.Warn("backend hangup failed, falling back to local", "backend_id", act.BackendID, "err", err)
			if client != nil {
				if lerr := client.Hangup(ctx, act.ID); lerr != nil {
					c.log.Warn("local hangup failed", "call_id", act.ID, "err", lerr)
				}
			}
		}
	} else if client != nil {
		if err := client.Hangup(ctx, act.ID); err != nil {
			c.log.Warn("local hangup failed", "call_id", act.ID, "err", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return ErrDisposed
	}
	if c.active != nil && c.active.ID == act.ID {
		c.clearCalls("local_hangup")
	}
	return nil
}

// SetMute toggles microphone mute on the active call. A vendor failure
// leaves the flag untouched.
func (c *Controller) SetMute(ctx context.Context, muted bool) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	callID := c.active.ID
	client := c.client
	c.mu.Unlock()

	if err := client.SetMute(ctx, callID, muted); err != nil {
		c.log.Warn("mute failed", "call_id", callID, "muted", muted, "err", err)
		return fmt.Errorf("mute: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.disposed && c.active != nil && c.active.ID == callID {
		c.active.Muted = muted
		c.muted = muted
	}
	return nil
}

// SendDTMF sends one touch-tone digit on the active call.
func (c *Controller) SendDTMF(ctx context.Context, digit string) error {
	if !validDigit(digit) {
		return ErrInvalidDigit
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.active == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	callID := c.active.ID
	client := c.client
	c.mu.Unlock()

	if err := client.SendDTMF(ctx, callID, digit); err != nil {
		c.log.Warn("dtmf failed", "call_id", callID, "digit", digit, "err", err)
		return fmt.Errorf("dtmf: %w", err)
	}
	return nil
}

func validDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	switch d[0] {
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '*', '#':
		return true
	default:
		return false
	}
}
