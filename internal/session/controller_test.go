package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"telnyx-agent/internal/backend"
	"telnyx-agent/internal/rtc"
)

type fakeClient struct {
	events chan rtc.Event

	mu        sync.Mutex
	answered  []string
	hungup    []string
	answerErr error
	muteErr   error

	closeOnce sync.Once
}

func (f *fakeClient) Connect(ctx context.Context) error { return nil }

func (f *fakeClient) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeClient) Events() <-chan rtc.Event { return f.events }

func (f *fakeClient) Answer(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answerErr != nil {
		return f.answerErr
	}
	f.answered = append(f.answered, callID)
	return nil
}

func (f *fakeClient) Hangup(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hungup = append(f.hungup, callID)
	return nil
}

func (f *fakeClient) SetMute(ctx context.Context, callID string, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muteErr
}

func (f *fakeClient) SendDTMF(ctx context.Context, callID, digit string) error { return nil }

func (f *fakeClient) push(ev rtc.Event) { f.events <- ev }

func (f *fakeClient) hungupCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.hungup))
	copy(out, f.hungup)
	return out
}

type fakeBackend struct {
	mu sync.Mutex

	token      backend.TokenResponse
	tokenErr   error
	tokenGate  chan struct{}
	tokenCalls int

	originateID  string
	originateErr error
	originated   []string
	// originateGate, when set, blocks OriginateCall until closed so tests can
	// interleave the vendor notification with the backend response.
	originateGate chan struct{}

	hangupErr error
	hangups   []string
}

func (f *fakeBackend) FetchToken(ctx context.Context) (backend.TokenResponse, error) {
	f.mu.Lock()
	f.tokenCalls++
	gate := f.tokenGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.token, f.tokenErr
}

func (f *fakeBackend) OriginateCall(ctx context.Context, to string) (string, error) {
	f.mu.Lock()
	gate := f.originateGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.originateErr != nil {
		return "", f.originateErr
	}
	f.originated = append(f.originated, to)
	return f.originateID, nil
}

func (f *fakeBackend) HangupCall(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, id)
	return f.hangupErr
}

func (f *fakeBackend) originatedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.originated))
	copy(out, f.originated)
	return out
}

type fakeSink struct {
	mu       sync.Mutex
	attached []string
	detached int
}

func (s *fakeSink) Attach(callID, streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = append(s.attached, callID+"/"+streamID)
}

func (s *fakeSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached++
}

func (s *fakeSink) attachments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.attached))
	copy(out, s.attached)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T) (*Controller, *fakeClient, *fakeBackend, *fakeSink) {
	t.Helper()
	fc := &fakeClient{events: make(chan rtc.Event, 16)}
	fb := &fakeBackend{
		token:       backend.TokenResponse{LoginToken: "tok"},
		originateID: "backend-1",
	}
	sink := &fakeSink{}
	ctrl := NewController(
		Config{RTCServerURL: "ws://test", CallerNumber: "+15550000000"},
		fb,
		func(rtc.Config) rtc.Client { return fc },
		sink,
		nil,
		discardLogger(),
	)
	t.Cleanup(ctrl.Close)
	return ctrl, fc, fb, sink
}

func startReady(t *testing.T, ctrl *Controller, fc *fakeClient) {
	t.Helper()
	ctrl.Start(context.Background())
	fc.push(rtc.ReadyEvent{SessionID: "sess"})
	waitFor(t, "connection ready", func() bool {
		return ctrl.Snapshot().Connection == ConnectionReady
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func inboundRinging(id, caller string) rtc.CallUpdateEvent {
	return rtc.CallUpdateEvent{Update: rtc.CallUpdate{
		ID:        id,
		State:     rtc.StateRinging,
		Direction: rtc.DirectionInbound,
		Remote:    caller,
		Local:     "+15550000000",
	}}
}

func callState(id string, state rtc.CallState, dir rtc.Direction) rtc.CallUpdateEvent {
	return rtc.CallUpdateEvent{Update: rtc.CallUpdate{
		ID:        id,
		State:     state,
		Direction: dir,
		Remote:    "+15556667777",
	}}
}

func TestTerminalStateClearsEverything(t *testing.T) {
	ctrl, fc, _, _ := newTestController(t)
	startReady(t, ctrl, fc)

	fc.push(inboundRinging("c1", "+15551112222"))
	waitFor(t, "incoming call", func() bool { return ctrl.Snapshot().Incoming != nil })

	if got := ctrl.Snapshot().Status; got != "Incoming: +15551112222" {
		t.Fatalf("unexpected status %q", got)
	}

	fc.push(callState("c1", rtc.StateActive, rtc.DirectionInbound))
	waitFor(t, "active call", func() bool { return ctrl.Snapshot().Active != nil })

	if err := ctrl.SetMute(context.Background(), true); err != nil {
		t.Fatalf("mute: %v", err)
	}
	if !ctrl.Snapshot().Muted {
		t.Fatalf("expected muted")
	}

	fc.push(callState("c1", rtc.StateHangup, rtc.DirectionInbound))
	waitFor(t, "cleared", func() bool { return ctrl.Snapshot().Active == nil })

	snap := ctrl.Snapshot()
	if snap.Incoming != nil {
		t.Fatalf("expected incoming cleared")
	}
	if snap.Muted {
		t.Fatalf("expected mute reset")
	}
	if snap.Status != "Ready" {
		t.Fatalf("expected status Ready, got %q", snap.Status)
	}

	// Repeated terminal notification must be a harmless no-op.
	fc.push(callState("c1", rtc.StateDestroy, rtc.DirectionInbound))
	time.Sleep(20 * time.Millisecond)
	if got := ctrl.Snapshot().Status; got != "Ready" {
		t.Fatalf("expected Ready after duplicate terminal, got %q", got)
	}
}

func TestRejectIgnoresLateNotifications(t *testing.T) {
	ctrl, fc, _, _ := newTestController(t)
	startReady(t, ctrl, fc)

	fc.push(inboundRinging("c2", "+15553334444"))
	waitFor(t, "incoming call", func() bool { return ctrl.Snapshot().Incoming != nil })

	if err := ctrl.Reject(context.Background()); err != nil {
		t.Fatalf("reject: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Incoming != nil || snap.Active != nil {
		t.Fatalf("expected records cleared after reject")
	}
	if snap.Status != "Ready" {
		t.Fatalf("expected Ready, got %q", snap.Status)
	}
	if got := fc.hungupCalls(); len(got) != 1 || got[0] != "c2" {
		t.Fatalf("expected local hangup of c2, got %v", got)
	}

	// Late notifications for the dismissed call must not resurrect it.
	fc.push(inboundRinging("c2", "+15553334444"))
	fc.push(callState("c2", rtc.StateActive, rtc.DirectionInbound))
	time.Sleep(20 * time.Millisecond)

	snap = ctrl.Snapshot()
	if snap.Incoming != nil || snap.Active != nil {
		t.Fatalf("late notification resurrected a cleared call")
	}
}

func TestHangupFallsBackAndAlwaysClears(t *testing.T) {
	ctrl, fc, fb, _ := newTestController(t)
	startReady(t, ctrl, fc)

	if err := ctrl.PlaceCall(context.Background(), "+15556667777"); err != nil {
		t.Fatalf("place call: %v", err)
	}
	fc.push(callState("c3", rtc.StateActive, rtc.DirectionOutbound))
	waitFor(t, "active call", func() bool { return ctrl.Snapshot().Active != nil })

	if got := ctrl.Snapshot().Active.BackendID; got != "backend-1" {
		t.Fatalf("expected backend id attached, got %q", got)
	}

	fb.mu.Lock()
	fb.hangupErr = errors.New("gateway timeout")
	fb.mu.Unlock()

	if err := ctrl.Hangup(context.Background()); err != nil {
		t.Fatalf("hangup: %v", err)
	}

	snap := ctrl.Snapshot()
	if snap.Active != nil {
		t.Fatalf("expected active cleared despite backend failure")
	}
	if snap.Status != "Ready" {
		t.Fatalf("expected Ready, got %q", snap.Status)
	}
	if got := fc.hungupCalls(); len(got) != 1 || got[0] != "c3" {
		t.Fatalf("expected local fallback hangup of c3, got %v", got)
	}
}

func TestPlaceCallRequiresReadyConnection(t *testing.T) {
	ctrl, _, fb, _ := newTestController(t)
	// Not started: connection is still "connecting".

	err := ctrl.PlaceCall(context.Background(), "+15556667777")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if got := fb.originatedCalls(); len(got) != 0 {
		t.Fatalf("expected no origination request, got %v", got)
	}
}

func TestPlaceCallIssuesExactlyOneRequest(t *testing.T) {
	ctrl, fc, fb, _ := newTestController(t)
	startReady(t, ctrl, fc)

	if err := ctrl.PlaceCall(context.Background(), "+15556667777"); err != nil {
		t.Fatalf("place call: %v", err)
	}
	if got := fb.originatedCalls(); len(got) != 1 || got[0] != "+15556667777" {
		t.Fatalf("expected one origination to +15556667777, got %v", got)
	}
	if got := ctrl.Snapshot().Status; got != "Dialing +15556667777" {
		t.Fatalf("expected dialing status, got %q", got)
	}

	if err := ctrl.PlaceCall(context.Background(), "+15558889999"); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("expected ErrCallInProgress, got %v", err)
	}
	if got := fb.originatedCalls(); len(got) != 1 {
		t.Fatalf("expected still one origination, got %v", got)
	}
}

func TestPlaceCallEmptyDestination(t *testing.T) {
	ctrl, fc, fb, _ := newTestController(t)
	startReady(t, ctrl, fc)

	if err := ctrl.PlaceCall(context.Background(), "  "); !errors.Is(err, ErrEmptyDestination) {
		t.Fatalf("expected ErrEmptyDestination, got %v", err)
	}
	if got := fb.originatedCalls(); len(got) != 0 {
		t.Fatalf("expected no origination, got %v", got)
	}
}

func TestNotificationBeforeOriginationResponse(t *testing.T) {
	ctrl, fc, fb, _ := newTestController(t)
	startReady(t, ctrl, fc)

	gate := make(chan struct{})
	fb.mu.Lock()
	fb.originateGate = gate
	fb.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.PlaceCall(context.Background(), "+15556667777") }()

	waitFor(t, "dialing status", func() bool {
		return ctrl.Snapshot().Status == "Dialing +15556667777"
	})

	// Vendor notification lands while the backend response is in flight.
	fc.push(callState("c4", rtc.StateNew, rtc.DirectionOutbound))
	waitFor(t, "tracked outbound call", func() bool { return ctrl.Snapshot().Active != nil })

	close(gate)
	if err := <-errCh; err != nil {
		t.Fatalf("place call: %v", err)
	}

	waitFor(t, "backend id reconciled", func() bool {
		snap := ctrl.Snapshot()
		return snap.Active != nil && snap.Active.BackendID == "backend-1"
	})
}

func TestCloseDuringTokenFetchSuppressesUpdates(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{
		token:     backend.TokenResponse{LoginToken: "tok"},
		tokenGate: gate,
	}
	factoryCalled := false
	ctrl := NewController(
		Config{RTCServerURL: "ws://test", CallerNumber: "+15550000000"},
		fb,
		func(rtc.Config) rtc.Client {
			factoryCalled = true
			return &fakeClient{events: make(chan rtc.Event)}
		},
		&fakeSink{},
		nil,
		discardLogger(),
	)

	ctrl.Start(context.Background())
	waitFor(t, "token fetch started", func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.tokenCalls == 1
	})

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(gate)
	}()
	ctrl.Close()

	snap := ctrl.Snapshot()
	if snap.Connection != ConnectionConnecting {
		t.Fatalf("state mutated after close: %v", snap.Connection)
	}
	if factoryCalled {
		t.Fatalf("client constructed after close")
	}
}

func TestAnswerFailureKeepsIncoming(t *testing.T) {
	ctrl, fc, _, _ := newTestController(t)
	startReady(t, ctrl, fc)

	fc.mu.Lock()
	fc.answerErr = errors.New("capture permission denied")
	fc.mu.Unlock()

	fc.push(inboundRinging("c5", "+15557778888"))
	waitFor(t, "incoming call", func() bool { return ctrl.Snapshot().Incoming != nil })

	if err := ctrl.Answer(context.Background()); err == nil {
		t.Fatalf("expected answer error")
	}

	snap := ctrl.Snapshot()
	if snap.Incoming == nil {
		t.Fatalf("expected incoming retained after failed answer")
	}
	if snap.Status != "Failed to answer" {
		t.Fatalf("expected failure status, got %q", snap.Status)
	}
}

func TestMediaAttachToleratesEitherOrder(t *testing.T) {
	ctrl, fc, _, sink := newTestController(t)
	startReady(t, ctrl, fc)

	// Stream first, then the active transition.
	fc.push(rtc.MediaEvent{CallID: "c6", StreamID: "s1"})
	fc.push(inboundRinging("c6", "+15551230000"))
	fc.push(callState("c6", rtc.StateActive, rtc.DirectionInbound))
	waitFor(t, "media attached", func() bool { return len(sink.attachments()) == 1 })

	if got := sink.attachments()[0]; got != "c6/s1" {
		t.Fatalf("unexpected attachment %q", got)
	}

	// Active already set; a later stream attaches immediately.
	fc.push(rtc.MediaEvent{CallID: "c6", StreamID: "s2"})
	waitFor(t, "reattached", func() bool { return len(sink.attachments()) == 2 })
}

func TestMuteFailureLeavesFlagUntouched(t *testing.T) {
	ctrl, fc, _, _ := newTestController(t)
	startReady(t, ctrl, fc)

	fc.push(inboundRinging("c7", "+15554443333"))
	fc.push(callState("c7", rtc.StateActive, rtc.DirectionInbound))
	waitFor(t, "active call", func() bool { return ctrl.Snapshot().Active != nil })

	fc.mu.Lock()
	fc.muteErr = errors.New("modify rejected")
	fc.mu.Unlock()

	if err := ctrl.SetMute(context.Background(), true); err == nil {
		t.Fatalf("expected mute error")
	}
	if ctrl.Snapshot().Muted {
		t.Fatalf("expected mute flag unchanged after failure")
	}
}

func TestHeldStateRelabelsOnly(t *testing.T) {
	ctrl, fc, _, _ := newTestController(t)
	startReady(t, ctrl, fc)

	fc.push(inboundRinging("c8", "+15559990000"))
	fc.push(callState("c8", rtc.StateActive, rtc.DirectionInbound))
	waitFor(t, "active call", func() bool { return ctrl.Snapshot().Active != nil })

	fc.push(callState("c8", rtc.StateHeld, rtc.DirectionInbound))
	waitFor(t, "held status", func() bool { return ctrl.Snapshot().Status == "On hold" })

	if ctrl.Snapshot().Active == nil {
		t.Fatalf("held must not clear the active record")
	}
}

func TestTokenFailureSetsErrorState(t *testing.T) {
	fb := &fakeBackend{tokenErr: errors.New("boom")}
	factoryCalled := false
	ctrl := NewController(
		Config{RTCServerURL: "ws://test", CallerNumber: "+15550000000"},
		fb,
		func(rtc.Config) rtc.Client {
			factoryCalled = true
			return &fakeClient{events: make(chan rtc.Event)}
		},
		&fakeSink{},
		nil,
		discardLogger(),
	)

	ctrl.Start(context.Background())
	waitFor(t, "error state", func() bool {
		return ctrl.Snapshot().Connection == ConnectionError
	})
	ctrl.Close()

	if factoryCalled {
		t.Fatalf("client must not be constructed after a token failure")
	}
	if got := ctrl.Snapshot().Status; got != "Connection error: token request failed" {
		t.Fatalf("unexpected status %q", got)
	}
}

func TestDTMFRequiresActiveCall(t *testing.T) {
	ctrl, fc, _, _ := newTestController(t)
	startReady(t, ctrl, fc)

	if err := ctrl.SendDTMF(context.Background(), "5"); !errors.Is(err, ErrNoActiveCall) {
		t.Fatalf("expected ErrNoActiveCall, got %v", err)
	}
	if err := ctrl.SendDTMF(context.Background(), "55"); !errors.Is(err, ErrInvalidDigit) {
		t.Fatalf("expected ErrInvalidDigit, got %v", err)
	}
}
