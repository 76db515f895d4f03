package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient speaks the vendor's JSON-RPC dialect over a websocket. One read
// loop converts inbound traffic into Events; writes are serialized by wsMu.
type wsClient struct {
	cfg Config
	log *slog.Logger

	wsMu sync.Mutex
	conn *websocket.Conn

	events  chan Event
	nextID  atomic.Int64
	loginID int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewWebSocketClient is the production Factory.
func NewWebSocketClient(cfg Config) Client {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultICEServers
	}
	return &wsClient{
		cfg:    cfg,
		log:    log.With("component", "rtc"),
		events: make(chan Event, 32),
	}
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *wsClient) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("rtc: client closed")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.ServerURL, nil)
	if err != nil {
		return fmt.Errorf("rtc: dial %s: %w", c.cfg.ServerURL, err)
	}

	c.wsMu.Lock()
	c.conn = conn
	c.wsMu.Unlock()

	c.loginID = c.nextID.Add(1)
	login := map[string]any{
		"login_token": c.cfg.LoginToken,
		"ice_servers": c.cfg.ICEServers,
	}
	if err := c.send(c.loginID, "login", login); err != nil {
		_ = conn.Close()
		return fmt.Errorf("rtc: login: %w", err)
	}

	go c.readLoop()
	return nil
}

// Close tears the connection down. Safe to call multiple times and before
// Connect; the read loop closes the event channel on its way out.
func (c *wsClient) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.wsMu.Lock()
		conn := c.conn
		c.wsMu.Unlock()
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), closeDeadline())
			_ = conn.Close()
		} else {
			close(c.events)
		}
	})
	return nil
}

func (c *wsClient) Events() <-chan Event { return c.events }

func (c *wsClient) Answer(ctx context.Context, callID string) error {
	return c.request(ctx, "telnyx_rtc.answer", map[string]any{"callID": callID})
}

func (c *wsClient) Hangup(ctx context.Context, callID string) error {
	return c.request(ctx, "telnyx_rtc.bye", map[string]any{"callID": callID})
}

func (c *wsClient) SetMute(ctx context.Context, callID string, muted bool) error {
	action := "unmute"
	if muted {
		action = "mute"
	}
	return c.request(ctx, "telnyx_rtc.modify", map[string]any{"callID": callID, "action": action})
}

func (c *wsClient) SendDTMF(ctx context.Context, callID, digit string) error {
	return c.request(ctx, "telnyx_rtc.info", map[string]any{"callID": callID, "dtmf": digit})
}

func (c *wsClient) request(ctx context.Context, method string, params map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed.Load() {
		return errors.New("rtc: client closed")
	}
	return c.send(c.nextID.Add(1), method, params)
}

func (c *wsClient) send(id int64, method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	msg := wireMessage{JSONRPC: "2.0", ID: id, Method: method, Params: raw}

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.conn == nil {
		return errors.New("rtc: not connected")
	}
	if c.cfg.Debug {
		c.log.Debug("send", "method", method, "id", id)
	}
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) readLoop() {
	defer close(c.events)

	c.wsMu.Lock()
	conn := c.conn
	c.wsMu.Unlock()

	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if c.closed.Load() {
				c.emit(ClosedEvent{})
			} else {
				c.emit(ClosedEvent{Err: err})
			}
			return
		}
		c.handle(msg)
	}
}

func (c *wsClient) handle(msg wireMessage) {
	// Login response carries the session id; an error there is fatal for the
	// connection as far as the session layer is concerned.
	if msg.ID == c.loginID && msg.Method == "" {
		if msg.Error != nil {
			c.emit(ErrorEvent{Err: fmt.Errorf("rtc: login rejected: %s", msg.Error.Message)})
			return
		}
		var res struct {
			SessionID string `json:"sessid"`
		}
		_ = json.Unmarshal(msg.Result, &res)
		c.emit(ReadyEvent{SessionID: res.SessionID})
		return
	}

	switch msg.Method {
	case "telnyx_rtc.notification":
		var params struct {
			Type string         `json:"type"`
			Call map[string]any `json:"call"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.log.Warn("malformed notification", "err", err)
			return
		}
		if params.Type != "" && params.Type != "callUpdate" {
			c.log.Debug("ignoring notification", "type", params.Type)
			return
		}
		u, ok := NormalizeCallUpdate(params.Call)
		if !ok {
			c.log.Warn("call notification missing id or state")
			return
		}
		c.emit(CallUpdateEvent{Update: u})

	case "telnyx_rtc.media":
		var params struct {
			CallID   string `json:"callID"`
			StreamID string `json:"streamID"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil || params.CallID == "" {
			c.log.Warn("malformed media notification")
			return
		}
		c.emit(MediaEvent{CallID: params.CallID, StreamID: params.StreamID})

	case "":
		// Response to a fire-and-forget request; surface rejections in logs.
		if msg.Error != nil {
			c.log.Warn("request rejected", "id", msg.ID, "code", msg.Error.Code, "message", msg.Error.Message)
		}

	default:
		c.log.Debug("ignoring method", "method", msg.Method)
	}
}

func closeDeadline() time.Time { return time.Now().Add(time.Second) }

// emit never blocks the read loop; a stalled consumer drops events rather
// than wedging the socket.
func (c *wsClient) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event dropped", "event", fmt.Sprintf("%T", ev))
	}
}
