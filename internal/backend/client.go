package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telnyx-agent/internal/metrics"
)

// Client talks to the backend API. It owns envelope decoding and error
// normalization; callers see typed payloads or *APIError.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// FetchToken requests a short-lived realtime login token.
func (c *Client) FetchToken(ctx context.Context) (TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/telnyx/webrtc/token", "token", struct{}{}, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.LoginToken == "" {
		return TokenResponse{}, errors.New("backend: token response missing login_token")
	}
	return out, nil
}

// OriginateCall asks the backend to place an outbound call. The call itself
// surfaces to this client later via a realtime notification.
func (c *Client) OriginateCall(ctx context.Context, to string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]string{"to": to}
	if err := c.do(ctx, http.MethodPost, "/telnyx/calls/outbound", "call_outbound", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("backend: outbound call response missing id")
	}
	return out.ID, nil
}

// HangupCall terminates a backend-originated call by its backend id.
func (c *Client) HangupCall(ctx context.Context, id string) error {
	path := fmt.Sprintf("/telnyx/calls/%s/hangup", url.PathEscape(id))
	var discard json.RawMessage
	return c.do(ctx, http.MethodPost, path, "call_hangup", struct{}{}, &discard)
}

// SendFax submits a fax job and returns the backend fax id.
func (c *Client) SendFax(ctx context.Context, req SendFaxRequest) (string, error) {
	var out struct {
		FaxID string `json:"faxId"`
	}
	if err := c.do(ctx, http.MethodPost, "/fax/send", "fax_send", req, &out); err != nil {
		return "", err
	}
	if out.FaxID == "" {
		return "", errors.New("backend: fax send response missing faxId")
	}
	return out.FaxID, nil
}

// FaxStatus fetches a single fax record. The payload is returned raw; field
// normalization belongs to the fax package.
func (c *Client) FaxStatus(ctx context.Context, id string) (json.RawMessage, error) {
	path := fmt.Sprintf("/fax/status/%s", url.PathEscape(id))
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, "fax_status", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FaxList fetches the fax history. The payload is returned raw.
func (c *Client) FaxList(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/fax/list", "fax_list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("backend: read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		// A malformed body on an error status should not mask the status.
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
		return &APIError{Status: resp.StatusCode, Message: "response missing data"}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
			return fmt.Errorf("backend: decode %s response: %w", endpoint, err)
		}
	}
	metrics.BackendRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}
