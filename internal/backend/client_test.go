package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetchToken(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/telnyx/webrtc/token" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"login_token": "tok-123",
				"ice_servers": []map[string]any{{"urls": []string{"stun:stun.example.com"}}},
			},
		})
	})

	tok, err := c.FetchToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if tok.LoginToken != "tok-123" {
		t.Fatalf("unexpected token %q", tok.LoginToken)
	}
	if len(tok.ICEServers) != 1 || tok.ICEServers[0].URLs[0] != "stun:stun.example.com" {
		t.Fatalf("unexpected ice servers: %+v", tok.ICEServers)
	}
}

func TestFetchToken_MissingToken(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{}})
	})

	if _, err := c.FetchToken(context.Background()); err == nil {
		t.Fatalf("expected error for missing login_token")
	}
}

func TestEnvelope_ErrorStatusCarriesMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "invalid destination"})
	})

	_, err := c.OriginateCall(context.Background(), "+bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "invalid destination" {
		t.Fatalf("unexpected APIError: %+v", apiErr)
	}
}

func TestEnvelope_MissingDataIsFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "ok but empty"})
	})

	_, err := c.FaxList(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError for missing data, got %v", err)
	}
}

func TestOriginateCall(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["to"] != "+15556667777" {
			t.Errorf("unexpected body: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "call-9"}})
	})

	id, err := c.OriginateCall(context.Background(), "+15556667777")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != "call-9" {
		t.Fatalf("unexpected id %q", id)
	}
}

func TestHangupCall_PathEncoding(t *testing.T) {
	var gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"ok": true}})
	})

	if err := c.HangupCall(context.Background(), "call-9"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotPath != "/telnyx/calls/call-9/hangup" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestSendFax(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fax/send" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"faxId": "f-1"}})
	})

	id, err := c.SendFax(context.Background(), SendFaxRequest{To: "+15556667777", MediaURL: "https://x/d.pdf"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if id != "f-1" {
		t.Fatalf("unexpected fax id %q", id)
	}
}

func TestFaxStatus_ReturnsRawData(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fax/status/f-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "f-1", "status": "queued"}})
	})

	raw, err := c.FaxStatus(context.Background(), "f-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("raw data not JSON: %v", err)
	}
	if rec["status"] != "queued" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
