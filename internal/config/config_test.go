package config

import (
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_RejectsNonWebsocketRTCURL(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "local", Port: 8080},
		Backend: BackendConfig{BaseURL: "http://localhost:3000"},
		RTC:     RTCConfig{ServerURL: "https://rtc.example.com", CallerNumber: "+15550001111"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for non-websocket RTC_SERVER_URL")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "local", Port: 8080},
		Backend: BackendConfig{BaseURL: "http://localhost:3000"},
		RTC:     RTCConfig{ServerURL: "wss://rtc.example.com", CallerNumber: "+15550001111"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Backend.RequestTimeout != 15*time.Second {
		t.Fatalf("expected default request timeout, got %v", c.Backend.RequestTimeout)
	}
	if c.Journal.MaxEntries != 500 {
		t.Fatalf("expected default journal cap, got %d", c.Journal.MaxEntries)
	}
	if c.JournalEnabled() {
		t.Fatalf("expected journal disabled without REDIS_ADDR")
	}
}

func TestValidate_RequiresAbsoluteBackendURL(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "dev", Port: 8080},
		Backend: BackendConfig{BaseURL: "localhost:3000"},
		RTC:     RTCConfig{ServerURL: "wss://rtc.example.com", CallerNumber: "+15550001111"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for relative BACKEND_BASE_URL")
	}
}
