package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the agent process.
// All values must come from env (or a .env file loaded at startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	Backend BackendConfig
	RTC     RTCConfig
	Redis   RedisConfig
	Journal JournalConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type BackendConfig struct {
	// BaseURL is the backend API root, e.g. https://api.example.com
	BaseURL string

	// RequestTimeout bounds every backend HTTP request.
	RequestTimeout time.Duration
}

type RTCConfig struct {
	// ServerURL is the realtime signaling endpoint (wss://...).
	ServerURL string

	// CallerNumber is the default outbound caller id (E.164).
	CallerNumber string

	Debug bool
}

type RedisConfig struct {
	// Addr is optional; the event journal is disabled when empty.
	Addr string
}

type JournalConfig struct {
	// MaxEntries bounds the retained journal; older entries are trimmed.
	MaxEntries int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Backend.BaseURL = strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))
	c.Backend.RequestTimeout = optDuration("BACKEND_TIMEOUT")

	c.RTC.ServerURL = strings.TrimSpace(os.Getenv("RTC_SERVER_URL"))
	c.RTC.CallerNumber = strings.TrimSpace(os.Getenv("DEFAULT_CALLER_NUMBER"))
	c.RTC.Debug = optBool("RTC_DEBUG")

	c.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.Journal.MaxEntries = optInt("JOURNAL_MAX_ENTRIES")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("BACKEND_BASE_URL is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", c.Backend.BaseURL))
	}
	if c.Backend.RequestTimeout <= 0 {
		// The observed client set no timeout and could sit in "connecting"
		// forever; a daemon cannot rely on a reload, so bound every request.
		c.Backend.RequestTimeout = 15 * time.Second
	}

	if c.RTC.ServerURL == "" {
		errs = append(errs, errors.New("RTC_SERVER_URL is required"))
	} else if !strings.HasPrefix(c.RTC.ServerURL, "ws://") && !strings.HasPrefix(c.RTC.ServerURL, "wss://") {
		errs = append(errs, fmt.Errorf("RTC_SERVER_URL must be a ws:// or wss:// URL, got %q", c.RTC.ServerURL))
	}
	if c.RTC.CallerNumber == "" {
		errs = append(errs, errors.New("DEFAULT_CALLER_NUMBER is required"))
	}

	if c.Journal.MaxEntries <= 0 {
		c.Journal.MaxEntries = 500
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// JournalEnabled reports whether the Redis-backed journal should be wired.
func (c Config) JournalEnabled() bool {
	return c.Redis.Addr != ""
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
