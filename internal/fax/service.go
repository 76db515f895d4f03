package fax

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"telnyx-agent/internal/backend"
	"telnyx-agent/internal/journal"
	"telnyx-agent/internal/metrics"
)

var (
	ErrRecipientRequired = errors.New("fax: recipient is required")
	ErrMediaURLRequired  = errors.New("fax: media url is required")
	ErrIDRequired        = errors.New("fax: fax id is required")
)

// Backend is the slice of the backend API the fax workflow needs.
type Backend interface {
	SendFax(ctx context.Context, req backend.SendFaxRequest) (string, error)
	FaxStatus(ctx context.Context, id string) (json.RawMessage, error)
	FaxList(ctx context.Context) (json.RawMessage, error)
}

// Recorder journals fax activity, best-effort.
type Recorder interface {
	Record(ctx context.Context, typ journal.EntryType, refID, remote, detail string)
}

// Service implements the fax workflow: send, status lookup, history list.
// Every operation is a fresh backend round trip; nothing is cached.
type Service struct {
	api Backend
	rec Recorder
	log *slog.Logger
}

func NewService(api Backend, rec Recorder, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{api: api, rec: rec, log: log.With("component", "fax")}
}

// Send submits a fax job and returns the backend fax id.
func (s *Service) Send(ctx context.Context, to, mediaURL, from string) (string, error) {
	to = strings.TrimSpace(to)
	mediaURL = strings.TrimSpace(mediaURL)
	if to == "" {
		return "", ErrRecipientRequired
	}
	if mediaURL == "" {
		return "", ErrMediaURLRequired
	}

	id, err := s.api.SendFax(ctx, backend.SendFaxRequest{To: to, MediaURL: mediaURL, From: from})
	if err != nil {
		metrics.FaxRequests.WithLabelValues("send", "error").Inc()
		s.recordEntry(journal.EntryFaxFailed, "", to, err.Error())
		return "", fmt.Errorf("fax send: %w", err)
	}
	metrics.FaxRequests.WithLabelValues("send", "ok").Inc()
	s.recordEntry(journal.EntryFaxSubmitted, id, to, "")
	return id, nil
}

// Status fetches and normalizes a single fax record.
func (s *Service) Status(ctx context.Context, id string) (Job, error) {
	if strings.TrimSpace(id) == "" {
		return Job{}, ErrIDRequired
	}
	raw, err := s.api.FaxStatus(ctx, id)
	if err != nil {
		metrics.FaxRequests.WithLabelValues("status", "error").Inc()
		return Job{}, fmt.Errorf("fax status: %w", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		metrics.FaxRequests.WithLabelValues("status", "error").Inc()
		return Job{}, fmt.Errorf("fax status: decode: %w", err)
	}
	metrics.FaxRequests.WithLabelValues("status", "ok").Inc()
	return Normalize(rec), nil
}

// List fetches the fax history, newest first as the backend returns it.
func (s *Service) List(ctx context.Context) ([]Job, error) {
	raw, err := s.api.FaxList(ctx)
	if err != nil {
		metrics.FaxRequests.WithLabelValues("list", "error").Inc()
		return nil, fmt.Errorf("fax list: %w", err)
	}

	// The list payload nests once more: {data: [...]}. Tolerate a bare
	// array as well; the backend has shipped both.
	var records []map[string]any
	var nested struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Data != nil {
		records = nested.Data
	} else {
		var bare []map[string]any
		if err := json.Unmarshal(raw, &bare); err != nil {
			metrics.FaxRequests.WithLabelValues("list", "error").Inc()
			return nil, fmt.Errorf("fax list: decode: %w", err)
		}
		records = bare
	}

	out := make([]Job, 0, len(records))
	for _, rec := range records {
		out = append(out, Normalize(rec))
	}
	metrics.FaxRequests.WithLabelValues("list", "ok").Inc()
	return out, nil
}

func (s *Service) recordEntry(typ journal.EntryType, refID, remote, detail string) {
	if s.rec == nil {
		return
	}
	s.rec.Record(context.Background(), typ, refID, remote, detail)
}
