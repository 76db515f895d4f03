package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies journal entries.
type EntryType string

const (
	EntryCallRinging  EntryType = "call.ringing"
	EntryCallPlaced   EntryType = "call.placed"
	EntryCallAnswered EntryType = "call.answered"
	EntryCallRejected EntryType = "call.rejected"
	EntryCallEnded    EntryType = "call.ended"
	EntryCallFailed   EntryType = "call.failed"
	EntryFaxSubmitted EntryType = "fax.submitted"
	EntryFaxFailed    EntryType = "fax.failed"
)

// Entry is one journaled occurrence. Entries are append-only.
type Entry struct {
	ID   string    `json:"id"`
	Type EntryType `json:"type"`

	// RefID is the call or fax identifier the entry refers to.
	RefID  string `json:"ref_id,omitempty"`
	Remote string `json:"remote,omitempty"`
	Detail string `json:"detail,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Repository is the persistence contract for the journal.
// It MUST be append-only; no update or delete methods are provided.
type Repository interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

var ErrInvalidEntry = errors.New("journal: invalid entry")

// Service records call and fax activity. Recording is best-effort: a journal
// failure must never affect call or fax flow.
type Service struct {
	repo  Repository
	clock func() time.Time
	log   *slog.Logger
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, clock: time.Now, log: log.With("component", "journal")}
}

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("journal: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEntry
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an entry and swallows failures after logging them.
func (s *Service) Record(ctx context.Context, typ EntryType, refID, remote, detail string) {
	err := s.Append(ctx, Entry{Type: typ, RefID: refID, Remote: remote, Detail: detail})
	if err != nil {
		s.log.Warn("journal append failed", "type", typ, "err", err)
	}
}

// Recent returns up to limit entries, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, errors.New("journal: repository not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Recent(ctx, limit)
}
