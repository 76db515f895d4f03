package journal

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppend_RequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo(10), testLogger())
	if err := svc.Append(context.Background(), Entry{RefID: "c1"}); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	repo := NewMemoryRepo(10)
	svc := NewService(repo, testLogger())

	if err := svc.Append(context.Background(), Entry{Type: EntryCallEnded, RefID: "c1"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	entries, err := repo.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled: %+v", entries[0])
	}
}

func TestMemoryRepo_BoundAndOrder(t *testing.T) {
	repo := NewMemoryRepo(3)
	svc := NewService(repo, testLogger())

	for _, ref := range []string{"a", "b", "c", "d"} {
		svc.Record(context.Background(), EntryCallPlaced, ref, "", "")
	}

	entries, err := svc.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(entries))
	}
	// Newest first.
	if entries[0].RefID != "d" || entries[2].RefID != "b" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestRecord_SwallowsRepoFailure(t *testing.T) {
	svc := NewService(nil, testLogger())
	// Must not panic; recording is best-effort.
	svc.Record(context.Background(), EntryFaxSubmitted, "f1", "+15556667777", "")
}
