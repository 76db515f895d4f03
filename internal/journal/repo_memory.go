package journal

import (
	"context"
	"sync"
)

// MemoryRepo is a bounded in-memory repository, used in tests and when no
// Redis address is configured.
type MemoryRepo struct {
	mu      sync.Mutex
	max     int
	entries []Entry
}

func NewMemoryRepo(max int) *MemoryRepo {
	if max <= 0 {
		max = 500
	}
	return &MemoryRepo{max: max}
}

func (r *MemoryRepo) Append(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
	return nil
}

func (r *MemoryRepo) Recent(ctx context.Context, limit int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}
