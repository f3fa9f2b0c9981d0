package journal

import (
	"context"
	"sort"
	"sync"
	"time"

	"pda-client-sol/internal/pkg/types"
)

// MemoryJournal 未配置 Redis 时使用，进程退出即丢失
type MemoryJournal struct {
	mu      sync.Mutex
	entries map[types.Signature]Entry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{entries: make(map[types.Signature]Entry)}
}

func (m *MemoryJournal) Record(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	if prev, ok := m.entries[e.Signature]; ok {
		e = merge(&prev, e)
	} else {
		e = merge(nil, e)
	}
	m.entries[e.Signature] = e
	return nil
}

func (m *MemoryJournal) Get(_ context.Context, sig types.Signature) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sig]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryJournal) Pending(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries {
		if !e.Status.Resolved() {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})
}
