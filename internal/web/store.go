package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/export"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// source is an uploaded spreadsheet and its row selection.
type source struct {
	id        string
	table     *sheet.Table
	warnings  []bol.Warning
	selection *export.Selection
	expiresAt time.Time
}

// sourceStore keeps uploaded spreadsheets for ttl after their last use.
type sourceStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*source
	now   func() time.Time
}

func newSourceStore(ttl time.Duration) *sourceStore {
	return &sourceStore{
		ttl:   ttl,
		items: make(map[string]*source),
		now:   time.Now,
	}
}

// put stores table under a new id with every row selected.
func (s *sourceStore) put(table *sheet.Table, warnings []bol.Warning) source {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpiredLocked(now)

	sel := export.NewSelection()
	sel.Bind(table.Source, table.Len())

	src := &source{
		id:        uuid.NewString(),
		table:     table,
		warnings:  warnings,
		selection: sel,
		expiresAt: now.Add(s.ttl),
	}
	s.items[src.id] = src
	return *src
}

// get returns a copy of the source and extends its lifetime. The table and
// selection are shared with the stored source.
func (s *sourceStore) get(id string) (source, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpiredLocked(now)

	src, ok := s.items[id]
	if !ok {
		return source{}, false
	}
	src.expiresAt = now.Add(s.ttl)
	return *src, true
}

func (s *sourceStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

func (s *sourceStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked(s.now())
	return len(s.items)
}

func (s *sourceStore) purgeExpiredLocked(now time.Time) {
	for k, v := range s.items {
		if now.After(v.expiresAt) {
			delete(s.items, k)
		}
	}
}
