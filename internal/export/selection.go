// Package export filters rows by a per-source selection and writes them as
// CSV or JSON.
package export

import (
	"errors"
	"fmt"
	"sync"

	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// ErrRowOutOfRange is returned for a row index outside the bound source.
var ErrRowOutOfRange = errors.New("row index out of range")

// Selection holds the "use" flag of every row of one loaded source. Binding
// a different source discards the previous flags. It is safe for concurrent use.
type Selection struct {
	mu     sync.Mutex
	source sheet.SourceID
	flags  []bool
}

// NewSelection returns an unbound selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Bind attaches the selection to a source of n rows. When the source or the
// row count differs from the current binding, every flag is reset to true and
// Bind reports true.
func (s *Selection) Bind(id sheet.SourceID, n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flags != nil && s.source == id && len(s.flags) == n {
		return false
	}
	s.source = id
	s.flags = allTrue(n)
	return true
}

// Source returns the bound source, or "" when unbound.
func (s *Selection) Source() sheet.SourceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Reset selects every row of the bound source again.
func (s *Selection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = allTrue(len(s.flags))
}

// Set changes the flag of the 0-based row i.
func (s *Selection) Set(i int, use bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.flags) {
		return fmt.Errorf("%w: %d (source has %d rows)", ErrRowOutOfRange, i, len(s.flags))
	}
	s.flags[i] = use
	return nil
}

// SetAll changes every flag.
func (s *Selection) SetAll(use bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.flags {
		s.flags[i] = use
	}
}

// Flags returns a copy of the flags.
func (s *Selection) Flags() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool{}, s.flags...)
}

// Count returns the number of selected rows.
func (s *Selection) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.flags {
		if f {
			n++
		}
	}
	return n
}

// Selected returns the rows whose flag is true, in their original order.
func (s *Selection) Selected(rows []sheet.Row) []sheet.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]sheet.Row, 0, len(rows))
	for i, row := range rows {
		if i < len(s.flags) && s.flags[i] {
			out = append(out, row)
		}
	}
	return out
}

func allTrue(n int) []bool {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = true
	}
	return flags
}
