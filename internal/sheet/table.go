package sheet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SourceID identifies one loaded input source by content.
type SourceID string

// IdentifySource returns the identity of the given source bytes.
func IdentifySource(data []byte) SourceID {
	sum := sha256.Sum256(data)
	return SourceID(hex.EncodeToString(sum[:]))
}

// Short returns an abbreviated identity for logs.
func (id SourceID) Short() string {
	if len(id) > 12 {
		return string(id[:12])
	}
	return string(id)
}

// Table is a parsed spreadsheet.
type Table struct {
	Name    string   // file name the table was loaded from
	Sheet   string   // worksheet used, empty for CSV
	Source  SourceID // identity of the source bytes
	Columns []string
	Rows    []Row
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// MissingColumns returns the expected columns that the table lacks, in the
// order they were asked for.
func (t *Table) MissingColumns(expected []string) []string {
	var missing []string
	for _, name := range expected {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// newTable turns a header record and data records into a Table.
func newTable(header []string, records [][]string) *Table {
	columns := normalizeHeader(header)

	// Drop trailing records with no content at all.
	end := len(records)
	for end > 0 && isBlank(records[end-1]) {
		end--
	}

	rows := make([]Row, 0, end)
	for _, rec := range records[:end] {
		values := make([]string, len(columns))
		for i := range columns {
			if i < len(rec) {
				values[i] = rec[i]
			}
		}
		rows = append(rows, NewRow(columns, values))
	}

	return &Table{Columns: columns, Rows: rows}
}

// normalizeHeader NFC-normalises and trims names, names blank columns and
// disambiguates duplicates with numeric suffixes. Cell values are kept as read.
func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	used := make(map[string]bool, len(header))
	next := make(map[string]int)

	for i, h := range header {
		name := strings.TrimSpace(norm.NFC.String(h))
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[name] {
			base := name
			n := max(next[base], 1)
			for used[fmt.Sprintf("%s.%d", base, n)] {
				n++
			}
			name = fmt.Sprintf("%s.%d", base, n)
			next[base] = n + 1
		}
		used[name] = true
		columns[i] = name
	}
	return columns
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
