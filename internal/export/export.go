package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// ErrSourceMismatch is returned when a selection is bound to another source.
var ErrSourceMismatch = errors.New("selection belongs to a different source")

// utf8BOM lets spreadsheet tools detect the CSV encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Format is an export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (must be one of: csv, json)", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// Extension returns the file extension of the format, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// FileName returns the default download name for the format.
func (f Format) FileName() string {
	return "BOL_Selected" + f.Extension()
}

// WriteCSV writes a BOM, a header row of columns and one record per row.
func WriteCSV(w io.Writer, columns []string, rows []sheet.Row) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row.Get(col)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	return nil
}

// WriteJSON writes rows as an indented array of ordered objects. Non-ASCII
// text and HTML characters are written literally.
func WriteJSON(w io.Writer, rows []sheet.Row) error {
	if rows == nil {
		rows = []sheet.Row{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	if _, err := w.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

// Export writes the selected rows of table in the given format. An empty
// selection yields a header-only CSV or an empty JSON array.
func Export(w io.Writer, format Format, table *sheet.Table, sel *Selection) error {
	if src := sel.Source(); src != table.Source {
		return fmt.Errorf("%w: bound to %s, table is %s", ErrSourceMismatch, src.Short(), table.Source.Short())
	}

	rows := sel.Selected(table.Rows)
	switch format {
	case FormatCSV:
		return WriteCSV(w, table.Columns, rows)
	case FormatJSON:
		return WriteJSON(w, rows)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
