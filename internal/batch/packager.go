// Package batch fills a template once per row and bundles the results into a
// ZIP archive.
package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a3tai/mcp-bol-filler/internal/naming"
	"github.com/a3tai/mcp-bol-filler/internal/pdf"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// Options configures a Packager.
type Options struct {
	// Workers bounds concurrent fills. Values below 1 mean 1.
	Workers int
	// Policy names archive members. Empty means naming.PolicyDerived.
	Policy naming.Policy
}

// Entry describes one archive member.
type Entry struct {
	Index       int              `json:"index"`
	Name        string           `json:"name"`
	Size        int              `json:"size"`
	Applied     int              `json:"applied"`
	FieldErrors []pdf.FieldError `json:"field_errors,omitempty"`
}

// Result is a finished archive.
type Result struct {
	Data       []byte   `json:"-"`
	Entries    []Entry  `json:"entries"`
	Duplicates []string `json:"duplicates,omitempty"`
}

// FieldErrorCount returns the number of field errors over all entries.
func (r *Result) FieldErrorCount() int {
	n := 0
	for _, e := range r.Entries {
		n += len(e.FieldErrors)
	}
	return n
}

// RowError is a fatal fill failure for one row. It aborts the batch.
type RowError struct {
	Index int
	Name  string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Packager produces one filled document per row and zips them in row order.
type Packager struct {
	filler  *pdf.Filler
	workers int
	policy  naming.Policy
	logger  *slog.Logger
	now     func() time.Time
}

// NewPackager creates a packager. A nil logger uses slog.Default.
func NewPackager(filler *pdf.Filler, opts Options, logger *slog.Logger) *Packager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Policy == "" {
		opts.Policy = naming.PolicyDerived
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{
		filler:  filler,
		workers: opts.Workers,
		policy:  opts.Policy,
		logger:  logger,
		now:     time.Now,
	}
}

// Names returns the archive member name of every row.
func (p *Packager) Names(rows []sheet.Row) []string {
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = p.policy.Name(row, i)
	}
	return names
}

// Package fills tpl for every row and returns the archive. The first fatal
// fill error aborts the batch and no archive is returned.
func (p *Packager) Package(ctx context.Context, tpl *pdf.Template, rows []sheet.Row) (*Result, error) {
	names := p.Names(rows)
	filled := make([]*pdf.FillResult, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := p.filler.Fill(tpl, rows[i], i)
			if err != nil {
				return &RowError{Index: i, Name: names[i], Err: err}
			}
			filled[i] = res
			p.logger.Debug("row filled",
				"row", i+1,
				"name", names[i],
				"applied", res.Applied,
				"skipped", res.Skipped,
				"field_errors", len(res.FieldErrors))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Entries:    make([]Entry, len(rows)),
		Duplicates: Duplicates(names),
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := p.now()

	for i, res := range filled {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names[i],
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", names[i], err)
		}
		if _, err := w.Write(res.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", names[i], err)
		}

		result.Entries[i] = Entry{
			Index:       i,
			Name:        names[i],
			Size:        len(res.Data),
			Applied:     res.Applied,
			FieldErrors: res.FieldErrors,
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	result.Data = buf.Bytes()

	if len(result.Duplicates) > 0 {
		p.logger.Warn("archive contains duplicate member names", "names", result.Duplicates)
	}

	return result, nil
}

// Duplicates returns every name that occurs more than once, in order of
// first occurrence.
func Duplicates(names []string) []string {
	counts := make(map[string]int, len(names))
	for _, n := range names {
		counts[n]++
	}

	var dups []string
	for _, n := range names {
		if counts[n] > 1 {
			dups = append(dups, n)
			counts[n] = 0
		}
	}
	return dups
}
