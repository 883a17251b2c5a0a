// Package bol generates Bill of Lading documents: it loads a fillable
// template and a spreadsheet, fills the template once per row, packages the
// results and exports row selections.
package bol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/a3tai/mcp-bol-filler/internal/batch"
	"github.com/a3tai/mcp-bol-filler/internal/export"
	"github.com/a3tai/mcp-bol-filler/internal/naming"
	"github.com/a3tai/mcp-bol-filler/internal/pdf"
	"github.com/a3tai/mcp-bol-filler/internal/pdf/form"
	"github.com/a3tai/mcp-bol-filler/internal/security"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// DefaultArchiveName is the conventional name of the generated archive.
const DefaultArchiveName = "BOL_All.zip"

// Options configures a Service.
type Options struct {
	// Directory confines every path-based operation.
	Directory   string
	MaxFileSize int64
	Workers     int
	Policy      naming.Policy
	ArchiveName string
}

// Service orchestrates loading, filling, packaging and exporting.
type Service struct {
	opts     Options
	packager *batch.Packager
	paths    *security.PathValidator
	sheets   *sheet.Cache
	logger   *slog.Logger

	// selMu serializes load-bind-update sequences on selection.
	selMu     sync.Mutex
	selection *export.Selection
}

// NewService creates a service backed by pdfcpu. A nil logger uses slog.Default.
func NewService(opts Options, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ArchiveName == "" {
		opts.ArchiveName = DefaultArchiveName
	}
	if opts.Policy == "" {
		opts.Policy = naming.PolicyDerived
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	paths, err := security.NewPathValidator(opts.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	filler := pdf.NewFiller(form.NewPDFCPUOpener(), logger)
	return &Service{
		opts:      opts,
		packager:  batch.NewPackager(filler, batch.Options{Workers: opts.Workers, Policy: opts.Policy}, logger),
		paths:     paths,
		sheets:    sheet.NewCache(sheet.DefaultCacheCapacity),
		selection: export.NewSelection(),
		logger:    logger,
	}, nil
}

// Options returns the effective options.
func (s *Service) Options() Options {
	return s.opts
}

// Directory returns the absolute working directory.
func (s *Service) Directory() string {
	return s.paths.Directory()
}

// LoadTemplate validates template bytes.
func (s *Service) LoadTemplate(name string, data []byte) (*pdf.Template, error) {
	tpl, err := pdf.LoadTemplate(name, data, s.opts.MaxFileSize)
	if err != nil {
		return nil, newError(KindLoad, "load template", err)
	}
	return tpl, nil
}

// LoadSheet parses spreadsheet bytes. Missing expected columns are reported
// as a warning.
func (s *Service) LoadSheet(name string, data []byte, sheetName string) (*sheet.Table, []Warning, error) {
	if s.opts.MaxFileSize > 0 && int64(len(data)) > s.opts.MaxFileSize {
		return nil, nil, newError(KindLoad, "load spreadsheet",
			fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrSheetTooLarge, len(data), s.opts.MaxFileSize))
	}

	table, err := s.sheets.Load(name, data, sheet.Options{SheetName: sheetName})
	if err != nil {
		return nil, nil, newError(KindLoad, "load spreadsheet", err)
	}

	var warnings []Warning
	if missing := table.MissingColumns(naming.ExpectedColumns()); len(missing) > 0 {
		warnings = append(warnings, Warning{
			Code:    WarnMissingColumns,
			Message: "spreadsheet is missing expected columns: " + strings.Join(missing, ", "),
		})
	}
	return table, warnings, nil
}

// Generate fills tpl once per table row and packages the documents.
func (s *Service) Generate(ctx context.Context, tpl *pdf.Template, table *sheet.Table) (*GenerateResult, error) {
	if tpl == nil {
		return nil, newError(KindLoad, "generate", pdf.ErrTemplateMissing)
	}
	if table == nil {
		return nil, newError(KindInput, "generate", errors.New("spreadsheet is missing"))
	}

	warnings := s.templateWarnings(tpl)

	archive, err := s.packager.Package(ctx, tpl, table.Rows)
	if err != nil {
		return nil, newError(KindFill, "generate", err)
	}

	if len(archive.Duplicates) > 0 {
		warnings = append(warnings, Warning{
			Code:    WarnDuplicateNames,
			Message: "archive contains repeated names: " + strings.Join(archive.Duplicates, ", "),
		})
	}

	result := &GenerateResult{
		ArchiveName: s.opts.ArchiveName,
		Data:        archive.Data,
		Rows:        table.Len(),
		Entries:     archive.Entries,
		Duplicates:  archive.Duplicates,
		FieldErrors: archive.FieldErrorCount(),
		Warnings:    warnings,
	}

	s.logger.Info("archive generated",
		"template", tpl.Name,
		"sheet", table.Name,
		"rows", result.Rows,
		"size", len(result.Data),
		"field_errors", result.FieldErrors,
		"warnings", len(result.Warnings))

	return result, nil
}

// templateWarnings reports expected columns the template has no field for.
func (s *Service) templateWarnings(tpl *pdf.Template) []Warning {
	info, err := tpl.Inspect()
	if err != nil {
		s.logger.Debug("template inspection failed", "template", tpl.Name, "error", err)
		return []Warning{{Code: WarnTemplateInspectFailed, Message: err.Error()}}
	}

	if missing := info.MissingFields(naming.ExpectedColumns()); len(missing) > 0 {
		return []Warning{{
			Code:    WarnTemplateFieldsMissing,
			Message: "template has no fields named: " + strings.Join(missing, ", "),
		}}
	}
	return nil
}

// PreviewNames returns the output name of every row and the names that
// occur more than once.
func (s *Service) PreviewNames(table *sheet.Table) ([]NamePreview, []string) {
	names := s.packager.Names(table.Rows)
	out := make([]NamePreview, len(names))
	for i, n := range names {
		out[i] = NamePreview{Row: i + 1, Name: n}
	}
	return out, batch.Duplicates(names)
}

// InspectTemplate lists a template's form fields.
func (s *Service) InspectTemplate(tpl *pdf.Template) (*pdf.TemplateInfo, error) {
	info, err := tpl.Inspect()
	if err != nil {
		return nil, newError(KindLoad, "inspect template", err)
	}
	return info, nil
}

// Export writes the rows of table selected in sel.
func (s *Service) Export(w io.Writer, format export.Format, table *sheet.Table, sel *export.Selection) error {
	if err := export.Export(w, format, table, sel); err != nil {
		return newError(KindInput, "export", err)
	}
	return nil
}

// Path-based operations. Every path is confined to the working directory.

func (s *Service) resolve(op, path string) (string, error) {
	resolved, err := s.paths.Resolve(path)
	if err != nil {
		return "", newError(KindInput, op, fmt.Errorf("security validation failed: %w", err))
	}
	return resolved, nil
}

func (s *Service) readFile(op, path string) (string, []byte, error) {
	resolved, err := s.resolve(op, path)
	if err != nil {
		return "", nil, err
	}

	info, err := os.Stat(resolved)
	if os.IsNotExist(err) {
		return "", nil, newError(KindLoad, op, fmt.Errorf("file does not exist: %s", path))
	}
	if err != nil {
		return "", nil, newError(KindLoad, op, fmt.Errorf("cannot access file: %w", err))
	}
	if info.IsDir() {
		return "", nil, newError(KindInput, op, fmt.Errorf("path is a directory, not a file: %s", path))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", nil, newError(KindLoad, op, fmt.Errorf("failed to read file: %w", err))
	}
	return resolved, data, nil
}

func (s *Service) loadTemplateFile(path string) (*pdf.Template, error) {
	resolved, data, err := s.readFile("load template", path)
	if err != nil {
		return nil, err
	}
	return s.LoadTemplate(filepath.Base(resolved), data)
}

func (s *Service) loadSheetFile(path, sheetName string) (*sheet.Table, []Warning, error) {
	resolved, data, err := s.readFile("load spreadsheet", path)
	if err != nil {
		return nil, nil, err
	}
	return s.LoadSheet(filepath.Base(resolved), data, sheetName)
}

func (s *Service) writeFile(op, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return newError(KindInput, op, fmt.Errorf("failed to create output directory: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newError(KindInput, op, fmt.Errorf("failed to write %s: %w", path, err))
	}
	return nil
}

// GenerateFile builds the archive from files and writes it, by default to
// the archive name inside the working directory.
func (s *Service) GenerateFile(ctx context.Context, req GenerateRequest) (*GenerateFileResult, error) {
	tpl, err := s.loadTemplateFile(req.TemplatePath)
	if err != nil {
		return nil, err
	}
	table, warnings, err := s.loadSheetFile(req.SheetPath, req.SheetName)
	if err != nil {
		return nil, err
	}

	output := req.OutputPath
	if output == "" {
		output = s.opts.ArchiveName
	}
	outPath, err := s.resolve("generate", output)
	if err != nil {
		return nil, err
	}

	result, err := s.Generate(ctx, tpl, table)
	if err != nil {
		return nil, err
	}
	result.Warnings = append(warnings, result.Warnings...)

	if err := s.writeFile("generate", outPath, result.Data); err != nil {
		return nil, err
	}

	return &GenerateFileResult{
		GenerateResult: *result,
		OutputPath:     outPath,
		Size:           int64(len(result.Data)),
	}, nil
}

// PreviewNamesFile returns the output names of a spreadsheet's rows.
func (s *Service) PreviewNamesFile(req PreviewNamesRequest) (*PreviewNamesResult, error) {
	table, warnings, err := s.loadSheetFile(req.SheetPath, req.SheetName)
	if err != nil {
		return nil, err
	}

	names, dups := s.PreviewNames(table)
	return &PreviewNamesResult{
		SheetPath:  req.SheetPath,
		Sheet:      table.Sheet,
		Names:      names,
		Duplicates: dups,
		Warnings:   warnings,
	}, nil
}

// TemplateFields inspects a template file.
func (s *Service) TemplateFields(req TemplateFieldsRequest) (*pdf.TemplateInfo, error) {
	tpl, err := s.loadTemplateFile(req.TemplatePath)
	if err != nil {
		return nil, err
	}
	return s.InspectTemplate(tpl)
}

// Select updates the selection of the spreadsheet at SheetPath. Loading a
// different spreadsheet than the last one discards the previous selection.
func (s *Service) Select(req SelectRequest) (*SelectResult, error) {
	table, warnings, err := s.loadSheetFile(req.SheetPath, req.SheetName)
	if err != nil {
		return nil, err
	}

	rows := req.Rows
	if req.RowList != "" {
		listed, err := export.ParseRows(req.RowList, table.Len())
		if err != nil {
			return nil, newError(KindInput, "select", err)
		}
		rows = append(slices.Clone(rows), listed...)
	}
	// Reject the whole request before any flag changes.
	for _, i := range rows {
		if i < 0 || i >= table.Len() {
			return nil, newError(KindInput, "select",
				fmt.Errorf("%w: %d (source has %d rows)", export.ErrRowOutOfRange, i, table.Len()))
		}
	}

	s.selMu.Lock()
	defer s.selMu.Unlock()

	rebound := s.selection.Bind(table.Source, table.Len())
	switch {
	case req.Reset:
		s.selection.Reset()
	case len(rows) == 0:
		s.selection.SetAll(req.Use)
	default:
		for _, i := range rows {
			if err := s.selection.Set(i, req.Use); err != nil {
				return nil, newError(KindInput, "select", err)
			}
		}
	}

	return &SelectResult{
		SheetPath: req.SheetPath,
		Rows:      table.Len(),
		Selected:  s.selection.Count(),
		Flags:     s.selection.Flags(),
		Rebound:   rebound,
		Warnings:  warnings,
	}, nil
}

// ExportFile writes the selected rows of the spreadsheet at SheetPath. A
// spreadsheet without a prior selection exports every row.
func (s *Service) ExportFile(req ExportRequest) (*ExportResult, error) {
	format, err := export.ParseFormat(string(req.Format))
	if err != nil {
		return nil, newError(KindInput, "export", err)
	}

	table, _, err := s.loadSheetFile(req.SheetPath, req.SheetName)
	if err != nil {
		return nil, err
	}

	output := req.OutputPath
	if output == "" {
		output = format.FileName()
	}
	outPath, err := s.resolve("export", output)
	if err != nil {
		return nil, err
	}

	s.selMu.Lock()
	defer s.selMu.Unlock()
	s.selection.Bind(table.Source, table.Len())

	var buf bytes.Buffer
	if err := s.Export(&buf, format, table, s.selection); err != nil {
		return nil, err
	}
	if err := s.writeFile("export", outPath, buf.Bytes()); err != nil {
		return nil, err
	}

	return &ExportResult{
		OutputPath: outPath,
		Format:     format,
		Rows:       s.selection.Count(),
		Size:       int64(buf.Len()),
	}, nil
}
