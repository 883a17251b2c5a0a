package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/export"
	"github.com/a3tai/mcp-bol-filler/internal/logging"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// SourceResponse describes an uploaded spreadsheet and its selection.
type SourceResponse struct {
	SourceID  string        `json:"source_id"`
	Name      string        `json:"name"`
	Sheet     string        `json:"sheet,omitempty"`
	Columns   []string      `json:"columns"`
	Rows      []sheet.Row   `json:"rows"`
	Selected  []bool        `json:"selected"`
	Count     int           `json:"count"`
	Warnings  []bol.Warning `json:"warnings,omitempty"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// SelectionRequest changes the selection of a source. Rows are 0-based.
// Use defaults to true.
type SelectionRequest struct {
	Rows  []int `json:"rows,omitempty"`
	All   bool  `json:"all,omitempty"`
	Use   *bool `json:"use,omitempty"`
	Reset bool  `json:"reset,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"version": s.config.Version,
		"sources": s.sources.len(),
	})
}

// handleGenerate fills the uploaded template once per row of the uploaded
// spreadsheet and returns the archive.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r, 2*s.config.MaxFileSize+formOverhead) {
		return
	}

	templateName, templateData, err := formFile(r, "template")
	if err != nil {
		respondError(w, r, err)
		return
	}
	tpl, err := s.service.LoadTemplate(templateName, templateData)
	if err != nil {
		respondError(w, r, err)
		return
	}

	table, warnings, err := s.loadSheet(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.Generate(r.Context(), tpl, table)
	if err != nil {
		respondError(w, r, err)
		return
	}
	warnings = append(warnings, result.Warnings...)

	logging.WithFields(r.Context(), "template", tpl.Name, "sheet", table.Name).
		Info("archive served", "rows", result.Rows, "size", len(result.Data), "warnings", len(warnings))

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.ArchiveName))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.Header().Set("X-BOL-Rows", strconv.Itoa(result.Rows))
	w.Header().Set("X-BOL-Warnings", strconv.Itoa(len(warnings)))
	w.Header().Set("X-BOL-Field-Errors", strconv.Itoa(result.FieldErrors))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// handleCreateSource stores an uploaded spreadsheet for selection and export.
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r, s.config.MaxFileSize+formOverhead) {
		return
	}

	table, warnings, err := s.loadSheet(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	src := s.sources.put(table, warnings)
	logging.WithFields(r.Context(), "source_id", src.id, "sheet", table.Name).
		Info("source loaded", "rows", table.Len(), "content", table.Source.Short())

	writeJSONStatus(w, http.StatusCreated, sourceResponse(src))
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	writeJSON(w, sourceResponse(src))
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if !s.sources.delete(chi.URLParam(r, "id")) {
		respondError(w, r, notFound())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateSelection(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}

	var req SelectionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, formOverhead))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, invalidInput("update selection", fmt.Errorf("invalid request body: %w", err)))
		return
	}

	use := true
	if req.Use != nil {
		use = *req.Use
	}

	switch {
	case req.Reset:
		src.selection.Reset()
	case req.All:
		src.selection.SetAll(use)
	case len(req.Rows) > 0:
		// Validate every index before changing anything.
		for _, i := range req.Rows {
			if i < 0 || i >= src.table.Len() {
				respondError(w, r, invalidInput("update selection",
					fmt.Errorf("%w: %d (source has %d rows)", export.ErrRowOutOfRange, i, src.table.Len())))
				return
			}
		}
		for _, i := range req.Rows {
			if err := src.selection.Set(i, use); err != nil {
				respondError(w, r, invalidInput("update selection", err))
				return
			}
		}
	default:
		respondError(w, r, invalidInput("update selection", errors.New("one of rows, all or reset is required")))
		return
	}

	logging.WithFields(r.Context(), "source_id", src.id).
		Info("selection updated", "selected", src.selection.Count(), "rows", src.table.Len())
	writeJSON(w, sourceResponse(src))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}

	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		respondError(w, r, invalidInput("export", err))
		return
	}

	var buf bytes.Buffer
	if err := s.service.Export(&buf, format, src.table, src.selection); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseForm limits the body to limit bytes and parses it as multipart. It
// writes the error response itself and reports whether to continue.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request, limit int64) bool {
	if r.ContentLength > limit {
		respondError(w, r, &http.MaxBytesError{Limit: limit})
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			err = invalidInput("parse form", fmt.Errorf("invalid multipart form: %w", err))
		}
		respondError(w, r, err)
		return false
	}
	return true
}

// loadSheet parses the "sheet" upload, honouring the optional "sheet_name".
func (s *Server) loadSheet(r *http.Request) (*sheet.Table, []bol.Warning, error) {
	name, data, err := formFile(r, "sheet")
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return nil, nil, &bol.Error{Kind: bol.KindLoad, Op: "load spreadsheet", Err: errSheetMissing}
	}
	return s.service.LoadSheet(name, data, r.FormValue("sheet_name"))
}

func (s *Server) lookupSource(w http.ResponseWriter, r *http.Request) (source, bool) {
	src, ok := s.sources.get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, r, notFound())
		return source{}, false
	}
	return src, true
}

// formFile reads an uploaded file. A missing field yields nil data.
func formFile(r *http.Request, field string) (string, []byte, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, nil
	}
	if err != nil {
		return "", nil, invalidInput("read upload", fmt.Errorf("%s: %w", field, err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, invalidInput("read upload", fmt.Errorf("%s: %w", field, err))
	}
	return header.Filename, data, nil
}

func sourceResponse(src source) SourceResponse {
	rows := src.table.Rows
	if rows == nil {
		rows = []sheet.Row{}
	}
	return SourceResponse{
		SourceID:  src.id,
		Name:      src.table.Name,
		Sheet:     src.table.Sheet,
		Columns:   src.table.Columns,
		Rows:      rows,
		Selected:  src.selection.Flags(),
		Count:     src.selection.Count(),
		Warnings:  src.warnings,
		ExpiresAt: src.expiresAt,
	}
}

func notFound() error {
	return &bol.Error{Kind: bol.KindNotFound, Op: "source", Err: errSourceNotFound}
}

func invalidInput(op string, err error) error {
	return &bol.Error{Kind: bol.KindInput, Op: op, Err: err}
}
