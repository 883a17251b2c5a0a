package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/logging"
	"github.com/a3tai/mcp-bol-filler/internal/pdf"
)

// Error codes that do not come from a bol.Kind.
const (
	codeTooLarge = "too_large"
	codeInternal = "internal_error"
)

var (
	errSourceNotFound = errors.New("source not found or expired")
	errSheetMissing   = errors.New("spreadsheet is missing")
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps an error to an HTTP status and an error code.
func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, pdf.ErrTemplateTooLarge) || errors.Is(err, bol.ErrSheetTooLarge) {
		return http.StatusRequestEntityTooLarge, codeTooLarge
	}

	switch kind := bol.KindOf(err); kind {
	case bol.KindLoad, bol.KindInput:
		return http.StatusBadRequest, string(kind)
	case bol.KindNotFound:
		return http.StatusNotFound, string(kind)
	case bol.KindFill:
		return http.StatusInternalServerError, string(kind)
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// respondError logs err with the request id and writes it as JSON.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request error", "path", r.URL.Path, "status", status, "code", code, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", status, "code", code, "error", err)
	}

	writeJSONStatus(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
