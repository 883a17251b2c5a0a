package bol

import (
	"errors"
	"fmt"
)

// Kind classifies service errors for callers that map them to user-facing
// responses.
type Kind string

const (
	// KindLoad: the template or spreadsheet cannot be used. Nothing was generated.
	KindLoad Kind = "load_error"
	// KindFill: a row could not be filled; the batch was aborted.
	KindFill Kind = "fill_error"
	// KindInput: the request itself is invalid.
	KindInput Kind = "invalid_input"
	// KindNotFound: a referenced resource does not exist.
	KindNotFound Kind = "not_found"
)

// ErrSheetTooLarge is returned when a spreadsheet exceeds the size limit.
var ErrSheetTooLarge = errors.New("spreadsheet is too large")

// Error is a classified service error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsLoad reports whether err is a load error.
func IsLoad(err error) bool {
	return KindOf(err) == KindLoad
}

// Warning is a non-fatal condition reported next to a successful result.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Warning codes.
const (
	WarnMissingColumns        = "missing_columns"
	WarnTemplateFieldsMissing = "template_fields_missing"
	WarnDuplicateNames        = "duplicate_names"
	WarnTemplateInspectFailed = "template_inspect_failed"
)
