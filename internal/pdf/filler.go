package pdf

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/a3tai/mcp-bol-filler/internal/pdf/form"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// Override is a field value forced onto every row before filling.
type Override struct {
	Field string
	Value string
}

// Overrides are applied to every row, replacing any value the row carries.
var Overrides = []Override{
	{Field: "3rdParty", Value: "X"},
	{Field: "PrePaid", Value: ""},
	{Field: "Collect", Value: ""},
}

// WithOverrides returns a copy of row with Overrides applied.
func WithOverrides(row sheet.Row) sheet.Row {
	out := row.Clone()
	for _, o := range Overrides {
		out.Set(o.Field, o.Value)
	}
	return out
}

// FieldError records a field that could not be set. It never aborts a fill.
type FieldError struct {
	Page  int
	Field string
	Err   error
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("page %d: %v", e.Page, e.Err)
	}
	return fmt.Sprintf("page %d field %q: %v", e.Page, e.Field, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

func (e FieldError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Page  int    `json:"page"`
		Field string `json:"field,omitempty"`
		Error string `json:"error"`
	}{e.Page, e.Field, msg})
}

// FillResult is one filled document.
type FillResult struct {
	Data        []byte
	Applied     int
	Skipped     int
	FieldErrors []FieldError
}

// Filler applies row values to template fields matched by name.
type Filler struct {
	opener form.Opener
	logger *slog.Logger
}

// NewFiller creates a filler. A nil logger uses slog.Default.
func NewFiller(opener form.Opener, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{opener: opener, logger: logger}
}

// Fill opens an independent copy of tpl and sets every named widget whose
// name is a key of the row (after overrides). Only a template that cannot be
// opened or serialized is an error; per-field failures are collected in the
// result.
func (f *Filler) Fill(tpl *Template, row sheet.Row, index int) (*FillResult, error) {
	if tpl == nil {
		return nil, ErrTemplateMissing
	}

	values := WithOverrides(row)

	doc, err := f.opener.Open(tpl.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to open template %s: %w", tpl.Name, err)
	}
	defer doc.Close()

	// Cached appearances are only dropped once viewers are told to rebuild them.
	refresh := true
	if err := doc.SetNeedAppearances(true); err != nil {
		f.logger.Debug("NeedAppearances not set, keeping field appearances", "template", tpl.Name, "row", index, "error", err)
		refresh = false
	}

	result := &FillResult{}
	for page := 1; page <= doc.PageCount(); page++ {
		widgets, err := doc.Widgets(page)
		if err != nil {
			result.FieldErrors = append(result.FieldErrors, FieldError{Page: page, Err: err})
			continue
		}

		for _, w := range widgets {
			name := w.Name()
			if name == "" {
				continue
			}
			value, ok := values.Lookup(name)
			if !ok {
				result.Skipped++
				continue
			}

			if err := setField(w, value, refresh); err != nil {
				result.FieldErrors = append(result.FieldErrors, FieldError{Page: page, Field: name, Err: err})
				continue
			}
			result.Applied++
		}
	}

	data, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize row %d: %w", index+1, err)
	}
	result.Data = data

	return result, nil
}

// setField sets one widget and, when refresh is set, refreshes its
// appearance. Backend panics become errors.
func setField(w form.Widget, value string, refresh bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while setting field: %v", r)
		}
	}()

	if err := w.SetValue(value); err != nil {
		return err
	}
	if !refresh {
		return nil
	}
	return w.Refresh()
}
