// Package form exposes the fillable-form capabilities the filler relies on:
// enumerate pages and their field widgets, read and write field values,
// refresh widget appearances and serialize the document.
//
// Backends implement Opener; the filler never sees library types.
package form

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by any operation on a closed document.
	ErrClosed = errors.New("document is closed")
	// ErrUnsupportedField is returned when a field kind cannot hold a value.
	ErrUnsupportedField = errors.New("field kind cannot be filled")
	// ErrNoAcroForm is returned when the document has no interactive form.
	ErrNoAcroForm = errors.New("document has no AcroForm")
	// ErrPageRange is returned for page numbers outside the document.
	ErrPageRange = errors.New("page out of range")
)

// Opener opens independent, mutable documents from serialized bytes.
// Implementations must not modify data.
type Opener interface {
	Open(data []byte) (Document, error)
}

// Document is one open, in-memory document.
type Document interface {
	// PageCount returns the number of pages.
	PageCount() int
	// Widgets returns the field widgets on a 1-based page.
	Widgets(page int) ([]Widget, error)
	// SetNeedAppearances asks viewers to regenerate appearances from values.
	SetNeedAppearances(need bool) error
	// Bytes serializes the current state.
	Bytes() ([]byte, error)
	// Close releases the document. It is safe to call more than once.
	Close() error
}

// Widget is the on-page representation of a form field.
type Widget interface {
	// Name returns the fully qualified field name, or "" when unnamed.
	Name() string
	Kind() Kind
	// Value returns the field's current value as text.
	Value() string
	SetValue(value string) error
	// Refresh brings the widget's visual representation in line with its value.
	Refresh() error
}

// Kind is the type of a form field.
type Kind string

const (
	KindText      Kind = "text"
	KindCheckbox  Kind = "checkbox"
	KindRadio     Kind = "radio"
	KindChoice    Kind = "choice"
	KindButton    Kind = "button"
	KindSignature Kind = "signature"
	KindUnknown   Kind = "unknown"
)

// Error describes a failed operation on a document or one of its fields.
type Error struct {
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("form %s %q: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("form %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
