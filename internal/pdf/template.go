package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrTemplateMissing is returned when no template bytes were supplied.
	ErrTemplateMissing = errors.New("template is missing")
	// ErrNotPDF is returned when the template does not start with the PDF signature.
	ErrNotPDF = errors.New("template is not a PDF document")
	// ErrTemplateTooLarge is returned when the template exceeds the size limit.
	ErrTemplateTooLarge = errors.New("template is too large")
)

var signature = []byte("%PDF")

// Template is a fillable document shared by every fill of a batch.
// Its bytes are never modified after loading.
type Template struct {
	Name string
	data []byte
}

// LoadTemplate validates data and wraps it as a Template. A maxSize of zero
// or less disables the size check.
func LoadTemplate(name string, data []byte, maxSize int64) (*Template, error) {
	if len(data) == 0 {
		return nil, ErrTemplateMissing
	}

	if !bytes.HasPrefix(data, signature) {
		return nil, fmt.Errorf("%w: %s", ErrNotPDF, name)
	}

	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrTemplateTooLarge, len(data), maxSize)
	}

	return &Template{Name: name, data: data}, nil
}

// LoadTemplateFile reads and validates a template from disk.
func LoadTemplateFile(path string, maxSize int64) (*Template, error) {
	if path == "" {
		return nil, ErrTemplateMissing
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: file does not exist: %s", ErrTemplateMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}

	if fileInfo.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	if maxSize > 0 && fileInfo.Size() > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrTemplateTooLarge, fileInfo.Size(), maxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}

	return LoadTemplate(filepath.Base(path), data, maxSize)
}

// Bytes returns the template bytes. Callers must not modify them.
func (t *Template) Bytes() []byte {
	return t.data
}

// Size returns the template size in bytes.
func (t *Template) Size() int64 {
	return int64(len(t.data))
}
