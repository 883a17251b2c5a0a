package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a supported spreadsheet encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

var (
	// ErrEmpty is returned when the source has no header row.
	ErrEmpty = errors.New("spreadsheet has no header row")
	// ErrUnsupportedFormat is returned for anything that is not xlsx or csv.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	// ErrSheetNotFound is returned when a requested worksheet does not exist.
	ErrSheetNotFound = errors.New("worksheet not found")
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// Options tune how a source is read.
type Options struct {
	// SheetName selects the worksheet of an xlsx workbook. Empty means the first.
	SheetName string
}

// DetectFormat picks the format from the file extension, falling back to
// content sniffing when the extension is unknown.
func DetectFormat(name string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	}

	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX, nil
	}
	if name == "" || filepath.Ext(name) == "" {
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
}

// LoadFile reads and parses the spreadsheet at path.
func LoadFile(path string, opts Options) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	return Load(filepath.Base(path), data, opts)
}

// Load parses spreadsheet bytes. name is used for format detection and is
// recorded on the table.
func Load(name string, data []byte, opts Options) (*Table, error) {
	return parse(name, data, IdentifySource(data), opts)
}

func parse(name string, data []byte, id SourceID, opts Options) (*Table, error) {
	format, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}

	var (
		records   [][]string
		sheetName string
	)
	switch format {
	case FormatXLSX:
		records, sheetName, err = readXLSX(data, opts.SheetName)
	case FormatCSV:
		records, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	table := newTable(records[0], records[1:])
	table.Name = name
	table.Sheet = sheetName
	table.Source = id
	return table, nil
}

func readXLSX(data []byte, sheetName string) ([][]string, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", ErrEmpty
	}

	target := sheets[0]
	if sheetName != "" {
		target = ""
		for _, s := range sheets {
			if s == sheetName {
				target = s
				break
			}
		}
		if target == "" {
			return nil, "", fmt.Errorf("%w: %s", ErrSheetNotFound, sheetName)
		}
	}

	rows, err := f.GetRows(target)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read worksheet %s: %w", target, err)
	}
	return rows, target, nil
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
