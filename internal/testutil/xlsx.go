package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"
)

// Sheet is one named worksheet of a generated workbook.
type Sheet struct {
	Name string
	Rows [][]string
}

// XLSX builds an in-memory workbook with the given worksheets. The first sheet
// replaces excelize's default "Sheet1".
func XLSX(t testing.TB, sheets ...Sheet) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("failed to rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("failed to add sheet %s: %v", s.Name, err)
		}

		for r, row := range s.Rows {
			for c, value := range row {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					t.Fatalf("bad cell coordinates: %v", err)
				}
				if err := f.SetCellStr(s.Name, cell, value); err != nil {
					t.Fatalf("failed to set %s: %v", cell, err)
				}
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}
	return buf.Bytes()
}
