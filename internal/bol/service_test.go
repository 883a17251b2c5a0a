package bol

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-bol-filler/internal/export"
	"github.com/a3tai/mcp-bol-filler/internal/naming"
	"github.com/a3tai/mcp-bol-filler/internal/pdf"
	"github.com/a3tai/mcp-bol-filler/internal/testutil"
)

func bolTemplate() []byte {
	return testutil.FormPDF(
		testutil.Field{Name: "BOLnum"},
		testutil.Field{Name: "Desc_1"},
		testutil.Field{Name: "FromName"},
		testutil.Field{Name: "SCAC"},
		testutil.Field{Name: "3rdParty"},
	)
}

func bolSheet(t *testing.T) []byte {
	return testutil.XLSX(t, testutil.Sheet{Name: "Loads", Rows: [][]string{
		{"BOLnum", "Desc_1", "FromName", "SCAC"},
		{"B1", "Steel Coil", "Acme", "ABCD"},
		{"", "", "", ""},
		{"B3", "Pipe", "Łódź", "WXYZ"},
	}})
}

func newTestService(t *testing.T, opts Options) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	opts.Directory = dir
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = 1 << 20
	}
	svc, err := NewService(opts, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "BOL.pdf"), bolTemplate(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loads.xlsx"), bolSheet(t), 0o644))
	return svc, dir
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	names := make([]string, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
	}
	return names
}

func TestNewService_Defaults(t *testing.T) {
	svc, err := NewService(Options{Directory: t.TempDir()}, nil)
	require.NoError(t, err)

	opts := svc.Options()
	assert.Equal(t, DefaultArchiveName, opts.ArchiveName)
	assert.Equal(t, naming.PolicyDerived, opts.Policy)
	assert.Equal(t, 1, opts.Workers)

	_, err = NewService(Options{}, nil)
	assert.Error(t, err)
}

func TestService_LoadErrors(t *testing.T) {
	svc, _ := newTestService(t, Options{MaxFileSize: 64})

	_, err := svc.LoadTemplate("BOL.pdf", nil)
	assert.True(t, IsLoad(err))
	assert.ErrorIs(t, err, pdf.ErrTemplateMissing)

	_, err = svc.LoadTemplate("BOL.pdf", []byte("hello"))
	assert.True(t, IsLoad(err))
	assert.ErrorIs(t, err, pdf.ErrNotPDF)

	_, _, err = svc.LoadSheet("big.csv", bytes.Repeat([]byte("a"), 65), "")
	assert.True(t, IsLoad(err))
	assert.ErrorIs(t, err, ErrSheetTooLarge)

	_, _, err = svc.LoadSheet("bad.xlsx", []byte("not a workbook"), "")
	assert.True(t, IsLoad(err))
}

func TestService_LoadSheetWarnsAboutMissingColumns(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	table, warnings, err := svc.LoadSheet("rows.csv", []byte("BOLnum,Weight\nB1,10\n"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnMissingColumns, warnings[0].Code)
	assert.Contains(t, warnings[0].Message, "Desc_1, FromName, SCAC")
}

func TestService_LoadSheetReusesParsedTables(t *testing.T) {
	svc, _ := newTestService(t, Options{})
	data := []byte("BOLnum,Desc_1,FromName,SCAC\nB1,Steel,Acme,ABCD\n")

	first, _, err := svc.LoadSheet("a.csv", data, "")
	require.NoError(t, err)
	second, _, err := svc.LoadSheet("b.csv", data, "")
	require.NoError(t, err)

	assert.Equal(t, "b.csv", second.Name)
	assert.Equal(t, first.Rows, second.Rows)

	info, err := svc.ServerInfo("mcp-bol-filler", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.SheetCache.Hits)
	assert.Equal(t, int64(1), info.SheetCache.Misses)
}

func TestService_Generate(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	tpl, err := svc.LoadTemplate("BOL.pdf", bolTemplate())
	require.NoError(t, err)
	table, warnings, err := svc.LoadSheet("loads.xlsx", bolSheet(t), "")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	result, err := svc.Generate(context.Background(), tpl, table)
	require.NoError(t, err)

	assert.Equal(t, DefaultArchiveName, result.ArchiveName)
	assert.Equal(t, 3, result.Rows)
	assert.Zero(t, result.FieldErrors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, []string{
		"BOL_B1_Steel_Co_Ac_ABCD.pdf",
		"BOL_ROW_002.pdf",
		"BOL_B3_Pipe_Łó_WXYZ.pdf",
	}, zipNames(t, result.Data))
}

func TestService_GenerateWarnings(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	tpl, err := svc.LoadTemplate("BOL.pdf", testutil.FormPDF(testutil.Field{Name: "BOLnum"}))
	require.NoError(t, err)
	table, _, err := svc.LoadSheet("rows.csv", []byte("BOLnum,Desc_1,FromName,SCAC\nB1,,,\nB1,,,\n"), "")
	require.NoError(t, err)

	result, err := svc.Generate(context.Background(), tpl, table)
	require.NoError(t, err)

	codes := map[string]string{}
	for _, w := range result.Warnings {
		codes[w.Code] = w.Message
	}
	assert.Contains(t, codes[WarnTemplateFieldsMissing], "Desc_1, FromName, SCAC")
	assert.Contains(t, codes[WarnDuplicateNames], "BOL_B1.pdf")
	assert.Equal(t, []string{"BOL_B1.pdf"}, result.Duplicates)
	assert.Len(t, zipNames(t, result.Data), 2)
}

func TestService_GenerateFatalFill(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	tpl, err := svc.LoadTemplate("broken.pdf", []byte("%PDF-1.7\nbroken"))
	require.NoError(t, err)
	table, _, err := svc.LoadSheet("rows.csv", []byte("BOLnum\nB1\n"), "")
	require.NoError(t, err)

	result, err := svc.Generate(context.Background(), tpl, table)
	assert.Nil(t, result)
	assert.Equal(t, KindFill, KindOf(err))

	codes := []string{}
	for _, w := range svc.templateWarnings(tpl) {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []string{WarnTemplateInspectFailed}, codes)
}

func TestService_GenerateFile(t *testing.T) {
	svc, dir := newTestService(t, Options{Policy: naming.PolicyIndexed})

	result, err := svc.GenerateFile(context.Background(), GenerateRequest{
		TemplatePath: "BOL.pdf",
		SheetPath:    "loads.xlsx",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(svc.Directory(), DefaultArchiveName), result.OutputPath)

	data, err := os.ReadFile(filepath.Join(dir, DefaultArchiveName))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.Size)
	assert.Equal(t, "BOL_B1_Steel_Co_Ac_ABCD_001.pdf", zipNames(t, data)[0])

	custom, err := svc.GenerateFile(context.Background(), GenerateRequest{
		TemplatePath: "BOL.pdf",
		SheetPath:    "loads.xlsx",
		OutputPath:   "out/week42.zip",
	})
	require.NoError(t, err)
	assert.FileExists(t, custom.OutputPath)

	encoded, err := json.Marshal(custom)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"output_path"`)
	assert.NotContains(t, string(encoded), `"Data"`)
}

func TestService_GenerateFileErrors(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	tests := []struct {
		name string
		req  GenerateRequest
		kind Kind
	}{
		{name: "template outside", req: GenerateRequest{TemplatePath: "../BOL.pdf", SheetPath: "loads.xlsx"}, kind: KindInput},
		{name: "missing template", req: GenerateRequest{TemplatePath: "none.pdf", SheetPath: "loads.xlsx"}, kind: KindLoad},
		{name: "sheet is template", req: GenerateRequest{TemplatePath: "BOL.pdf", SheetPath: "BOL.pdf"}, kind: KindLoad},
		{name: "template is sheet", req: GenerateRequest{TemplatePath: "loads.xlsx", SheetPath: "loads.xlsx"}, kind: KindLoad},
		{name: "output outside", req: GenerateRequest{TemplatePath: "BOL.pdf", SheetPath: "loads.xlsx", OutputPath: "/tmp/../etc/x.zip"}, kind: KindInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GenerateFile(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestService_PreviewNamesFile(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	result, err := svc.PreviewNamesFile(PreviewNamesRequest{SheetPath: "loads.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "Loads", result.Sheet)
	assert.Equal(t, []NamePreview{
		{Row: 1, Name: "BOL_B1_Steel_Co_Ac_ABCD.pdf"},
		{Row: 2, Name: "BOL_ROW_002.pdf"},
		{Row: 3, Name: "BOL_B3_Pipe_Łó_WXYZ.pdf"},
	}, result.Names)
	assert.Empty(t, result.Duplicates)
}

func TestService_TemplateFields(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	info, err := svc.TemplateFields(TemplateFieldsRequest{TemplatePath: "BOL.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 1, info.Pages)
	assert.Len(t, info.Fields, 5)
	assert.Empty(t, info.MissingFields(naming.ExpectedColumns()))
}

func TestService_SelectAndExport(t *testing.T) {
	svc, dir := newTestService(t, Options{})

	sel, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", Rows: []int{1}, Use: false})
	require.NoError(t, err)
	assert.True(t, sel.Rebound)
	assert.Equal(t, []bool{true, false, true}, sel.Flags)
	assert.Equal(t, 2, sel.Selected)

	again, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", Rows: []int{0}, Use: false})
	require.NoError(t, err)
	assert.False(t, again.Rebound, "same source keeps the selection")
	assert.Equal(t, 1, again.Selected)

	_, err = svc.Select(SelectRequest{SheetPath: "loads.xlsx", Rows: []int{7}})
	assert.Equal(t, KindInput, KindOf(err))
	assert.ErrorIs(t, err, export.ErrRowOutOfRange)

	result, err := svc.ExportFile(ExportRequest{SheetPath: "loads.xlsx", Format: export.FormatJSON})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)
	assert.Equal(t, filepath.Join(svc.Directory(), "BOL_Selected.json"), result.OutputPath)

	data, err := os.ReadFile(filepath.Join(dir, "BOL_Selected.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FromName": "Łódź"`)
	assert.NotContains(t, string(data), `"B1"`)

	reset, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 3, reset.Selected)

	none, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", Use: false})
	require.NoError(t, err)
	assert.Equal(t, 0, none.Selected)

	csvResult, err := svc.ExportFile(ExportRequest{SheetPath: "loads.xlsx", Format: "csv", OutputPath: "sel.csv"})
	require.NoError(t, err)
	assert.Equal(t, 0, csvResult.Rows)
	data, err = os.ReadFile(filepath.Join(dir, "sel.csv"))
	require.NoError(t, err)
	assert.Equal(t, "\xEF\xBB\xBFBOLnum,Desc_1,FromName,SCAC\n", string(data))

	_, err = svc.ExportFile(ExportRequest{SheetPath: "loads.xlsx", Format: "xml"})
	assert.Equal(t, KindInput, KindOf(err))
}

func TestService_SelectResetsOnNewSource(t *testing.T) {
	svc, dir := newTestService(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("BOLnum\nX1\nX2\nX3\n"), 0o644))

	_, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", Use: false})
	require.NoError(t, err)

	other, err := svc.Select(SelectRequest{SheetPath: "other.csv", Rows: []int{0}, Use: true})
	require.NoError(t, err)
	assert.True(t, other.Rebound)
	assert.Equal(t, 3, other.Selected)
}

func TestService_SelectRowList(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	sel, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", RowList: "1, 3", Use: false})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false}, sel.Flags)

	sel, err = svc.Select(SelectRequest{SheetPath: "loads.xlsx", RowList: "3", Rows: []int{0}, Use: true})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true}, sel.Flags)

	_, err = svc.Select(SelectRequest{SheetPath: "loads.xlsx", RowList: "2-9"})
	assert.Equal(t, KindInput, KindOf(err))
	assert.ErrorIs(t, err, export.ErrRowOutOfRange)

	_, err = svc.Select(SelectRequest{SheetPath: "loads.xlsx", RowList: "two"})
	assert.Equal(t, KindInput, KindOf(err))
}

func TestService_SelectOutOfRangeChangesNothing(t *testing.T) {
	svc, _ := newTestService(t, Options{})

	sel, err := svc.Select(SelectRequest{SheetPath: "loads.xlsx", Rows: []int{1}, Use: false})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, true}, sel.Flags)

	tests := []struct {
		name string
		req  SelectRequest
	}{
		{name: "index past the end", req: SelectRequest{SheetPath: "loads.xlsx", Rows: []int{0, 2, 3}, Use: false}},
		{name: "negative index", req: SelectRequest{SheetPath: "loads.xlsx", Rows: []int{0, -1}, Use: false}},
		{name: "valid list with bad index", req: SelectRequest{SheetPath: "loads.xlsx", RowList: "1", Rows: []int{7}, Use: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Select(tt.req)
			assert.Equal(t, KindInput, KindOf(err))
			assert.ErrorIs(t, err, export.ErrRowOutOfRange)
			assert.Equal(t, []bool{true, false, true}, svc.selection.Flags())
		})
	}
}

func TestService_ServerInfo(t *testing.T) {
	svc, dir := newTestService(t, Options{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	info, err := svc.ServerInfo("mcp-bol-filler", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "mcp-bol-filler", info.ServerName)
	assert.Equal(t, DefaultArchiveName, info.ArchiveName)
	assert.Equal(t, []FileInfo{
		{Name: "BOL.pdf", Size: int64(len(bolTemplate())), Kind: "template"},
		{Name: "loads.xlsx", Size: info.DirectoryContents[1].Size, Kind: "spreadsheet"},
	}, info.DirectoryContents)
	assert.Len(t, info.AvailableTools, 6)
	assert.NotEmpty(t, info.UsageGuidance)
}

func TestKindOf(t *testing.T) {
	err := newError(KindNotFound, "get source", os.ErrNotExist)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, "get source: file does not exist", err.Error())
	assert.Equal(t, Kind(""), KindOf(os.ErrNotExist))
	assert.False(t, IsLoad(nil))
}
