package bol

import (
	"github.com/a3tai/mcp-bol-filler/internal/batch"
	"github.com/a3tai/mcp-bol-filler/internal/export"
	"github.com/a3tai/mcp-bol-filler/internal/sheet"
)

// Request Types

// GenerateRequest asks for an archive built from files in the working directory.
type GenerateRequest struct {
	TemplatePath string `json:"template_path"`
	SheetPath    string `json:"sheet_path"`
	SheetName    string `json:"sheet,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
}

// PreviewNamesRequest asks for the output names of a spreadsheet's rows.
type PreviewNamesRequest struct {
	SheetPath string `json:"sheet_path"`
	SheetName string `json:"sheet,omitempty"`
}

// TemplateFieldsRequest asks for a template's form fields.
type TemplateFieldsRequest struct {
	TemplatePath string `json:"template_path"`
}

// SelectRequest changes the row selection of a spreadsheet. Rows are 0-based,
// RowList is a 1-based list such as "1,3,5-7"; both may be given. With
// neither, Use applies to every row. Reset selects everything again.
type SelectRequest struct {
	SheetPath string `json:"sheet_path"`
	SheetName string `json:"sheet,omitempty"`
	Rows      []int  `json:"rows,omitempty"`
	RowList   string `json:"row_list,omitempty"`
	Use       bool   `json:"use"`
	Reset     bool   `json:"reset,omitempty"`
}

// ExportRequest writes the selected rows of a spreadsheet.
type ExportRequest struct {
	SheetPath  string        `json:"sheet_path"`
	SheetName  string        `json:"sheet,omitempty"`
	Format     export.Format `json:"format"`
	OutputPath string        `json:"output_path,omitempty"`
}

// Response Types

// GenerateResult is a finished archive.
type GenerateResult struct {
	ArchiveName string        `json:"archive_name"`
	Data        []byte        `json:"-"`
	Rows        int           `json:"rows"`
	Entries     []batch.Entry `json:"entries"`
	Duplicates  []string      `json:"duplicates,omitempty"`
	FieldErrors int           `json:"field_errors"`
	Warnings    []Warning     `json:"warnings,omitempty"`
}

// GenerateFileResult is a GenerateResult written to disk.
type GenerateFileResult struct {
	GenerateResult
	OutputPath string `json:"output_path"`
	Size       int64  `json:"size"`
}

// NamePreview is the output name of one row.
type NamePreview struct {
	Row  int    `json:"row"`
	Name string `json:"name"`
}

// PreviewNamesResult lists output names per row.
type PreviewNamesResult struct {
	SheetPath  string        `json:"sheet_path"`
	Sheet      string        `json:"sheet,omitempty"`
	Names      []NamePreview `json:"names"`
	Duplicates []string      `json:"duplicates,omitempty"`
	Warnings   []Warning     `json:"warnings,omitempty"`
}

// SelectResult is the selection state after a SelectRequest.
type SelectResult struct {
	SheetPath string    `json:"sheet_path"`
	Rows      int       `json:"rows"`
	Selected  int       `json:"selected"`
	Flags     []bool    `json:"flags"`
	Rebound   bool      `json:"rebound"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

// ExportResult describes a written export.
type ExportResult struct {
	OutputPath string        `json:"output_path"`
	Format     export.Format `json:"format"`
	Rows       int           `json:"rows"`
	Size       int64         `json:"size"`
}

// ToolInfo describes one tool exposed by the server.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}

// FileInfo describes an input file found in the working directory.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Kind string `json:"kind"`
}

// ServerInfo describes the server, its configuration and its tools.
type ServerInfo struct {
	ServerName        string           `json:"server_name"`
	Version           string           `json:"version"`
	Directory         string           `json:"directory"`
	MaxFileSize       int64            `json:"max_file_size"`
	ArchiveName       string           `json:"archive_name"`
	NamePolicy        string           `json:"name_policy"`
	Workers           int              `json:"workers"`
	SheetCache        sheet.CacheStats `json:"sheet_cache"`
	DirectoryContents []FileInfo       `json:"directory_contents"`
	AvailableTools    []ToolInfo       `json:"available_tools"`
	UsageGuidance     string           `json:"usage_guidance"`
}
