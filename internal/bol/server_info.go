package bol

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxListedFiles bounds the directory listing in ServerInfo.
const maxListedFiles = 50

// ServerInfo describes the service for the given server name and version.
func (s *Service) ServerInfo(serverName, version string) (*ServerInfo, error) {
	files, err := s.listInputFiles()
	if err != nil {
		return nil, err
	}

	return &ServerInfo{
		ServerName:        serverName,
		Version:           version,
		Directory:         s.Directory(),
		MaxFileSize:       s.opts.MaxFileSize,
		ArchiveName:       s.opts.ArchiveName,
		NamePolicy:        string(s.opts.Policy),
		Workers:           s.opts.Workers,
		SheetCache:        s.sheets.Stats(),
		DirectoryContents: files,
		AvailableTools:    availableTools(),
		UsageGuidance:     usageGuidance,
	}, nil
}

// listInputFiles lists templates and spreadsheets directly inside the
// working directory. A missing directory yields an empty list.
func (s *Service) listInputFiles() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.Directory())
	if os.IsNotExist(err) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, newError(KindLoad, "server info", err)
	}

	files := []FileInfo{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		kind := inputKind(e.Name())
		if kind == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size(), Kind: kind})
		if len(files) >= maxListedFiles {
			break
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func inputKind(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "template"
	case ".xlsx", ".xlsm", ".csv":
		return "spreadsheet"
	case ".zip":
		return "archive"
	default:
		return ""
	}
}

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "bol_generate",
			Description: "Fill the template once per row and write a ZIP archive",
			Usage:       "Generate every BOL of a spreadsheet in one archive",
			Parameters:  "template_path (required), sheet_path (required), output_path (optional), sheet (optional)",
		},
		{
			Name:        "bol_preview_names",
			Description: "List the file name each row will get",
			Usage:       "Check names and duplicates before generating",
			Parameters:  "sheet_path (required), sheet (optional)",
		},
		{
			Name:        "bol_template_fields",
			Description: "List the template's fillable fields",
			Usage:       "Match template fields against spreadsheet columns",
			Parameters:  "template_path (required)",
		},
		{
			Name:        "bol_select",
			Description: "Include or exclude rows for export",
			Usage:       "Pick the rows bol_export writes",
			Parameters:  "sheet_path (required), rows (optional, e.g. 1,3,5-7), use (optional, default true), reset (optional), sheet (optional)",
		},
		{
			Name:        "bol_export",
			Description: "Write the selected rows as CSV or JSON",
			Usage:       "Hand selected rows to another system",
			Parameters:  "sheet_path (required), format (required: csv|json), output_path (optional), sheet (optional)",
		},
		{
			Name:        "bol_server_info",
			Description: "Show configuration, input files and tool usage",
			Usage:       "Start here to see what is available",
			Parameters:  "none",
		},
	}
}

const usageGuidance = `Typical workflow:
1. bol_server_info to see the templates and spreadsheets in the working directory
2. bol_template_fields on the template to confirm its field names
3. bol_preview_names on the spreadsheet to check output names
4. bol_generate to write the archive
Export path: bol_select to pick rows, then bol_export as csv or json.
Paths are relative to the working directory; paths outside it are rejected.`
