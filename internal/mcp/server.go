package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/config"
	"github.com/a3tai/mcp-bol-filler/internal/descriptions"
	"github.com/a3tai/mcp-bol-filler/internal/export"
	"github.com/a3tai/mcp-bol-filler/internal/pdf"
)

// maxListedEntries bounds per-row listings in tool output.
const maxListedEntries = 25

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *bol.Service
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *bol.Service) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if service == nil {
		return nil, errors.New("service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
		logger:    slog.Default().With("component", "mcp"),
	}
	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	generateTool := mcp.NewTool(
		"bol_generate",
		mcp.WithDescription(descriptions.BOLGenerateDescription),
		mcp.WithString("template_path",
			mcp.Required(),
			mcp.Description("Fillable BOL template (PDF), relative to the working directory"),
		),
		mcp.WithString("sheet_path",
			mcp.Required(),
			mcp.Description("Spreadsheet (.xlsx or .csv) with one shipment per row"),
		),
		mcp.WithString("output_path",
			mcp.Description("Archive path (default: the configured archive name)"),
		),
		mcp.WithString("sheet",
			mcp.Description("Worksheet name (default: first worksheet)"),
		),
	)
	s.mcpServer.AddTool(generateTool, s.handleGenerate)

	previewTool := mcp.NewTool(
		"bol_preview_names",
		mcp.WithDescription(descriptions.BOLPreviewNamesDescription),
		mcp.WithString("sheet_path",
			mcp.Required(),
			mcp.Description("Spreadsheet (.xlsx or .csv), relative to the working directory"),
		),
		mcp.WithString("sheet",
			mcp.Description("Worksheet name (default: first worksheet)"),
		),
	)
	s.mcpServer.AddTool(previewTool, s.handlePreviewNames)

	fieldsTool := mcp.NewTool(
		"bol_template_fields",
		mcp.WithDescription(descriptions.BOLTemplateFieldsDescription),
		mcp.WithString("template_path",
			mcp.Required(),
			mcp.Description("Fillable BOL template (PDF), relative to the working directory"),
		),
	)
	s.mcpServer.AddTool(fieldsTool, s.handleTemplateFields)

	selectTool := mcp.NewTool(
		"bol_select",
		mcp.WithDescription(descriptions.BOLSelectDescription),
		mcp.WithString("sheet_path",
			mcp.Required(),
			mcp.Description("Spreadsheet (.xlsx or .csv), relative to the working directory"),
		),
		mcp.WithString("rows",
			mcp.Description("1-based rows such as 1,3,5-7 (default: every row)"),
		),
		mcp.WithBoolean("use",
			mcp.Description("Include (true) or exclude (false) the rows (default: true)"),
		),
		mcp.WithBoolean("reset",
			mcp.Description("Select every row again"),
		),
		mcp.WithString("sheet",
			mcp.Description("Worksheet name (default: first worksheet)"),
		),
	)
	s.mcpServer.AddTool(selectTool, s.handleSelect)

	exportTool := mcp.NewTool(
		"bol_export",
		mcp.WithDescription(descriptions.BOLExportDescription),
		mcp.WithString("sheet_path",
			mcp.Required(),
			mcp.Description("Spreadsheet (.xlsx or .csv), relative to the working directory"),
		),
		mcp.WithString("format",
			mcp.Required(),
			mcp.Enum(string(export.FormatCSV), string(export.FormatJSON)),
			mcp.Description("Output format"),
		),
		mcp.WithString("output_path",
			mcp.Description("Output file (default: BOL_Selected.csv or BOL_Selected.json)"),
		),
		mcp.WithString("sheet",
			mcp.Description("Worksheet name (default: first worksheet)"),
		),
	)
	s.mcpServer.AddTool(exportTool, s.handleExport)

	infoTool := mcp.NewTool(
		"bol_server_info",
		mcp.WithDescription(descriptions.BOLServerInfoDescription),
	)
	s.mcpServer.AddTool(infoTool, s.handleServerInfo)
}

// Handler functions
func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templatePath, err := request.RequireString("template_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sheetPath, err := request.RequireString("sheet_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := bol.GenerateRequest{
		TemplatePath: templatePath,
		SheetPath:    sheetPath,
		SheetName:    request.GetString("sheet", ""),
		OutputPath:   request.GetString("output_path", ""),
	}
	result, err := s.service.GenerateFile(ctx, req)
	if err != nil {
		s.logger.Warn("generate failed", "template", templatePath, "sheet", sheetPath, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatGenerateResult(result)), nil
}

func (s *Server) handlePreviewNames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sheetPath, err := request.RequireString("sheet_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.PreviewNamesFile(bol.PreviewNamesRequest{
		SheetPath: sheetPath,
		SheetName: request.GetString("sheet", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatPreviewNamesResult(result)), nil
}

func (s *Server) handleTemplateFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templatePath, err := request.RequireString("template_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	info, err := s.service.TemplateFields(bol.TemplateFieldsRequest{TemplatePath: templatePath})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatTemplateInfo(info)), nil
}

func (s *Server) handleSelect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sheetPath, err := request.RequireString("sheet_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Select(bol.SelectRequest{
		SheetPath: sheetPath,
		SheetName: request.GetString("sheet", ""),
		RowList:   request.GetString("rows", ""),
		Use:       request.GetBool("use", true),
		Reset:     request.GetBool("reset", false),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatSelectResult(result)), nil
}

func (s *Server) handleExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sheetPath, err := request.RequireString("sheet_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := request.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.ExportFile(bol.ExportRequest{
		SheetPath:  sheetPath,
		SheetName:  request.GetString("sheet", ""),
		Format:     export.Format(format),
		OutputPath: request.GetString("output_path", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Exported %d selected row(s) as %s\n", result.Rows, strings.ToUpper(string(result.Format)))
	text += fmt.Sprintf("File: %s\n", result.OutputPath)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.service.ServerInfo(s.config.ServerName, s.config.Version)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(s.formatServerInfoResult(result)), nil
}

// Formatting methods
func (s *Server) formatGenerateResult(result *bol.GenerateFileResult) string {
	text := fmt.Sprintf("Generated %d BOL(s) into %s\n", result.Rows, result.OutputPath)
	text += fmt.Sprintf("Archive size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Field errors: %d\n", result.FieldErrors)

	text += formatWarnings(result.Warnings)

	if len(result.Entries) > 0 {
		text += "\nFiles:\n"
		for i, entry := range result.Entries {
			if i >= maxListedEntries {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.Entries)-maxListedEntries)
				break
			}
			text += fmt.Sprintf("%d. %s (%d bytes, %d fields set)\n", entry.Index+1, entry.Name, entry.Size, entry.Applied)
		}
	}

	if result.FieldErrors > 0 {
		text += "\nFields that could not be set:\n"
		listed := 0
		for _, entry := range result.Entries {
			for _, fe := range entry.FieldErrors {
				if listed >= maxListedEntries {
					text += "   ...\n"
					return text
				}
				text += fmt.Sprintf("   Row %d: %s\n", entry.Index+1, fe.Error())
				listed++
			}
		}
	}

	return text
}

func (s *Server) formatPreviewNamesResult(result *bol.PreviewNamesResult) string {
	text := fmt.Sprintf("Output names for %s", result.SheetPath)
	if result.Sheet != "" {
		text += fmt.Sprintf(" (sheet %s)", result.Sheet)
	}
	text += fmt.Sprintf(": %d row(s)\n", len(result.Names))

	text += formatWarnings(result.Warnings)

	if len(result.Names) > 0 {
		text += "\n"
		for _, n := range result.Names {
			text += fmt.Sprintf("%d. %s\n", n.Row, n.Name)
		}
	}

	if len(result.Duplicates) > 0 {
		text += "\nRepeated names (later files overwrite earlier ones when extracted):\n"
		for _, name := range result.Duplicates {
			text += fmt.Sprintf("   • %s\n", name)
		}
	}

	return text
}

func (s *Server) formatTemplateInfo(info *pdf.TemplateInfo) string {
	text := "BOL Template\n"
	text += fmt.Sprintf("File: %s\n", info.Name)
	text += fmt.Sprintf("Size: %d bytes\n", info.Size)
	text += fmt.Sprintf("Pages: %d\n", info.Pages)
	if info.Title != "" {
		text += fmt.Sprintf("Title: %s\n", info.Title)
	}
	if info.Producer != "" {
		text += fmt.Sprintf("Producer: %s\n", info.Producer)
	}

	if len(info.Fields) == 0 {
		text += "\nNo fillable fields found.\n"
		return text
	}

	text += fmt.Sprintf("\nFields (%d):\n", len(info.Fields))
	for i, f := range info.Fields {
		text += fmt.Sprintf("%d. %s [%s]", i+1, f.Name, f.Type)
		if f.Value != "" {
			text += fmt.Sprintf(" = %q", f.Value)
		}
		text += "\n"
	}

	return text
}

func (s *Server) formatSelectResult(result *bol.SelectResult) string {
	text := fmt.Sprintf("Selection for %s: %d of %d row(s) selected\n", result.SheetPath, result.Selected, result.Rows)
	if result.Rebound {
		text += "New spreadsheet loaded; the previous selection was discarded.\n"
	}

	text += formatWarnings(result.Warnings)

	if excluded := excludedRows(result.Flags); excluded != "" {
		text += fmt.Sprintf("Excluded rows: %s\n", excluded)
	}
	return text
}

func (s *Server) formatServerInfoResult(result *bol.ServerInfo) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Working Directory: %s\n", result.Directory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("📦 Archive Name: %s\n", result.ArchiveName)
	text += fmt.Sprintf("🏷️  Name Policy: %s\n", result.NamePolicy)
	text += fmt.Sprintf("⚙️  Workers: %d\n", result.Workers)
	text += fmt.Sprintf("🗃️  Sheet cache: %d/%d tables, %d hits, %d misses\n\n",
		result.SheetCache.Size, result.SheetCache.Capacity, result.SheetCache.Hits, result.SheetCache.Misses)

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Directory Contents (%d input files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%s, %d bytes)\n", i+1, file.Name, file.Kind, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No templates or spreadsheets found\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance

	return text
}

func formatWarnings(warnings []bol.Warning) string {
	if len(warnings) == 0 {
		return ""
	}
	text := "\n⚠️  Warnings:\n"
	for _, w := range warnings {
		text += fmt.Sprintf("   • [%s] %s\n", w.Code, w.Message)
	}
	return text
}

// excludedRows renders the unselected rows as a 1-based list.
func excludedRows(flags []bool) string {
	var parts []string
	for i := 0; i < len(flags); i++ {
		if flags[i] {
			continue
		}
		start := i
		for i+1 < len(flags) && !flags[i+1] {
			i++
		}
		if start == i {
			parts = append(parts, fmt.Sprintf("%d", start+1))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start+1, i+1))
		}
	}
	return strings.Join(parts, ",")
}

// Run serves MCP over stdin/stdout until the input closes or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("serving MCP over stdio",
		"server", s.config.ServerName,
		"version", s.config.Version,
		"directory", s.service.Directory(),
	)

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
