package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-bol-filler/internal/bol"
	"github.com/a3tai/mcp-bol-filler/internal/logging"
	"github.com/a3tai/mcp-bol-filler/internal/naming"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	sheetName  string
	output     string
	namePolicy string
	workers    int
	format     string
	dryRun     bool
	verbose    bool
}

// Report is the machine-readable result of one run.
type Report struct {
	Template   string              `json:"template"`
	Sheet      string              `json:"sheet"`
	Output     string              `json:"output,omitempty"`
	Size       int                 `json:"size,omitempty"`
	DryRun     bool                `json:"dry_run,omitempty"`
	Names      []bol.NamePreview   `json:"names,omitempty"`
	Result     *bol.GenerateResult `json:"result,omitempty"`
	Warnings   []bol.Warning       `json:"warnings,omitempty"`
	Duplicates []string            `json:"duplicates,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	flags := pflag.NewFlagSet("bol_generate", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.sheetName, "sheet", "", "Worksheet name (default: first worksheet)")
	flags.StringVarP(&opts.output, "output", "o", "", "Archive path (default: BOL_All.zip next to the spreadsheet)")
	flags.StringVar(&opts.namePolicy, "name-policy", string(naming.PolicyDerived), "File naming: derived or indexed")
	flags.IntVarP(&opts.workers, "workers", "w", 1, "Concurrent fills")
	flags.StringVar(&opts.format, "format", "text", "Report format: text, json")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Only print the file names")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")
	flags.Usage = func() { printUsage(stderr, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr, flags)
		return exitUsage
	}
	if flags.NArg() != 2 {
		fmt.Fprintf(stderr, "Error: TEMPLATE.pdf and SHEET are required\n\n")
		printUsage(stderr, flags)
		return exitUsage
	}
	if opts.format != "text" && opts.format != "json" {
		fmt.Fprintf(stderr, "Error: unknown format %q\n", opts.format)
		return exitUsage
	}
	policy, err := naming.ParsePolicy(opts.namePolicy)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if opts.workers < 1 {
		fmt.Fprintf(stderr, "Error: workers must be at least 1\n")
		return exitUsage
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	logger := logging.Setup(stderr, level, "text")

	report, err := generate(ctx, flags.Arg(0), flags.Arg(1), policy, opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	for _, w := range report.Warnings {
		fmt.Fprintf(stderr, "Warning [%s]: %s\n", w.Code, w.Message)
	}
	if err := writeReport(stdout, report, opts.format); err != nil {
		fmt.Fprintf(stderr, "Error writing report: %v\n", err)
		return exitError
	}
	return exitOK
}

func generate(ctx context.Context, templatePath, sheetPath string, policy naming.Policy, opts options, logger *slog.Logger) (*Report, error) {
	output := opts.output
	if output == "" {
		output = filepath.Join(filepath.Dir(sheetPath), bol.DefaultArchiveName)
	}

	// Command line paths are read and written as given.
	svc, err := bol.NewService(bol.Options{
		Directory: filepath.Dir(output),
		Workers:   opts.workers,
		Policy:    policy,
	}, logger)
	if err != nil {
		return nil, err
	}

	sheetData, err := os.ReadFile(sheetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read spreadsheet: %w", err)
	}
	table, warnings, err := svc.LoadSheet(filepath.Base(sheetPath), sheetData, opts.sheetName)
	if err != nil {
		return nil, err
	}

	report := &Report{Template: templatePath, Sheet: sheetPath, Warnings: warnings}

	if opts.dryRun {
		report.DryRun = true
		report.Names, report.Duplicates = svc.PreviewNames(table)
		return report, nil
	}

	templateData, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	tpl, err := svc.LoadTemplate(filepath.Base(templatePath), templateData)
	if err != nil {
		return nil, err
	}

	result, err := svc.Generate(ctx, tpl, table)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(output, result.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}

	report.Output = output
	report.Size = len(result.Data)
	report.Result = result
	report.Warnings = append(report.Warnings, result.Warnings...)
	report.Duplicates = result.Duplicates
	return report, nil
}

func writeReport(w io.Writer, report *Report, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if report.DryRun {
		for _, n := range report.Names {
			fmt.Fprintf(w, "%4d  %s\n", n.Row, n.Name)
		}
	} else {
		fmt.Fprintf(w, "Wrote %s (%d files, %d bytes)\n", report.Output, report.Result.Rows, report.Size)
		for _, e := range report.Result.Entries {
			fmt.Fprintf(w, "%4d  %s  %d bytes", e.Index+1, e.Name, e.Size)
			if len(e.FieldErrors) > 0 {
				fmt.Fprintf(w, "  (%d field errors)", len(e.FieldErrors))
			}
			fmt.Fprintln(w)
		}
	}
	for _, d := range report.Duplicates {
		fmt.Fprintf(w, "Repeated name: %s\n", d)
	}
	return nil
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(w, "bol_generate - fill a Bill of Lading template once per spreadsheet row")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  bol_generate [OPTIONS] TEMPLATE.pdf SHEET.xlsx|SHEET.csv")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprint(w, flags.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "  bol_generate BOL_template.pdf loads.xlsx")
	fmt.Fprintln(w, "  bol_generate --sheet Week42 -o out/week42.zip BOL_template.pdf loads.xlsx")
	fmt.Fprintln(w, "  bol_generate --dry-run --format json BOL_template.pdf loads.csv")
}
