// Package descriptions holds the long-form tool descriptions shown to MCP clients.
package descriptions

const (
	BOLGenerateDescription = `Fill a Bill of Lading template once per spreadsheet row and bundle the PDFs into a ZIP archive.

**When to use:** You have a fillable BOL template (PDF) and a spreadsheet (.xlsx or .csv) with one shipment per row.

**How it works:** Every template field whose name matches a column is set to the row's value. The fields 3rdParty, PrePaid and Collect are always set to "X", "" and "". Each PDF is named BOL_<BOLnum>_<Desc_1, 8 chars>_<FromName, 2 chars>_<SCAC>.pdf; rows without a BOLnum use ROW_<row number>.

**Examples:**
• "Generate all BOLs from loads.xlsx with BOL_template.pdf"
• "Build the archive from week42.csv, worksheet ignored, and save it as out/week42.zip"

**Output:** archive path, per-row names and sizes, warnings (missing columns, repeated names) and fields that could not be set.

**Best practices:** Run bol_template_fields first to confirm the template's field names match the spreadsheet header.`

	BOLPreviewNamesDescription = `Show the PDF file name every spreadsheet row will get, without filling anything.

**When to use:** Before generating, to spot rows that produce the same name or fall back to ROW_<n>.

**Examples:**
• "Which file names will loads.xlsx produce?"
• "Are there duplicate BOL numbers in week42.csv?"`

	BOLTemplateFieldsDescription = `List the fillable fields of a BOL template: fully qualified name, type and current value.

**When to use:** To check which spreadsheet columns will be written into the template, or to debug fields that stay empty.

**Examples:**
• "What fields does BOL_template.pdf have?"
• "Does the template have a SCAC field?"`

	BOLSelectDescription = `Choose which spreadsheet rows are included in the next bol_export.

**When to use:** Before exporting a subset of rows to CSV or JSON.

**How it works:** Rows are 1-based and accept lists and ranges ("1,3,5-7"). Without rows, the change applies to every row. reset=true selects every row again. Loading a different spreadsheet starts a fresh selection with every row selected.

**Examples:**
• "Exclude rows 2 and 4 of loads.xlsx"
• "Deselect everything, then select rows 10-20"`

	BOLExportDescription = `Write the selected spreadsheet rows as CSV (UTF-8 with BOM) or JSON (indented, non-ASCII kept).

**When to use:** To hand the chosen rows to another system; PDF generation is not involved.

**Examples:**
• "Export the selected rows of loads.xlsx as JSON"
• "Save the selection as selected.csv"

**Best practices:** Use bol_select first; without a selection every row is exported.`

	BOLServerInfoDescription = `Show the server configuration, the input files available in the working directory and how to use the tools.`
)
