package reporter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/amosWeiskopf/pagesmith/internal/models"
	"github.com/amosWeiskopf/pagesmith/pkg/utils"
)

// Format names a report rendering.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts json, markdown (or md) and html, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// Render writes a page report in the requested format
func Render(w io.Writer, report *models.PageReport, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatMarkdown:
		return writeMarkdown(w, report, 0)
	case FormatHTML:
		return writeHTML(w, report, 0)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// RenderResult writes a stored result. JSON keeps the flattened row shape.
func RenderResult(w io.Writer, result models.Result, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatMarkdown:
		return writeMarkdown(w, result.Report(), result.ID)
	case FormatHTML:
		return writeHTML(w, result.Report(), result.ID)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// RenderTable writes one line per stored result.
func RenderTable(w io.Writer, results []models.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tURL\tTITLE\tINTERNAL\tEXTERNAL\tBROKEN\tLOGIN\tCREATED")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%t\t%s\n",
			r.ID,
			utils.TruncateText(r.URL, 60),
			utils.TruncateText(r.Title, 40),
			r.InternalLinks,
			r.ExternalLinks,
			len(r.BrokenLinks),
			r.HasLoginForm,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

type headingRow struct {
	Level string
	Count int
}

func headingRows(h models.Headings) []headingRow {
	rows := make([]headingRow, 0, 6)
	for level := 1; level <= 6; level++ {
		rows = append(rows, headingRow{Level: fmt.Sprintf("h%d", level), Count: h.Level(level)})
	}
	return rows
}

type htmlData struct {
	ID       int64
	Report   *models.PageReport
	Headings []headingRow
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Page Report - {{.Report.URL}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 2rem;
            border-radius: 10px;
            margin-bottom: 2rem;
        }
        .card {
            background: white;
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(160px, 1fr));
            gap: 1rem;
        }
        .item {
            text-align: center;
            padding: 1rem;
            background: #f8f9fa;
            border-radius: 8px;
        }
        .value {
            font-size: 2rem;
            font-weight: bold;
            color: #667eea;
        }
        .label {
            color: #666;
            font-size: 0.9rem;
        }
        .broken {
            border-left: 4px solid #dc3545;
            padding: 0.5rem 1rem;
            margin: 0.5rem 0;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Report.Title}}</h1>
        <p>{{.Report.URL}}{{if .ID}} (result #{{.ID}}){{end}}</p>
        {{if not .Report.AnalyzedAt.IsZero}}<p>Analyzed on {{.Report.AnalyzedAt.Format "January 2, 2006 15:04 MST"}}</p>{{end}}
    </div>

    <div class="card">
        <h2>Summary</h2>
        <p>HTML version: {{.Report.HTMLVersion}}</p>
        <p>Login form: {{if .Report.HasLoginForm}}yes{{else}}no{{end}}</p>
        <div class="grid">
            <div class="item"><div class="value">{{.Report.InternalLinks}}</div><div class="label">Internal links</div></div>
            <div class="item"><div class="value">{{.Report.ExternalLinks}}</div><div class="label">External links</div></div>
            <div class="item"><div class="value">{{len .Report.BrokenLinks}}</div><div class="label">Broken links</div></div>
        </div>
    </div>

    <div class="card">
        <h2>Headings</h2>
        <div class="grid">
            {{range .Headings}}
            <div class="item"><div class="value">{{.Count}}</div><div class="label">{{.Level}}</div></div>
            {{end}}
        </div>
    </div>

    {{if .Report.BrokenLinks}}
    <div class="card">
        <h2>Broken Links</h2>
        {{range .Report.BrokenLinks}}
        <div class="broken"><code>{{.Status}}</code> <a href="{{.URL}}">{{.URL}}</a></div>
        {{end}}
    </div>
    {{end}}
</body>
</html>
`))

func writeHTML(w io.Writer, report *models.PageReport, id int64) error {
	var buf bytes.Buffer
	data := htmlData{ID: id, Report: report, Headings: headingRows(report.Headings)}
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func writeMarkdown(w io.Writer, report *models.PageReport, id int64) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Page Report for %s\n\n", report.URL)
	if id != 0 {
		fmt.Fprintf(&buf, "*Result #%d*\n\n", id)
	}
	if !report.AnalyzedAt.IsZero() {
		fmt.Fprintf(&buf, "*Analyzed on %s*\n\n", report.AnalyzedAt.Format("January 2, 2006 15:04 MST"))
	}

	fmt.Fprintf(&buf, "## Summary\n\n")
	fmt.Fprintf(&buf, "| Field | Value |\n")
	fmt.Fprintf(&buf, "|-------|-------|\n")
	fmt.Fprintf(&buf, "| Title | %s |\n", escapeCell(report.Title))
	fmt.Fprintf(&buf, "| HTML version | %s |\n", escapeCell(report.HTMLVersion))
	fmt.Fprintf(&buf, "| Internal links | %d |\n", report.InternalLinks)
	fmt.Fprintf(&buf, "| External links | %d |\n", report.ExternalLinks)
	fmt.Fprintf(&buf, "| Login form | %t |\n\n", report.HasLoginForm)

	fmt.Fprintf(&buf, "## Headings\n\n")
	fmt.Fprintf(&buf, "| Level | Count |\n")
	fmt.Fprintf(&buf, "|-------|-------|\n")
	for _, row := range headingRows(report.Headings) {
		fmt.Fprintf(&buf, "| %s | %d |\n", row.Level, row.Count)
	}
	fmt.Fprintf(&buf, "\n")

	fmt.Fprintf(&buf, "## Broken Links\n\n")
	if len(report.BrokenLinks) == 0 {
		fmt.Fprintf(&buf, "None found.\n")
	}
	for _, link := range report.BrokenLinks {
		fmt.Fprintf(&buf, "- `%s` %s\n", link.Status, link.URL)
	}

	_, err := buf.WriteTo(w)
	return err
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
