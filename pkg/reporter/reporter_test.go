package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/pagesmith/internal/models"
)

func sampleReport() *models.PageReport {
	return &models.PageReport{
		URL:           "https://example.test/",
		Title:         "Example | Home",
		HTMLVersion:   "HTML5 or unknown",
		Headings:      models.Headings{H1: 1, H3: 4},
		InternalLinks: 3,
		ExternalLinks: 1,
		HasLoginForm:  true,
		BrokenLinks: []models.LinkStatus{
			{URL: "https://gone.test/", Status: models.StatusCode(404)},
			{URL: "https://down.test/<x>", Status: models.StatusError()},
		},
		AnalyzedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":         FormatJSON,
		"json":     FormatJSON,
		"Markdown": FormatMarkdown,
		"md":       FormatMarkdown,
		" html ":   FormatHTML,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "Example | Home", decoded["title"])
	assert.Equal(t, 3.0, decoded["internal_links"])
	links := decoded["broken_links"].([]any)
	require.Len(t, links, 2)
	assert.Equal(t, 404.0, links[0].(map[string]any)["status"])
	assert.Equal(t, "error", links[1].(map[string]any)["status"])
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatMarkdown))
	out := buf.String()

	assert.Contains(t, out, "# Page Report for https://example.test/")
	assert.Contains(t, out, `| Title | Example \| Home |`)
	assert.Contains(t, out, "| h3 | 4 |")
	assert.Contains(t, out, "| h6 | 0 |")
	assert.Contains(t, out, "- `404` https://gone.test/")
	assert.Contains(t, out, "- `error` https://down.test/<x>")
}

func TestRenderMarkdownNoBrokenLinks(t *testing.T) {
	report := sampleReport()
	report.BrokenLinks = []models.LinkStatus{}

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatMarkdown))
	assert.Contains(t, buf.String(), "None found.")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleReport(), FormatHTML))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<h1>Example | Home</h1>")
	assert.Contains(t, out, "<code>404</code>")
	assert.Contains(t, out, "<code>error</code>")
	// link text is escaped
	assert.Contains(t, out, "https://down.test/&lt;x&gt;")
	assert.NotContains(t, out, "result #")
}

func TestRenderResult(t *testing.T) {
	result := models.NewResult(sampleReport())
	result.ID = 7
	result.CreatedAt = time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, RenderResult(&buf, result, FormatJSON))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 7.0, decoded["id"])
	assert.Equal(t, 4.0, decoded["h3"])
	assert.NotContains(t, decoded, "headings")

	buf.Reset()
	require.NoError(t, RenderResult(&buf, result, FormatMarkdown))
	assert.Contains(t, buf.String(), "*Result #7*")

	buf.Reset()
	require.NoError(t, RenderResult(&buf, result, FormatHTML))
	assert.Contains(t, buf.String(), "result #7")
}

func TestRenderUnsupported(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, sampleReport(), Format("pdf")))
	assert.Error(t, RenderResult(&buf, models.Result{}, Format("pdf")))
}

func TestRenderTable(t *testing.T) {
	result := models.NewResult(sampleReport())
	result.ID = 3
	result.CreatedAt = time.Date(2024, 5, 2, 8, 15, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, RenderTable(&buf, []models.Result{result}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "https://example.test/")
	assert.Contains(t, lines[1], "2024-05-02 08:15:00")
	assert.Contains(t, lines[1], "true")
}
