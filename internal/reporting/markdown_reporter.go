package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

var markdownEscaper = strings.NewReplacer("|", `\|`, "\n", "<br>", "\r", "")

// MarkdownReporter renders reports as GitHub flavoured markdown.
type MarkdownReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

func NewMarkdownReporter(writer io.WriteCloser) *MarkdownReporter {
	return &MarkdownReporter{writer: writer}
}

func (r *MarkdownReporter) Write(report shaping.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", report.Title)
	for _, m := range report.Metadata {
		fmt.Fprintf(&b, "- **%s**: %s\n", m.Key, m.Value)
	}

	for _, site := range report.Sites {
		fmt.Fprintf(&b, "\n## %s\n\n", siteLabel(site))
		if site.Counts != nil {
			b.WriteString("| New | Removed | Unchanged |\n|---|---|---|\n")
			fmt.Fprintf(&b, "| %d | %d | %d |\n\n", site.Counts.New, site.Counts.Removed, site.Counts.Unchanged)
		}
		if site.Error != "" {
			fmt.Fprintf(&b, "> **Error:** %s\n\n", site.Error)
		}
		for _, g := range site.Groups {
			fmt.Fprintf(&b, "### %s\n\n", g.Heading)
			if g.Webpage != "" {
				fmt.Fprintf(&b, "Webpage: <%s>\n\n", g.Webpage)
			}
			for _, item := range g.Items {
				writeMarkdownItem(&b, item)
			}
		}
	}

	if len(report.Notices) > 0 {
		b.WriteString("\n## Notices\n")
		for _, n := range report.Notices {
			fmt.Fprintf(&b, "\n### %s\n\n", n.Name)
			fmt.Fprintf(&b, "Site: %s, action: %s, webpage: <%s>\n\n", n.Site, n.Action, n.Webpage)
			rows := make([][]string, 0, len(n.Rows))
			for _, row := range n.Rows {
				rows = append(rows, []string{row.Date, row.Subject, row.Remarks, row.Link})
			}
			writeMarkdownTable(&b, []string{"Date", "Subject", "Remarks", "Link"}, rows)
		}
	}

	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *MarkdownReporter) Close() error {
	return r.writer.Close()
}

func writeMarkdownItem(b *strings.Builder, item shaping.Item) {
	fmt.Fprintf(b, "#### %s", item.Name)
	if item.Status != "" {
		fmt.Fprintf(b, " `%s`", item.Status)
	}
	b.WriteString("\n\n")
	if len(item.Titles) > 0 {
		fmt.Fprintf(b, "_%s_\n\n", strings.Join(item.Titles, " > "))
	}

	for _, block := range item.Content {
		switch {
		case block.Kind == shaping.BlockTable && block.Table != nil && !block.Table.Empty():
			rows := block.Table.Rows
			writeMarkdownTable(b, rows[0], rows[1:])
		case block.Text != "":
			b.WriteString(block.Text)
			b.WriteString("\n\n")
		}
	}
	if item.Diff != "" {
		b.WriteString("```diff\n")
		b.WriteString(strings.TrimRight(item.Diff, "\n"))
		b.WriteString("\n```\n\n")
	}
}

// writeMarkdownTable uses the first row as header; ragged rows are padded.
func writeMarkdownTable(b *strings.Builder, header []string, rows [][]string) {
	width := len(header)
	for _, row := range rows {
		width = max(width, len(row))
	}
	if width == 0 {
		return
	}

	writeRow := func(cells []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(cells) {
				cell = markdownEscaper.Replace(cells[i])
			}
			b.WriteString(" " + cell + " |")
		}
		b.WriteString("\n")
	}

	writeRow(header)
	b.WriteString("|" + strings.Repeat("---|", width) + "\n")
	for _, row := range rows {
		writeRow(row)
	}
	b.WriteString("\n")
}
