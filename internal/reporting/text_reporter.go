package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	siteStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A9EFF"))
	headingStyle = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	statusStyles = map[string]lipgloss.Style{
		shaping.StatusNew:     lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")),
		shaping.StatusRemoved: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")),
	}
)

// TextReporter renders reports for a terminal. Tables are drawn with
// borders; styling degrades to plain text when the output is not a TTY.
type TextReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

func NewTextReporter(writer io.WriteCloser) *TextReporter {
	return &TextReporter{writer: writer}
}

func (r *TextReporter) Write(report shaping.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	b.WriteString(titleStyle.Render(report.Title))
	b.WriteString("\n")
	for _, m := range report.Metadata {
		fmt.Fprintf(&b, "%s: %s\n", m.Key, m.Value)
	}

	for _, site := range report.Sites {
		b.WriteString("\n")
		b.WriteString(siteStyle.Render(siteLabel(site)))
		b.WriteString("\n")
		if site.Counts != nil {
			fmt.Fprintf(&b, "new: %d  removed: %d  unchanged: %d\n", site.Counts.New, site.Counts.Removed, site.Counts.Unchanged)
		}
		if site.Error != "" {
			b.WriteString(errorStyle.Render("error: " + site.Error))
			b.WriteString("\n")
		}
		for _, g := range site.Groups {
			b.WriteString(headingStyle.Render(g.Heading))
			b.WriteString("\n")
			if g.Webpage != "" {
				fmt.Fprintf(&b, "webpage: %s\n", g.Webpage)
			}
			for _, item := range g.Items {
				writeTextItem(&b, item)
			}
		}
	}

	for _, n := range report.Notices {
		b.WriteString("\n")
		b.WriteString(siteStyle.Render(fmt.Sprintf("Notices: %s (%s)", n.Name, n.Site)))
		b.WriteString("\n")
		rows := make([][]string, 0, len(n.Rows))
		for _, row := range n.Rows {
			rows = append(rows, []string{row.Date, row.Subject, row.Remarks, row.Link})
		}
		b.WriteString(renderTable([]string{"Date", "Subject", "Remarks", "Link"}, rows))
		b.WriteString("\n")
	}

	if _, err := io.WriteString(r.writer, b.String()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (r *TextReporter) Close() error {
	return r.writer.Close()
}

func writeTextItem(b *strings.Builder, item shaping.Item) {
	label := "- " + item.Name
	if len(item.Titles) > 0 {
		label += " (" + strings.Join(item.Titles, " > ") + ")"
	}
	if item.Status != "" {
		style, ok := statusStyles[item.Status]
		if !ok {
			style = errorStyle
		}
		label += " " + style.Render("["+item.Status+"]")
	}
	b.WriteString(label)
	b.WriteString("\n")

	for _, block := range item.Content {
		switch {
		case block.Kind == shaping.BlockTable && block.Table != nil && !block.Table.Empty():
			b.WriteString(renderTable(nil, block.Table.Rows))
			b.WriteString("\n")
		case block.Text != "":
			b.WriteString(indent(block.Text, "  "))
			b.WriteString("\n")
		}
	}
	if item.Diff != "" {
		b.WriteString("  diff:\n")
		b.WriteString(indent(strings.TrimRight(item.Diff, "\n"), "    "))
		b.WriteString("\n")
	}
}

// renderTable pads ragged rows to a common width before drawing.
func renderTable(headers []string, rows [][]string) string {
	width := len(headers)
	for _, row := range rows {
		width = max(width, len(row))
	}
	padded := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, width)
		copy(cells, row)
		padded = append(padded, cells)
	}

	t := table.New().Border(lipgloss.NormalBorder()).Rows(padded...)
	if len(headers) > 0 {
		t = t.Headers(headers...)
	}
	return t.String()
}

func siteLabel(site shaping.SiteSection) string {
	if site.Name == "" || site.Name == site.Code {
		return site.Code
	}
	return fmt.Sprintf("%s (%s)", site.Code, site.Name)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
