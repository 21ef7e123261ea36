// Package reporting renders shaped reports to a file or stdout.
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

// Supported output formats.
const (
	FormatJSON     = "json"
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Reporter defines the interface for writing reports to an output.
type Reporter interface {
	// Write renders a single report.
	Write(report shaping.Report) error
	// Close finalizes the output and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	if !Supported(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer)
}

// NewForStream creates a reporter writing to w, which it never closes.
func NewForStream(format string, w io.Writer) (Reporter, error) {
	return NewWithWriter(format, &nopWriteCloser{w})
}

// NewWithWriter creates a reporter that takes ownership of writer.
func NewWithWriter(format string, writer io.WriteCloser) (Reporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONReporter(writer), nil
	case FormatText:
		return NewTextReporter(writer), nil
	case FormatMarkdown, "md":
		return NewMarkdownReporter(writer), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Supported reports whether format names a known reporter.
func Supported(format string) bool {
	switch format {
	case FormatJSON, FormatText, FormatMarkdown, "md":
		return true
	}
	return false
}
