package reporting

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/C0sCube/selenium-scrape/internal/shaping"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONReporter writes each report as an indented JSON document.
// It is thread safe.
type JSONReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

func (r *JSONReporter) Write(report shaping.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
