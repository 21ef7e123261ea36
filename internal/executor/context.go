package executor

import (
	"path/filepath"
	"time"
)

// ExecutionContext is the mutable state of one site run: the window stack,
// the last known page URL and where artifacts land. It is created when the
// run starts, owned by the Engine for the run's duration and never shared
// between runs.
type ExecutionContext struct {
	Site        string
	OutputDir   string
	DownloadDir string
	Started     time.Time

	windows    []string
	currentURL string
}

// NewExecutionContext creates the context of one site run. Downloads land in
// outputDir/downloads.
func NewExecutionContext(site, outputDir string) *ExecutionContext {
	return &ExecutionContext{
		Site:        site,
		OutputDir:   outputDir,
		DownloadDir: filepath.Join(outputDir, "downloads"),
		Started:     time.Now(),
	}
}

// ActiveWindow returns the handle on top of the stack, or "".
func (c *ExecutionContext) ActiveWindow() string {
	if len(c.windows) == 0 {
		return ""
	}
	return c.windows[len(c.windows)-1]
}

// Windows returns a copy of the stack, base first.
func (c *ExecutionContext) Windows() []string {
	return append([]string(nil), c.windows...)
}

// Depth returns the number of stacked windows.
func (c *ExecutionContext) Depth() int {
	return len(c.windows)
}

// CurrentURL returns the URL observed when the last action completed.
func (c *ExecutionContext) CurrentURL() string {
	return c.currentURL
}

func (c *ExecutionContext) pushWindow(handle string) {
	c.windows = append(c.windows, handle)
}

func (c *ExecutionContext) popWindow() string {
	if len(c.windows) == 0 {
		return ""
	}
	top := c.windows[len(c.windows)-1]
	c.windows = c.windows[:len(c.windows)-1]
	return top
}

func (c *ExecutionContext) stacked(handle string) bool {
	for _, h := range c.windows {
		if h == handle {
			return true
		}
	}
	return false
}
