package schemas

import (
	"context"
	"net/http"
	"time"
)

// -- Browser Session Interface --

// Session is the browser capability the execution engine drives. A session
// is owned by exactly one site run and is never used concurrently.
//
//go:generate mockery --name Session --output ../../internal/mocks --outpkg mocks
type Session interface {
	// Navigate loads url in the active window and waits for the document.
	Navigate(ctx context.Context, url string) error
	// Find returns the first element matching q or ErrElementNotFound.
	Find(ctx context.Context, q Query) (Element, error)
	// FindAll returns every element matching q. No match is not an error.
	FindAll(ctx context.Context, q Query) ([]Element, error)
	// FindWithin evaluates q relative to el.
	FindWithin(ctx context.Context, el Element, q Query) ([]Element, error)
	// Wait blocks until p holds or timeout elapses (ErrWaitTimeout). The
	// returned element is nil for StateHidden.
	Wait(ctx context.Context, p WaitPredicate, timeout time.Duration) (Element, error)
	Click(ctx context.Context, el Element) error
	ScrollIntoView(ctx context.Context, el Element) error
	// ReadAttribute returns the attribute value and whether it was present.
	ReadAttribute(ctx context.Context, el Element, name string) (string, bool, error)
	// ReadText returns the rendered (visible) text of el.
	ReadText(ctx context.Context, el Element) (string, error)
	// ReadProperty returns a DOM property such as textContent or outerHTML.
	ReadProperty(ctx context.Context, el Element, name string) (string, error)
	SetAttribute(ctx context.Context, el Element, name, value string) error
	RemoveAttribute(ctx context.Context, el Element, name string) error
	// PageHTML returns the serialised document of the active window.
	PageHTML(ctx context.Context) (string, error)
	ExecuteScript(ctx context.Context, script string, res any) error
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	CapturePDF(ctx context.Context, opts PDFOptions) ([]byte, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	CurrentURL(ctx context.Context) (string, error)
	WindowHandles(ctx context.Context) ([]string, error)
	SwitchWindow(ctx context.Context, handle string) error
	// CloseWindow closes the active window. Callers switch afterwards.
	CloseWindow(ctx context.Context) error
	// Close releases every resource held by the session.
	Close() error
}

// SessionFactory creates one Session per site run.
type SessionFactory interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// SessionOptions carries per-site session settings.
type SessionOptions struct {
	Site        string
	Headers     map[string]string
	DownloadDir string
}

// -- Document Writer Interface --

// DocumentWriter persists cleaned content and binary blobs.
//
//go:generate mockery --name DocumentWriter --output ../../internal/mocks --outpkg mocks
type DocumentWriter interface {
	WriteText(path, content string) error
	WriteBinary(path string, data []byte) error
	// EnsureDirs creates root/dirs... and returns the joined path.
	EnsureDirs(root string, dirs ...string) (string, error)
	// List returns the base names of the regular files in dir.
	List(dir string) ([]string, error)
	ReadFile(path string) ([]byte, error)
}

// -- Store Interface --

// Store persists run caches.
//
//go:generate mockery --name Store --output ../../internal/mocks --outpkg mocks
type Store interface {
	// PersistRun saves a full run and returns its identifier.
	PersistRun(ctx context.Context, cache *Cache) (string, error)
	// LoadRun rebuilds the cache of a stored run.
	LoadRun(ctx context.Context, runID string) (*Cache, error)
	// LatestRuns returns up to limit run identifiers, newest first.
	LatestRuns(ctx context.Context, limit int) ([]string, error)
}
