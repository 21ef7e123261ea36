// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"net/http"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// -- Element Mock --

// MockElement is a named element handle for use with MockSession.
type MockElement struct {
	ID  string
	Tag string
}

func (e *MockElement) TagName() string { return e.Tag }

// -- Session Mock --

// MockSession mocks the schemas.Session interface.
type MockSession struct {
	mock.Mock
}

var _ schemas.Session = (*MockSession)(nil)

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockSession) Find(ctx context.Context, q schemas.Query) (schemas.Element, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Element), args.Error(1)
}

func (m *MockSession) FindAll(ctx context.Context, q schemas.Query) ([]schemas.Element, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Element), args.Error(1)
}

func (m *MockSession) FindWithin(ctx context.Context, el schemas.Element, q schemas.Query) ([]schemas.Element, error) {
	args := m.Called(ctx, el, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Element), args.Error(1)
}

func (m *MockSession) Wait(ctx context.Context, p schemas.WaitPredicate, timeout time.Duration) (schemas.Element, error) {
	args := m.Called(ctx, p, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Element), args.Error(1)
}

func (m *MockSession) Click(ctx context.Context, el schemas.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockSession) ScrollIntoView(ctx context.Context, el schemas.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockSession) ReadAttribute(ctx context.Context, el schemas.Element, name string) (string, bool, error) {
	args := m.Called(ctx, el, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSession) ReadText(ctx context.Context, el schemas.Element) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockSession) ReadProperty(ctx context.Context, el schemas.Element, name string) (string, error) {
	args := m.Called(ctx, el, name)
	return args.String(0), args.Error(1)
}

func (m *MockSession) SetAttribute(ctx context.Context, el schemas.Element, name, value string) error {
	return m.Called(ctx, el, name, value).Error(0)
}

func (m *MockSession) RemoveAttribute(ctx context.Context, el schemas.Element, name string) error {
	return m.Called(ctx, el, name).Error(0)
}

func (m *MockSession) PageHTML(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// ExecuteScript stores the mocked return value into res when res is a
// *float64, *string or *bool.
func (m *MockSession) ExecuteScript(ctx context.Context, script string, res any) error {
	args := m.Called(ctx, script, res)
	if v := args.Get(0); v != nil {
		switch out := res.(type) {
		case *float64:
			*out = v.(float64)
		case *string:
			*out = v.(string)
		case *bool:
			*out = v.(bool)
		}
	}
	return args.Error(1)
}

func (m *MockSession) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSession) CapturePDF(ctx context.Context, opts schemas.PDFOptions) ([]byte, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*http.Cookie), args.Error(1)
}

func (m *MockSession) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockSession) WindowHandles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockSession) SwitchWindow(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}

func (m *MockSession) CloseWindow(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockSession) Close() error {
	return m.Called().Error(0)
}

// -- Session Factory Mock --

// MockSessionFactory mocks the schemas.SessionFactory interface.
type MockSessionFactory struct {
	mock.Mock
}

func (m *MockSessionFactory) NewSession(ctx context.Context, opts schemas.SessionOptions) (schemas.Session, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.Session), args.Error(1)
}

// -- Document Writer Mock --

// MockDocumentWriter mocks the schemas.DocumentWriter interface.
type MockDocumentWriter struct {
	mock.Mock
}

func (m *MockDocumentWriter) WriteText(path, content string) error {
	return m.Called(path, content).Error(0)
}

func (m *MockDocumentWriter) WriteBinary(path string, data []byte) error {
	return m.Called(path, data).Error(0)
}

func (m *MockDocumentWriter) EnsureDirs(root string, dirs ...string) (string, error) {
	args := m.Called(root, dirs)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentWriter) List(dir string) ([]string, error) {
	args := m.Called(dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDocumentWriter) ReadFile(path string) ([]byte, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// -- Store Mock --

// MockStore mocks the schemas.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) PersistRun(ctx context.Context, cache *schemas.Cache) (string, error) {
	args := m.Called(ctx, cache)
	return args.String(0), args.Error(1)
}

func (m *MockStore) LoadRun(ctx context.Context, runID string) (*schemas.Cache, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Cache), args.Error(1)
}

func (m *MockStore) LatestRuns(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
