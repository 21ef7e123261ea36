package executor

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/mocks"
	"github.com/C0sCube/selenium-scrape/internal/writer"
)

func newMockSession() *mocks.MockSession {
	m := new(mocks.MockSession)
	m.On("WindowHandles", mock.Anything).Return([]string{"w1"}, nil)
	m.On("CurrentURL", mock.Anything).Return("https://bank.test/rates", nil)
	return m
}

func TestExecute_PDFWaitsForHeightToSettle(t *testing.T) {
	m := newMockSession()
	m.On("ExecuteScript", mock.Anything, scrollHeightScript, mock.Anything).Return(100.0, nil).Once()
	m.On("ExecuteScript", mock.Anything, scrollHeightScript, mock.Anything).Return(200.0, nil).Twice()
	m.On("ExecuteScript", mock.Anything, scrollBottomScript, mock.Anything).Return(true, nil).Twice()
	m.On("CapturePDF", mock.Anything, schemas.PDFOptions{Landscape: true}).Return([]byte("%PDF"), nil).Once()

	fs := afero.NewMemMapFs()
	sleeps := 0
	e := New(m, writer.New(fs, zaptest.NewLogger(t)),
		WithLogger(zaptest.NewLogger(t)),
		WithSleeper(func(context.Context, time.Duration) error { sleeps++; return nil }),
	)

	pkt, err := e.Execute(context.Background(), schemas.ActionSpec{Action: schemas.ActionPDF, Landscape: true}, NewExecutionContext("TEST", "/out"))
	require.NoError(t, err)

	require.Len(t, pkt.Response, 1)
	assert.Equal(t, schemas.DefaultPDFName, pkt.Response[0].Name)
	assert.Equal(t, schemas.ContentPDF, pkt.Response[0].Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF")), pkt.Response[0].Value)
	assert.Equal(t, 2, sleeps)

	saved, err := afero.ReadFile(fs, "/out/webpage_pdf.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(saved))
	m.AssertExpectations(t)
}

func TestExecute_Screenshot(t *testing.T) {
	m := newMockSession()
	m.On("CaptureScreenshot", mock.Anything).Return([]byte("png-bytes"), nil).Once()

	fs := afero.NewMemMapFs()
	e := New(m, writer.New(fs, zaptest.NewLogger(t)))

	pkt, err := e.Execute(context.Background(), schemas.ActionSpec{Action: schemas.ActionScreenshot, ScreenshotName: "home"}, NewExecutionContext("TEST", "/out"))
	require.NoError(t, err)

	require.Len(t, pkt.Response, 1)
	assert.Equal(t, "home", pkt.Response[0].Name)
	assert.Equal(t, schemas.ContentScreenshot, pkt.Response[0].Type)
	exists, err := afero.Exists(fs, "/out/home.png")
	require.NoError(t, err)
	assert.True(t, exists)
	m.AssertExpectations(t)
}

func TestExecute_ScreenshotUnsupported(t *testing.T) {
	m := newMockSession()
	m.On("CaptureScreenshot", mock.Anything).Return(nil, schemas.ErrUnsupported).Once()

	e := New(m, writer.New(afero.NewMemMapFs(), zaptest.NewLogger(t)))

	pkt, err := e.Execute(context.Background(), schemas.ActionSpec{Action: schemas.ActionScreenshot}, NewExecutionContext("TEST", "/out"))
	require.NoError(t, err)

	require.Len(t, pkt.Response, 1)
	assert.Equal(t, schemas.MarkerError, pkt.Response[0].Marker)
	assert.False(t, pkt.DataPresent)
}

func TestExecute_ManualWaitsForCompletedFile(t *testing.T) {
	m := newMockSession()
	fs := afero.NewMemMapFs()
	ectx := NewExecutionContext("TEST", "/out")
	require.NoError(t, fs.MkdirAll(ectx.DownloadDir, 0o755))
	require.NoError(t, afero.WriteFile(fs, ectx.DownloadDir+"/old.csv", []byte("old"), 0o644))

	// The browser finishes the file during the first poll pause.
	e := New(m, writer.New(fs, zaptest.NewLogger(t)),
		WithSleeper(func(context.Context, time.Duration) error {
			_ = afero.WriteFile(fs, ectx.DownloadDir+"/report.csv", []byte("a,b\n1,2\n"), 0o644)
			_ = afero.WriteFile(fs, ectx.DownloadDir+"/next.csv.crdownload", []byte("partial"), 0o644)
			return nil
		}),
	)

	pkt, err := e.Execute(context.Background(), schemas.ActionSpec{Action: schemas.ActionManual, Timeout: 5}, ectx)
	require.NoError(t, err)

	require.Len(t, pkt.Response, 1)
	assert.Equal(t, "report.csv", pkt.Response[0].Name)
	assert.Equal(t, schemas.ContentCSV, pkt.Response[0].Type)
	assert.Equal(t, "a,b\n1,2\n", pkt.Response[0].Value)
}

func TestExecute_ManualTimesOut(t *testing.T) {
	m := newMockSession()
	e := New(m, writer.New(afero.NewMemMapFs(), zaptest.NewLogger(t)),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}),
	)

	pkt, err := e.Execute(context.Background(), schemas.ActionSpec{Action: schemas.ActionManual, Timeout: 0.02}, NewExecutionContext("TEST", "/out"))
	require.NoError(t, err)

	require.Len(t, pkt.Response, 1)
	assert.Equal(t, string(schemas.ActionManual), pkt.Response[0].Name)
	assert.Empty(t, pkt.Response[0].Value)
	assert.False(t, pkt.DataPresent)
}

func TestExecute_HTTPWithoutFetcher(t *testing.T) {
	m := newMockSession()
	e := New(m, writer.New(afero.NewMemMapFs(), zaptest.NewLogger(t)))

	pkt, err := e.Execute(context.Background(), schemas.ActionSpec{Action: schemas.ActionHTTP, URL: "https://bank.test/rates.csv"}, NewExecutionContext("TEST", "/out"))
	require.NoError(t, err)

	require.Len(t, pkt.Response, 1)
	assert.Equal(t, schemas.MarkerError, pkt.Response[0].Marker)
}
