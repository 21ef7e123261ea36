package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
	"github.com/C0sCube/selenium-scrape/internal/executor"
	"github.com/C0sCube/selenium-scrape/internal/mocks"
	"github.com/C0sCube/selenium-scrape/internal/packet"
	"github.com/C0sCube/selenium-scrape/internal/sites"
)

const testCatalogue = `
presets:
  check_button:
    action: none
    value: "#go"
sites:
  A_OK:
    bank_name: Alpha Bank
    base_url: https://alpha.test
    headers:
      Referer: https://alpha.test
    blocks:
      - - check_button
        - unknown_preset
      - - action: none
          value: "#go"
  B_NAV:
    bank_name: Beta Bank
    base_url: https://beta.test
    blocks:
      - - check_button
  C_FACTORY:
    bank_name: Gamma Bank
    base_url: https://gamma.test
    blocks:
      - - check_button
`

var fixedNow = time.Date(2025, 8, 11, 23, 20, 11, 0, time.UTC)

// -- Test Setup Helper --

type pauseRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (p *pauseRecorder) sleep(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = append(p.pauses, d)
	return nil
}

func (p *pauseRecorder) count(d time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, got := range p.pauses {
		if got == d {
			n++
		}
	}
	return n
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Engine.Concurrency = 2
	cfg.Engine.SitePause = 7 * time.Second
	cfg.Engine.MaxJitter = time.Second
	cfg.Engine.SiteTimeout = time.Minute
	cfg.Output.RootDir = "/out"
	cfg.Output.DataDir = "data"
	return cfg
}

func forSite(code string) any {
	return mock.MatchedBy(func(o schemas.SessionOptions) bool { return o.Site == code })
}

func newTestOrchestrator(t *testing.T, factory schemas.SessionFactory, pauses *pauseRecorder) (*Orchestrator, *sites.Catalogue) {
	t.Helper()
	catalogue, err := sites.Parse([]byte(testCatalogue))
	require.NoError(t, err)

	o := New(testConfig(), catalogue, factory, new(mocks.MockDocumentWriter),
		WithLogger(zaptest.NewLogger(t)),
		WithSleeper(pauses.sleep),
		WithClock(func() time.Time { return fixedNow }),
		WithFetcherFactory(func(*sites.Site) (executor.Fetcher, error) { return nil, nil }),
		WithBuilder(packet.New(
			packet.WithClock(func() time.Time { return fixedNow }),
			packet.WithIDSource(func() string { return "uid" }),
		)),
	)
	return o, catalogue
}

// -- Test Cases --

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	okSession := new(mocks.MockSession)
	okSession.On("Navigate", mock.Anything, "https://alpha.test").Return(nil).Once()
	okSession.On("Find", mock.Anything, mock.Anything).Return(&mocks.MockElement{ID: "go", Tag: "button"}, nil).Times(2)
	okSession.On("WindowHandles", mock.Anything).Return([]string{"w1"}, nil).Maybe()
	okSession.On("CurrentURL", mock.Anything).Return("https://alpha.test/", nil)
	okSession.On("Close").Return(nil).Once()

	navSession := new(mocks.MockSession)
	navSession.On("Navigate", mock.Anything, "https://beta.test").Return(errors.New("net::ERR_NAME_NOT_RESOLVED")).Once()
	navSession.On("Close").Return(errors.New("already closed")).Once()

	factory := new(mocks.MockSessionFactory)
	factory.On("NewSession", mock.Anything, mock.MatchedBy(func(o schemas.SessionOptions) bool {
		return o.Site == "A_OK" &&
			o.Headers["Referer"] == "https://alpha.test" &&
			o.DownloadDir == "/out/data/2025-08-11/A_OK/downloads"
	})).Return(okSession, nil).Once()
	factory.On("NewSession", mock.Anything, forSite("B_NAV")).Return(navSession, nil).Once()
	factory.On("NewSession", mock.Anything, forSite("C_FACTORY")).Return(nil, errors.New("chrome not found")).Once()

	pauses := &pauseRecorder{}
	o, catalogue := newTestOrchestrator(t, factory, pauses)
	selected, err := catalogue.Select(nil)
	require.NoError(t, err)

	records, err := o.Run(context.Background(), selected)
	require.NoError(t, err)
	require.Len(t, records, 3)

	t.Run("records keep catalogue order", func(t *testing.T) {
		assert.Equal(t, "A_OK", records[0].BankCode)
		assert.Equal(t, "B_NAV", records[1].BankCode)
		assert.Equal(t, "C_FACTORY", records[2].BankCode)
	})

	t.Run("successful site has one packet per resolved step", func(t *testing.T) {
		rec := records[0]
		assert.Empty(t, rec.Error)
		assert.Equal(t, "Alpha Bank", rec.BankName)
		require.Len(t, rec.ScrapedData, 2)
		for _, p := range rec.ScrapedData {
			assert.Equal(t, schemas.ActionNone, p.Action)
			assert.Equal(t, "https://alpha.test/", p.Webpage)
			assert.False(t, p.DataPresent)
		}
	})

	t.Run("failed sites carry the error in their record", func(t *testing.T) {
		for _, rec := range records[1:] {
			assert.NotEmpty(t, rec.Error)
			require.Len(t, rec.ScrapedData, 1)
			require.Len(t, rec.ScrapedData[0].Response, 1)
			assert.Equal(t, schemas.MarkerError, rec.ScrapedData[0].Response[0].Marker)
		}
		assert.Contains(t, records[1].Error, "ERR_NAME_NOT_RESOLVED")
		assert.Equal(t, "https://beta.test", records[1].ScrapedData[0].Webpage)
		assert.Contains(t, records[2].Error, "chrome not found")
	})

	assert.Equal(t, 2, pauses.count(7*time.Second), "pauses between sites but not after the last")
	okSession.AssertExpectations(t)
	navSession.AssertExpectations(t)
	factory.AssertExpectations(t)
}

func TestRun_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	factory := new(mocks.MockSessionFactory)
	o, catalogue := newTestOrchestrator(t, factory, &pauseRecorder{})
	selected, err := catalogue.Select([]string{"A_OK", "B_NAV"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := o.Run(ctx, selected)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, records, 2)
	factory.AssertNotCalled(t, "NewSession", mock.Anything, mock.Anything)
}

func TestRunSite_ConfigurationErrorStopsSite(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := new(mocks.MockSession)
	session.On("Navigate", mock.Anything, "https://alpha.test").Return(nil)
	session.On("Close").Return(nil).Once()

	factory := new(mocks.MockSessionFactory)
	factory.On("NewSession", mock.Anything, forSite("A_OK")).Return(session, nil)

	o, _ := newTestOrchestrator(t, factory, &pauseRecorder{})
	site := &sites.Site{
		Code:     "A_OK",
		BankName: "Alpha Bank",
		BankCode: "A_OK",
		BaseURL:  "https://alpha.test",
		Blocks: []schemas.Block{{
			{Action: &schemas.ActionSpec{Action: schemas.ActionNone, Value: "#go", WaitUntil: "sometimes", WaitValue: "#go"}},
		}},
	}

	rec := o.RunSite(context.Background(), site)
	assert.NotEmpty(t, rec.Error)
	require.Len(t, rec.ScrapedData, 1)
	assert.Equal(t, schemas.MarkerError, rec.ScrapedData[0].Response[0].Marker)
	session.AssertExpectations(t)
}

func TestSettings(t *testing.T) {
	o := New(testConfig(), &sites.Catalogue{}, new(mocks.MockSessionFactory), new(mocks.MockDocumentWriter))
	s := o.settings()
	assert.Equal(t, 2*time.Second, s.PDFSettleInterval)
	assert.Equal(t, 50, s.PDFMaxScrolls)
	assert.Equal(t, time.Second, s.PollInterval)
	assert.Equal(t, 6, s.LabelDepth)

	o.cfg.Engine.ManualPollInterval = 0
	assert.Equal(t, executor.DefaultSettings().PollInterval, o.settings().PollInterval)
}
