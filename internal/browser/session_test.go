package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/config"
)

func TestScopedXPath(t *testing.T) {
	anchor := `(//*[@data-extract-scope="7"])[1]`
	cases := map[string]string{
		".":              anchor,
		".//td[1]":       anchor + "//td[1]",
		"./span":         anchor + "/span",
		"span[@class]":   anchor + "/span[@class]",
		"//h1":           "//h1",
		"(//tr)[last()]": "(//tr)[last()]",
	}
	for in, want := range cases {
		assert.Equal(t, want, scopedXPath(in, "7"), in)
	}
}

func TestMergeHandles(t *testing.T) {
	assert.Equal(t, []string{"a", "c", "d"}, mergeHandles([]string{"a", "b", "c"}, []string{"d", "c", "a"}))
	assert.Equal(t, []string{"x"}, mergeHandles(nil, []string{"x"}))
	assert.Empty(t, mergeHandles([]string{"a"}, nil))
}

func TestToHTTPCookies(t *testing.T) {
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	got := toHTTPCookies([]*network.Cookie{
		{Name: "sid", Value: "abc", Domain: ".bank.test", Path: "/", Secure: true, HTTPOnly: true, Session: true},
		{Name: "pref", Value: "en", Domain: "bank.test", Path: "/rates", Expires: float64(expires.Unix())},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "sid", got[0].Name)
	assert.True(t, got[0].HttpOnly)
	assert.True(t, got[0].Expires.IsZero())
	assert.Equal(t, "/rates", got[1].Path)
	assert.True(t, expires.Equal(got[1].Expires))
}

func TestCombineContext(t *testing.T) {
	type key struct{}
	primary := context.WithValue(context.Background(), key{}, "cdp")
	secondary, cancelSecondary := context.WithCancel(context.Background())

	combined, cancel := CombineContext(primary, secondary)
	defer cancel()
	assert.Equal(t, "cdp", combined.Value(key{}))

	cancelSecondary()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context was not canceled with the secondary context")
	}

	detached := Detach(combined)
	assert.NoError(t, detached.Err())
	assert.Nil(t, detached.Done())
	assert.Equal(t, "cdp", detached.Value(key{}))
}

// -- Live browser --

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome binary available")
	return ""
}

const livePage = `<html><body>
<h1 id="title">Deposit Rates</h1>
<div class="card"><span class="rate">7.10</span><a href="/popup" target="_blank" id="open">more</a></div>
<p id="hidden" style="display:none">secret</p>
</body></html>`

func TestSession_Live(t *testing.T) {
	execPath := findChrome(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "yes", r.Header.Get("X-Extract"))
		fmt.Fprint(w, livePage)
	})
	mux.HandleFunc("/popup", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Popup</h1></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	cfg := config.NewDefaultConfig()
	cfg.Browser.ExecPath = execPath
	cfg.Network.PostLoadWait = 0
	mgr := NewManager(ctx, cfg, zaptest.NewLogger(t))
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	sess, err := mgr.NewSession(ctx, schemas.SessionOptions{Site: "LIVE", Headers: map[string]string{"X-Extract": "yes"}})
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Navigate(ctx, server.URL))

	h1, err := sess.Find(ctx, schemas.Query{Lang: schemas.QueryXPath, Expr: "//h1"})
	require.NoError(t, err)
	assert.Equal(t, "h1", h1.TagName())
	text, err := sess.ReadText(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, "Deposit Rates", text)

	card, err := sess.Find(ctx, schemas.Query{Expr: ".card"})
	require.NoError(t, err)
	rates, err := sess.FindWithin(ctx, card, schemas.Query{Lang: schemas.QueryXPath, Expr: ".//span"})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	rate, err := sess.ReadProperty(ctx, rates[0], schemas.PropTextContent)
	require.NoError(t, err)
	assert.Equal(t, "7.10", rate)

	_, found, err := sess.ReadAttribute(ctx, card, scopeAttr)
	require.NoError(t, err)
	assert.False(t, found, "scope marker must be removed")

	_, err = sess.Wait(ctx, schemas.WaitPredicate{Query: schemas.Query{Expr: "#hidden"}, State: schemas.StateHidden}, 2*time.Second)
	assert.NoError(t, err)
	_, err = sess.Wait(ctx, schemas.WaitPredicate{Query: schemas.Query{Expr: "#hidden"}, State: schemas.StateVisible}, 500*time.Millisecond)
	assert.ErrorIs(t, err, schemas.ErrWaitTimeout)

	link, err := sess.Find(ctx, schemas.Query{Expr: "#open"})
	require.NoError(t, err)
	require.NoError(t, sess.Click(ctx, link))

	var handles []string
	require.Eventually(t, func() bool {
		handles, err = sess.WindowHandles(ctx)
		return err == nil && len(handles) == 2
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, sess.SwitchWindow(ctx, handles[1]))
	require.Eventually(t, func() bool {
		u, err := sess.CurrentURL(ctx)
		return err == nil && strings.HasSuffix(u, "/popup")
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, sess.CloseWindow(ctx))
	require.NoError(t, sess.SwitchWindow(ctx, handles[0]))
	handles, err = sess.WindowHandles(ctx)
	require.NoError(t, err)
	assert.Len(t, handles, 1)

	shot, err := sess.CaptureScreenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}
