package browser

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

const (
	// scopeAttr temporarily marks the context node of a relative XPath query.
	scopeAttr        = "data-extract-scope"
	hiddenPollPeriod = 100 * time.Millisecond
)

const (
	visibleJS    = `function() { return !!(this.offsetWidth || this.offsetHeight || (this.getClientRects && this.getClientRects().length)); }`
	innerTextJS  = `function() { return this.innerText ?? this.textContent ?? ""; }`
	propertyJS   = `function(p) { const v = this[p]; return v == null ? "" : String(v); }`
	scrollIntoJS = `function() { this.scrollIntoView({block: "center", inline: "nearest"}); }`
)

type element struct {
	node   *cdp.Node
	window string
}

func (e *element) TagName() string {
	return strings.ToLower(e.node.NodeName)
}

type sessionSettings struct {
	headers           map[string]string
	downloadDir       string
	navigationTimeout time.Duration
	postLoadWait      time.Duration
}

// window is one attached page target.
type window struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Session implements schemas.Session on one Chrome process. Window handles
// are CDP target IDs. It is not safe for concurrent use.
type Session struct {
	rootCtx    context.Context
	rootCancel context.CancelFunc
	root       string
	settings   sessionSettings
	logger     *zap.Logger
	onClose    func()

	windows map[string]*window
	order   []string
	active  string

	scopeSeq  int
	closeOnce sync.Once
}

var _ schemas.Session = (*Session)(nil)

func newSession(rootCtx context.Context, rootCancel context.CancelFunc, settings sessionSettings, logger *zap.Logger, onClose func()) *Session {
	handle := string(chromedp.FromContext(rootCtx).Target.TargetID)
	return &Session{
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		root:       handle,
		settings:   settings,
		logger:     logger.Named("chrome_session"),
		onClose:    onClose,
		windows:    map[string]*window{handle: {ctx: rootCtx}},
		order:      []string{handle},
		active:     handle,
	}
}

func (s *Session) initialize(ctx context.Context) error {
	return s.prepareWindow(ctx, s.windows[s.active])
}

// prepareWindow applies the per-site request headers and download folder to
// a newly attached window.
func (s *Session) prepareWindow(ctx context.Context, w *window) error {
	var tasks chromedp.Tasks
	if len(s.settings.headers) > 0 {
		headers := make(network.Headers, len(s.settings.headers))
		for k, v := range s.settings.headers {
			headers[k] = v
		}
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}
	if s.settings.downloadDir != "" {
		tasks = append(tasks, cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(s.settings.downloadDir))
	}
	if len(tasks) == 0 {
		return nil
	}
	return s.runOn(ctx, w, tasks)
}

// -- Execution helpers --

func (s *Session) runOn(ctx context.Context, w *window, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(w.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) current() (*window, error) {
	w, ok := s.windows[s.active]
	if !ok {
		return nil, fmt.Errorf("%w: %q", schemas.ErrNoWindow, s.active)
	}
	return w, nil
}

func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	w, err := s.current()
	if err != nil {
		return err
	}
	return s.runOn(ctx, w, actions...)
}

// onElement runs f in the window el was found in.
func (s *Session) onElement(ctx context.Context, el schemas.Element, f func(c context.Context, node *cdp.Node) error) error {
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("element of type %T does not belong to a chrome session", el)
	}
	w, ok := s.windows[e.window]
	if !ok {
		return fmt.Errorf("%w: element window %q is closed", schemas.ErrNoWindow, e.window)
	}
	return s.runOn(ctx, w, chromedp.ActionFunc(func(c context.Context) error {
		return f(c, e.node)
	}))
}

func wrap(window string, nodes []*cdp.Node) []schemas.Element {
	out := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{node: n, window: window})
	}
	return out
}

func queryBy(q schemas.Query) chromedp.QueryOption {
	if q.Lang == schemas.QueryXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

// -- Navigation --

func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if s.settings.navigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.settings.navigationTimeout)
		defer cancel()
	}
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if s.settings.postLoadWait <= 0 {
		return nil
	}
	t := time.NewTimer(s.settings.postLoadWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return u, nil
}

func (s *Session) PageHTML(ctx context.Context) (string, error) {
	var out string
	if err := s.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return out, nil
}

// -- Queries --

func (s *Session) FindAll(ctx context.Context, q schemas.Query) ([]schemas.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(q.Expr, &nodes, queryBy(q), chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("%s query %q failed: %w", q.Lang, q.Expr, err)
	}
	return wrap(s.active, nodes), nil
}

func (s *Session) Find(ctx context.Context, q schemas.Query) (schemas.Element, error) {
	els, err := s.FindAll(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s %q", schemas.ErrElementNotFound, q.Lang, q.Expr)
	}
	return els[0], nil
}

// FindWithin evaluates q under el. CSS queries run from the node directly;
// XPath queries are anchored on a temporary marker attribute since the
// search domain always starts at the document.
func (s *Session) FindWithin(ctx context.Context, el schemas.Element, q schemas.Query) ([]schemas.Element, error) {
	var nodes []*cdp.Node
	err := s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		if q.Lang != schemas.QueryXPath {
			return chromedp.Nodes(q.Expr, &nodes, chromedp.ByQueryAll, chromedp.FromNode(node), chromedp.AtLeast(0)).Do(c)
		}
		s.scopeSeq++
		scope := strconv.Itoa(s.scopeSeq)
		if err := dom.SetAttributeValue(node.NodeID, scopeAttr, scope).Do(c); err != nil {
			return err
		}
		defer func() { _ = dom.RemoveAttribute(node.NodeID, scopeAttr).Do(Detach(c)) }()
		return chromedp.Nodes(scopedXPath(q.Expr, scope), &nodes, chromedp.BySearch, chromedp.AtLeast(0)).Do(c)
	})
	if err != nil {
		return nil, fmt.Errorf("%s query %q within element failed: %w", q.Lang, q.Expr, err)
	}
	return wrap(el.(*element).window, nodes), nil
}

// scopedXPath rewrites a relative expression so it starts at the node
// carrying the scope marker. Absolute expressions are returned unchanged.
func scopedXPath(expr, scope string) string {
	anchor := fmt.Sprintf(`(//*[@%s="%s"])[1]`, scopeAttr, scope)
	expr = strings.TrimSpace(expr)
	switch {
	case expr == ".":
		return anchor
	case strings.HasPrefix(expr, "./"):
		return anchor + expr[1:]
	case strings.HasPrefix(expr, "/"), strings.HasPrefix(expr, "("):
		return expr
	default:
		return anchor + "/" + expr
	}
}

// -- Waits --

func (s *Session) Wait(ctx context.Context, p schemas.WaitPredicate, timeout time.Duration) (schemas.Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		el  schemas.Element
		err error
	)
	if p.State == schemas.StateHidden {
		err = s.waitHidden(waitCtx, p.Query)
	} else {
		by := chromedp.ByQuery
		if p.Query.Lang == schemas.QueryXPath {
			by = chromedp.BySearch
		}
		ready := chromedp.NodeReady
		if p.State == schemas.StateVisible {
			ready = chromedp.NodeVisible
		}
		var nodes []*cdp.Node
		err = s.run(waitCtx, chromedp.Nodes(p.Query.Expr, &nodes, by, ready))
		if err == nil && len(nodes) > 0 {
			el = &element{node: nodes[0], window: s.active}
		}
	}

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if waitCtx.Err() != nil {
			return nil, fmt.Errorf("%w: %s %s %q after %s", schemas.ErrWaitTimeout, p.State, p.Query.Lang, p.Query.Expr, timeout)
		}
		return nil, err
	}
	return el, nil
}

func (s *Session) waitHidden(ctx context.Context, q schemas.Query) error {
	ticker := time.NewTicker(hiddenPollPeriod)
	defer ticker.Stop()
	for {
		visible, err := s.anyVisible(ctx, q)
		if err != nil {
			return err
		}
		if !visible {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) anyVisible(ctx context.Context, q schemas.Query) (bool, error) {
	els, err := s.FindAll(ctx, q)
	if err != nil {
		return false, err
	}
	for _, el := range els {
		var visible bool
		err := s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
			return chromedp.CallFunctionOnNode(c, node, visibleJS, &visible)
		})
		if err != nil {
			// Detached between the query and the check.
			continue
		}
		if visible {
			return true, nil
		}
	}
	return false, nil
}

// -- Element primitives --

func (s *Session) Click(ctx context.Context, el schemas.Element) error {
	return s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		return chromedp.MouseClickNode(node).Do(c)
	})
}

func (s *Session) ScrollIntoView(ctx context.Context, el schemas.Element) error {
	return s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		return chromedp.CallFunctionOnNode(c, node, scrollIntoJS, nil)
	})
}

func (s *Session) ReadAttribute(ctx context.Context, el schemas.Element, name string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		attrs, err := dom.GetAttributes(node.NodeID).Do(c)
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(attrs); i += 2 {
			if strings.EqualFold(attrs[i], name) {
				value, found = attrs[i+1], true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read attribute %s: %w", name, err)
	}
	return value, found, nil
}

func (s *Session) ReadText(ctx context.Context, el schemas.Element) (string, error) {
	var text string
	err := s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		return chromedp.CallFunctionOnNode(c, node, innerTextJS, &text)
	})
	if err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return text, nil
}

func (s *Session) ReadProperty(ctx context.Context, el schemas.Element, name string) (string, error) {
	var value string
	err := s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		return chromedp.CallFunctionOnNode(c, node, propertyJS, &value, name)
	})
	if err != nil {
		return "", fmt.Errorf("failed to read property %s: %w", name, err)
	}
	return value, nil
}

func (s *Session) SetAttribute(ctx context.Context, el schemas.Element, name, value string) error {
	return s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		return dom.SetAttributeValue(node.NodeID, name, value).Do(c)
	})
}

func (s *Session) RemoveAttribute(ctx context.Context, el schemas.Element, name string) error {
	return s.onElement(ctx, el, func(c context.Context, node *cdp.Node) error {
		return dom.RemoveAttribute(node.NodeID, name).Do(c)
	})
}

// -- Page primitives --

// ExecuteScript runs a snippet of JavaScript in the active document and
// optionally unmarshals the result into res.
func (s *Session) ExecuteScript(ctx context.Context, script string, res any) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Session) CapturePDF(ctx context.Context, opts schemas.PDFOptions) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		data, _, err := page.PrintToPDF().
			WithLandscape(opts.Landscape).
			WithPrintBackground(opts.PrintBackground).
			Do(c)
		buf = data
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to print page: %w", err)
	}
	return buf, nil
}

func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}
	return toHTTPCookies(cookies), nil
}

func toHTTPCookies(in []*network.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}

// -- Windows --

// WindowHandles returns the open page targets in the order they were first
// seen by this session.
func (s *Session) WindowHandles(ctx context.Context) ([]string, error) {
	runCtx, cancel := CombineContext(s.rootCtx, ctx)
	defer cancel()
	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	var live []string
	for _, info := range infos {
		if info.Type == "page" {
			live = append(live, string(info.TargetID))
		}
	}
	s.order = mergeHandles(s.order, live)

	open := make(map[string]bool, len(s.order))
	for _, h := range s.order {
		open[h] = true
	}
	for h, w := range s.windows {
		if !open[h] {
			s.forget(h, w)
		}
	}
	return append([]string(nil), s.order...), nil
}

// mergeHandles keeps the known handles that are still live, in their
// original order, followed by newly seen ones.
func mergeHandles(known, live []string) []string {
	isLive := make(map[string]bool, len(live))
	for _, h := range live {
		isLive[h] = true
	}
	seen := make(map[string]bool, len(known))
	out := make([]string, 0, len(live))
	for _, h := range known {
		if isLive[h] {
			out = append(out, h)
			seen[h] = true
		}
	}
	for _, h := range live {
		if !seen[h] {
			out = append(out, h)
			seen[h] = true
		}
	}
	return out
}

func (s *Session) SwitchWindow(ctx context.Context, handle string) error {
	if _, ok := s.windows[handle]; ok {
		s.active = handle
		return nil
	}

	tabCtx, cancel := chromedp.NewContext(s.rootCtx, chromedp.WithTargetID(target.ID(handle)))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("%w: %q: %v", schemas.ErrNoWindow, handle, err)
	}
	w := &window{ctx: tabCtx, cancel: cancel}
	if err := s.prepareWindow(ctx, w); err != nil {
		s.logger.Warn("Could not prepare window.", zap.String("window", handle), zap.Error(err))
	}
	s.windows[handle] = w
	if !slices.Contains(s.order, handle) {
		s.order = append(s.order, handle)
	}
	s.active = handle
	s.logger.Debug("Attached to window.", zap.String("window", handle))
	return nil
}

// CloseWindow closes the active window. The session has no active window
// until the caller switches.
func (s *Session) CloseWindow(ctx context.Context) error {
	w, err := s.current()
	if err != nil {
		return err
	}
	if err := s.runOn(ctx, w, page.Close()); err != nil {
		return fmt.Errorf("failed to close window: %w", err)
	}
	s.forget(s.active, w)
	s.active = ""
	return nil
}

func (s *Session) forget(handle string, w *window) {
	if w.cancel != nil {
		w.cancel()
	}
	delete(s.windows, handle)
	s.order = slices.DeleteFunc(s.order, func(h string) bool { return h == handle })
}

// Close terminates the browser process of the session.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for h, w := range s.windows {
			if h != s.root && w.cancel != nil {
				w.cancel()
			}
		}
		s.rootCancel()
		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug("Browser session closed.")
	})
	return nil
}
