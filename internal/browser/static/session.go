// Package static implements a browser session over plain HTTP for sites that
// render their content server-side. Queries run on the parsed document with
// goquery (CSS) and htmlquery (XPath); script execution and page capture are
// unsupported.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/cleaner"
	"github.com/C0sCube/selenium-scrape/internal/fetch"
)

// page is the document loaded in one window.
type page struct {
	url  string
	root *html.Node
}

// element is a node in one window's document.
type element struct {
	node *html.Node
}

func (e *element) TagName() string {
	return strings.ToLower(e.node.Data)
}

// Session implements schemas.Session. It is not safe for concurrent use.
type Session struct {
	fetcher *fetch.Fetcher
	logger  *zap.Logger

	windows map[string]*page
	order   []string
	active  string
	seq     int
}

var _ schemas.Session = (*Session)(nil)

// NewSession returns a session with one empty window.
func NewSession(fetcher *fetch.Fetcher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		fetcher: fetcher,
		logger:  logger.Named("static_session"),
		windows: make(map[string]*page),
	}
	s.active = s.openWindow(&page{url: "about:blank", root: emptyDocument()})
	return s
}

func (s *Session) openWindow(p *page) string {
	s.seq++
	handle := fmt.Sprintf("window-%d", s.seq)
	s.windows[handle] = p
	s.order = append(s.order, handle)
	return handle
}

func (s *Session) current() (*page, error) {
	p, ok := s.windows[s.active]
	if !ok {
		return nil, schemas.ErrNoWindow
	}
	return p, nil
}

func (s *Session) load(ctx context.Context, rawURL string) (*page, error) {
	resp, err := s.fetcher.Get(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", rawURL, err)
	}
	root, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}
	return &page{url: resp.URL, root: root}, nil
}

// Navigate loads rawURL into the active window.
func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	if _, err := s.current(); err != nil {
		return err
	}
	p, err := s.load(ctx, rawURL)
	if err != nil {
		return err
	}
	s.windows[s.active] = p
	s.logger.Debug("Navigated.", zap.String("url", p.url))
	return nil
}

// Find returns the first match of q.
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

// FindAll returns every match of q in document order.
func (s *Session) FindAll(_ context.Context, q schemas.Query) ([]schemas.Element, error) {
	p, err := s.current()
	if err != nil {
		return nil, err
	}
	return query(p.root, q)
}

// FindWithin evaluates q below el. XPath expressions are evaluated with el
// as the context node.
func (s *Session) FindWithin(_ context.Context, el schemas.Element, q schemas.Query) ([]schemas.Element, error) {
	n, err := nodeOf(el)
	if err != nil {
		return nil, err
	}
	return query(n, q)
}

// Wait evaluates p once against the loaded document; a static page never
// changes, so a predicate that does not hold now fails with ErrWaitTimeout.
func (s *Session) Wait(ctx context.Context, p schemas.WaitPredicate, _ time.Duration) (schemas.Element, error) {
	els, err := s.FindAll(ctx, p.Query)
	if err != nil {
		return nil, err
	}

	switch p.State {
	case schemas.StateAttached:
		if len(els) > 0 {
			return els[0], nil
		}
	case schemas.StateVisible:
		for _, el := range els {
			if isVisible(el.(*element).node) {
				return el, nil
			}
		}
	case schemas.StateHidden:
		visible := false
		for _, el := range els {
			if isVisible(el.(*element).node) {
				visible = true
				break
			}
		}
		if !visible {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q not %s", schemas.ErrWaitTimeout, p.Query.Lang, p.Query.Expr, p.State)
}

// Click follows anchors. Anchors with target="_blank" open a new window
// without switching to it; other elements are inert.
func (s *Session) Click(ctx context.Context, el schemas.Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	p, err := s.current()
	if err != nil {
		return err
	}

	anchor := closestAnchor(n)
	if anchor == nil {
		s.logger.Debug("Click on inert element.", zap.String("tag", n.Data))
		return nil
	}
	href := htmlquery.SelectAttr(anchor, "href")
	if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript:") || strings.HasPrefix(href, "#") {
		return nil
	}
	target, err := resolveURL(p.url, href)
	if err != nil {
		return err
	}

	if strings.EqualFold(htmlquery.SelectAttr(anchor, "target"), "_blank") {
		np, err := s.load(ctx, target)
		if err != nil {
			return err
		}
		handle := s.openWindow(np)
		s.logger.Debug("Opened window.", zap.String("handle", handle), zap.String("url", np.url))
		return nil
	}
	return s.Navigate(ctx, target)
}

// ScrollIntoView is a no-op on a static document.
func (s *Session) ScrollIntoView(context.Context, schemas.Element) error { return nil }

func (s *Session) ReadAttribute(_ context.Context, el schemas.Element, name string) (string, bool, error) {
	n, err := nodeOf(el)
	if err != nil {
		return "", false, err
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// ReadText approximates rendered text: hidden subtrees are skipped and
// whitespace is collapsed.
func (s *Session) ReadText(_ context.Context, el schemas.Element) (string, error) {
	n, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	if !isVisible(n) {
		return "", nil
	}
	var sb strings.Builder
	visibleText(n, &sb)
	return cleaner.NormalizeWhitespace(sb.String()), nil
}

func (s *Session) ReadProperty(_ context.Context, el schemas.Element, name string) (string, error) {
	n, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	sel := goquery.NewDocumentFromNode(n).Selection
	switch name {
	case schemas.PropTextContent:
		return sel.Text(), nil
	case schemas.PropInnerHTML:
		return sel.Html()
	case schemas.PropOuterHTML:
		return goquery.OuterHtml(sel)
	default:
		v, _ := sel.Attr(name)
		return v, nil
	}
}

func (s *Session) SetAttribute(_ context.Context, el schemas.Element, name, value string) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return nil
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (s *Session) RemoveAttribute(_ context.Context, el schemas.Element, name string) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
	return nil
}

func (s *Session) PageHTML(context.Context) (string, error) {
	p, err := s.current()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, p.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

func (s *Session) ExecuteScript(context.Context, string, any) error {
	return fmt.Errorf("%w: execute script", schemas.ErrUnsupported)
}

func (s *Session) CaptureScreenshot(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("%w: screenshot", schemas.ErrUnsupported)
}

func (s *Session) CapturePDF(context.Context, schemas.PDFOptions) ([]byte, error) {
	return nil, fmt.Errorf("%w: pdf", schemas.ErrUnsupported)
}

// Cookies returns the jar's cookies for the active page.
func (s *Session) Cookies(context.Context) ([]*http.Cookie, error) {
	p, err := s.current()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(p.url)
	if err != nil || u.Host == "" {
		return nil, nil
	}
	return s.fetcher.Cookies(u), nil
}

func (s *Session) CurrentURL(context.Context) (string, error) {
	p, err := s.current()
	if err != nil {
		return "", err
	}
	return p.url, nil
}

func (s *Session) WindowHandles(context.Context) ([]string, error) {
	return append([]string(nil), s.order...), nil
}

func (s *Session) SwitchWindow(_ context.Context, handle string) error {
	if _, ok := s.windows[handle]; !ok {
		return fmt.Errorf("%w: %s", schemas.ErrNoWindow, handle)
	}
	s.active = handle
	return nil
}

func (s *Session) CloseWindow(context.Context) error {
	if _, ok := s.windows[s.active]; !ok {
		return schemas.ErrNoWindow
	}
	delete(s.windows, s.active)
	for i, h := range s.order {
		if h == s.active {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.active = ""
	return nil
}

func (s *Session) Close() error {
	s.windows = map[string]*page{}
	s.order = nil
	s.active = ""
	return nil
}

// -- helpers --

func query(root *html.Node, q schemas.Query) ([]schemas.Element, error) {
	var nodes []*html.Node
	switch q.Lang {
	case schemas.QueryXPath:
		found, err := htmlquery.QueryAll(root, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", q.Expr, err)
		}
		for _, n := range found {
			if n.Type == html.ElementNode {
				nodes = append(nodes, n)
			}
		}
	default:
		sel, err := cascadia.Compile(q.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", q.Expr, err)
		}
		nodes = goquery.NewDocumentFromNode(root).FindMatcher(sel).Nodes
	}

	els := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &element{node: n})
	}
	return els, nil
}

func nodeOf(el schemas.Element) (*html.Node, error) {
	e, ok := el.(*element)
	if !ok || e == nil || e.node == nil {
		return nil, fmt.Errorf("%w: foreign element handle", schemas.ErrElementNotFound)
	}
	return e.node, nil
}

func closestAnchor(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			return n
		}
	}
	return nil
}

// isVisible applies the static rules that hide an element: hidden
// attributes, inline display/visibility styles and non-rendered ancestors.
func isVisible(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.DataAtom {
		case atom.Head, atom.Script, atom.Style, atom.Template, atom.Noscript, atom.Title:
			return false
		case atom.Input:
			if strings.EqualFold(htmlquery.SelectAttr(cur, "type"), "hidden") {
				return false
			}
		}
		if htmlquery.ExistsAttr(cur, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func visibleText(n *html.Node, sb *strings.Builder) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
		case html.ElementNode:
			if !isVisible(c) {
				continue
			}
			if c.DataAtom == atom.Br {
				sb.WriteByte(' ')
				continue
			}
			visibleText(c, sb)
			sb.WriteByte(' ')
		}
	}
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func emptyDocument() *html.Node {
	root, _ := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	return root
}
