package cleaner

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	thOpenRe     = regexp.MustCompile(`(?i)<th\b`)
	thCloseRe    = regexp.MustCompile(`(?i)</th\b`)
	theadOpenRe  = regexp.MustCompile(`(?i)<thead\b`)
	theadCloseRe = regexp.MustCompile(`(?i)</thead\b`)
	inlineTagRe  = regexp.MustCompile(`(?i)</?(?:strong|sup|b|p|br)(?:\s+[^>]*)?/?>`)
)

// keptAttributes are the only attributes that survive cleaning; they carry
// table structure rather than presentation.
var keptAttributes = map[string]bool{"rowspan": true, "colspan": true}

// CleanTableHTML normalises the outer HTML of a table: header cells become
// data cells, thead becomes tbody, presentation-only inline tags and
// decoration characters are dropped, whitespace is collapsed, empty rows are
// removed and only rowspan/colspan attributes are kept. Running it on its own
// output returns the same string.
func CleanTableHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	// 1. Tag-level rewrites on the raw markup.
	s := thOpenRe.ReplaceAllString(raw, "<td")
	s = thCloseRe.ReplaceAllString(s, "</td")
	s = theadOpenRe.ReplaceAllString(s, "<tbody")
	s = theadCloseRe.ReplaceAllString(s, "</tbody")
	s = inlineTagRe.ReplaceAllString(s, "")

	// 2. Structural cleanup on the parsed tree.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return NormalizeWhitespace(stripNoise(s))
	}
	body := doc.Find("body")
	for _, n := range body.Nodes {
		cleanNode(n)
	}

	body.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if strings.TrimSpace(row.Text()) == "" {
			row.Remove()
		}
	})

	out, err := body.Html()
	if err != nil {
		return NormalizeWhitespace(stripNoise(s))
	}
	return strings.TrimSpace(out)
}

// cleanNode strips attributes, comments and noise text below n, then trims
// the edges of the surviving text runs.
func cleanNode(n *html.Node) {
	pruneNode(n)
	trimTextEdges(n)
}

func pruneNode(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
		case html.TextNode:
			text := whitespaceRe.ReplaceAllString(stripNoise(c.Data), " ")
			if strings.TrimSpace(text) == "" {
				n.RemoveChild(c)
			} else {
				c.Data = text
			}
		case html.ElementNode:
			kept := c.Attr[:0]
			for _, a := range c.Attr {
				if keptAttributes[strings.ToLower(a.Key)] {
					kept = append(kept, a)
				}
			}
			c.Attr = kept
			pruneNode(c)
		}
		c = next
	}
	mergeText(n)
}

// mergeText joins text siblings left adjacent by removed comments and
// re-collapses the whitespace where they meet, so a reparse of the output
// sees the same runs.
func mergeText(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			continue
		}
		for next := c.NextSibling; next != nil && next.Type == html.TextNode; next = c.NextSibling {
			c.Data += next.Data
			n.RemoveChild(next)
		}
		c.Data = whitespaceRe.ReplaceAllString(c.Data, " ")
	}
}

// trimTextEdges trims leading space on a first child and trailing space on a
// last child so cell text does not carry padding.
func trimTextEdges(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if c.PrevSibling == nil {
				c.Data = strings.TrimLeft(c.Data, " ")
			}
			if c.NextSibling == nil {
				c.Data = strings.TrimRight(c.Data, " ")
			}
		case html.ElementNode:
			trimTextEdges(c)
		}
	}
}
