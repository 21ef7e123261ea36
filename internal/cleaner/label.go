package cleaner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PlaceholderLabel is returned when no label is found near an element.
const PlaceholderLabel = "Untitled"

// maxLabelRunes bounds the length of one label taken from a container.
const maxLabelRunes = 200

// labelAtoms are elements whose text is used as a label as-is.
var labelAtoms = map[atom.Atom]bool{
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.P: true, atom.Strong: true, atom.B: true, atom.A: true, atom.Span: true,
	atom.Label: true, atom.Caption: true, atom.Em: true, atom.U: true, atom.Font: true,
	atom.Legend: true, atom.Dt: true,
}

// containerAtoms qualify as labels only when they carry inline text.
var containerAtoms = map[atom.Atom]bool{
	atom.Div: true, atom.Section: true, atom.Header: true, atom.Center: true, atom.Article: true,
}

// inlineAtoms are the descendants that make a container qualify.
var inlineAtoms = map[atom.Atom]bool{
	atom.Span: true, atom.Strong: true, atom.B: true, atom.A: true, atom.Em: true,
	atom.I: true, atom.U: true, atom.Font: true, atom.Label: true, atom.Small: true,
}

// noiseAtoms are never labels and are skipped while walking.
var noiseAtoms = map[atom.Atom]bool{
	atom.Br: true, atom.Hr: true, atom.Table: true, atom.Script: true, atom.Style: true,
	atom.Noscript: true, atom.Img: true, atom.Input: true, atom.Select: true, atom.Button: true,
	atom.Iframe: true, atom.Svg: true,
}

// FindPrecedingLabels returns up to n labels that precede node in the
// document, oldest first. It looks at node's own caption, then its preceding
// siblings, then the preceding siblings of each ancestor, climbing at most
// maxHops levels. This is a best-effort proximity heuristic: pages that put
// a table's title somewhere else get the nearest text instead.
func FindPrecedingLabels(node *html.Node, n, maxHops int) []string {
	if node == nil || n <= 0 {
		return []string{PlaceholderLabel}
	}

	// Collected nearest first, reversed on return.
	var labels []string
	if caption := findCaption(node); caption != "" {
		labels = append(labels, caption)
	}

	cur := node
	for hops := 0; len(labels) < n && cur != nil && hops <= maxHops; hops++ {
		for sib := cur.PrevSibling; sib != nil && len(labels) < n; sib = sib.PrevSibling {
			if text := labelText(sib); text != "" {
				labels = append(labels, text)
			}
		}
		cur = cur.Parent
		if cur == nil || cur.DataAtom == atom.Body || cur.DataAtom == atom.Html {
			break
		}
	}

	if len(labels) == 0 {
		return []string{PlaceholderLabel}
	}
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return labels
}

func findCaption(node *html.Node) string {
	if node.DataAtom != atom.Table {
		return ""
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Caption {
			return truncate(NormalizeWhitespace(textOf(c)))
		}
	}
	return ""
}

// labelText returns the label a preceding sibling contributes, or "".
func labelText(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return truncate(NormalizeWhitespace(n.Data))
	case html.ElementNode:
	default:
		return ""
	}

	switch {
	case noiseAtoms[n.DataAtom]:
		return ""
	case labelAtoms[n.DataAtom]:
		if containsTable(n) {
			return ""
		}
		return truncate(NormalizeWhitespace(textOf(n)))
	case containerAtoms[n.DataAtom]:
		if containsTable(n) || !hasInlineText(n) {
			return ""
		}
		return truncate(NormalizeWhitespace(textOf(n)))
	default:
		return ""
	}
}

// hasInlineText reports whether a container holds text directly or through
// an inline element.
func hasInlineText(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) != "" {
				return true
			}
		case html.ElementNode:
			if inlineAtoms[c.DataAtom] && strings.TrimSpace(textOf(c)) != "" {
				return true
			}
			if (containerAtoms[c.DataAtom] || labelAtoms[c.DataAtom]) && hasInlineText(c) {
				return true
			}
		}
	}
	return false
}

func containsTable(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Table || containsTable(c)) {
			return true
		}
	}
	return false
}

// textOf concatenates the text below n, skipping scripts and styles.
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		switch x.Type {
		case html.TextNode:
			sb.WriteString(x.Data)
			sb.WriteByte(' ')
		case html.ElementNode:
			if x.DataAtom == atom.Script || x.DataAtom == atom.Style {
				return
			}
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxLabelRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxLabelRunes]))
}
