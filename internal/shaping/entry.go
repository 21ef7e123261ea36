package shaping

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// BlockKind tags a Block of parsed content.
type BlockKind string

const (
	BlockText  BlockKind = "text"
	BlockTable BlockKind = "table"
)

// Block is one unit of parsed content in display order.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	Table *Table    `json:"table,omitempty"`
}

// Parsed is the display form of one ResponseEntry.
type Parsed struct {
	Type    schemas.ContentType `json:"type"`
	Content []Block             `json:"content"`
	Tables  []Table             `json:"tables,omitempty"`
	RawText string              `json:"raw_text"`
}

// ParseEntry converts an entry into ordered display blocks. Parse failures
// and unsupported types become a single explanatory text block.
func ParseEntry(entry schemas.ResponseEntry) Parsed {
	p := Parsed{Type: entry.Type}

	switch entry.Type {
	case schemas.ContentHTML:
		text, err := htmlText(entry.Value)
		if err != nil {
			p.addText(fmt.Sprintf("[Failed to parse: %v]", err))
			break
		}
		p.addText(text)
		p.RawText = text
	case schemas.ContentTableHTML:
		t, err := ParseTable(entry.Value)
		if err != nil {
			p.addText(fmt.Sprintf("[Failed to parse: %v]", err))
			break
		}
		p.Content = append(p.Content, Block{Kind: BlockTable, Table: &t})
		p.Tables = append(p.Tables, t)
	case schemas.ContentText:
		p.addText(entry.Value)
		p.RawText = entry.Value
	default:
		p.addText(fmt.Sprintf("[Unsupported Datatype: %s]", entry.Type))
	}
	return p
}

func (p *Parsed) addText(text string) {
	p.Content = append(p.Content, Block{Kind: BlockText, Text: text})
}

// htmlText returns the text of a fragment, one line per text node.
func htmlText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n"), nil
}
