// Package shaping turns extracted entries into display shapes: cell grids,
// notice rows, sheet names and the report model the writers render.
package shaping

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/C0sCube/selenium-scrape/internal/cleaner"
)

// ErrNoTable is returned when a fragment holds no <table>.
var ErrNoTable = errors.New("no table in fragment")

// maxSpan bounds colspan and rowspan values taken from markup.
const maxSpan = 1000

// Table is a rectangular grid of cell texts. Rows[0] is the header row when
// the source had one.
type Table struct {
	Rows [][]string `json:"rows"`
}

// Width returns the number of columns.
func (t Table) Width() int {
	w := 0
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Empty reports whether the table has no cells.
func (t Table) Empty() bool {
	return len(t.Rows) == 0 || t.Width() == 0
}

// ParseTable reads the first table of an HTML fragment into a grid. Spanned
// cells are repeated into every position they cover and short rows are
// padded so that every row has the same width.
func ParseTable(fragment string) (Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return Table{}, fmt.Errorf("failed to parse table html: %w", err)
	}
	sel := doc.Find("table").First()
	if sel.Length() == 0 {
		return Table{}, ErrNoTable
	}
	root := sel.Nodes[0]

	var rows [][]string
	// pending[col] carries a rowspan cell into the rows below it.
	type carry struct {
		text string
		left int
	}
	var pending []carry

	for _, tr := range ownRows(root) {
		var row []string
		col := 0
		fill := func() {
			for col < len(pending) && pending[col].left > 0 {
				row = append(row, pending[col].text)
				pending[col].left--
				col++
			}
		}
		fill()
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
				continue
			}
			text := cleaner.NormalizeWhitespace(goquery.NewDocumentFromNode(c).Text())
			colspan := spanAttr(c, "colspan")
			rowspan := spanAttr(c, "rowspan")
			for i := 0; i < colspan; i++ {
				row = append(row, text)
				for len(pending) <= col {
					pending = append(pending, carry{})
				}
				pending[col] = carry{text: text, left: rowspan - 1}
				col++
				fill()
			}
		}
		fill()
		rows = append(rows, row)
	}

	t := Table{Rows: rows}
	width := t.Width()
	for i := range t.Rows {
		for len(t.Rows[i]) < width {
			t.Rows[i] = append(t.Rows[i], "")
		}
	}
	return t, nil
}

// ownRows returns the rows of table in document order, skipping the rows of
// nested tables.
func ownRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				rows = append(rows, c)
			case atom.Thead, atom.Tbody, atom.Tfoot:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func spanAttr(n *html.Node, name string) int {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			v, err := strconv.Atoi(strings.TrimSpace(a.Val))
			if err != nil || v < 1 {
				return 1
			}
			if v > maxSpan {
				return maxSpan
			}
			return v
		}
	}
	return 1
}

// TableCSV encodes the grid as CSV.
func TableCSV(t Table) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.WriteAll(t.Rows); err != nil {
		return "", fmt.Errorf("failed to write csv: %w", err)
	}
	return sb.String(), nil
}
