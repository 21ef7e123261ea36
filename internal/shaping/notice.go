package shaping

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/C0sCube/selenium-scrape/internal/cleaner"
)

// noticeOpener is the onclick handler notice boards use to open documents.
const noticeOpener = "newwindow1"

// NoticeRow is one row of a notice board table.
type NoticeRow struct {
	Date    string `json:"date"`
	Subject string `json:"subject"`
	Remarks string `json:"remarks"`
	Link    string `json:"link"`
}

// ParseNoticeTable reads a notice board table: date, subject and remarks
// columns, with the document link taken from the subject anchor's opener
// call. Rows with fewer than three cells are skipped. A fragment without a
// table yields ErrNoTable.
func ParseNoticeTable(fragment string) ([]NoticeRow, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	var rows []NoticeRow
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cols := tr.ChildrenFiltered("td")
		if cols.Length() < 3 {
			return
		}
		row := NoticeRow{
			Date:    cleaner.NormalizeWhitespace(cols.Eq(0).Text()),
			Subject: cleaner.NormalizeWhitespace(cols.Eq(1).Text()),
			Remarks: cleaner.NormalizeWhitespace(cols.Eq(2).Text()),
		}
		if a := cols.Eq(1).Find("a").First(); a.Length() > 0 {
			row.Subject = cleaner.NormalizeWhitespace(a.Text())
			if onclick, ok := a.Attr("onclick"); ok {
				row.Link = openerTarget(onclick)
			}
		}
		rows = append(rows, row)
	})
	return rows, nil
}

// openerTarget returns the quoted argument of a newwindow1('...') call.
func openerTarget(onclick string) string {
	if !strings.Contains(onclick, noticeOpener) {
		return ""
	}
	start := strings.Index(onclick, "'")
	end := strings.LastIndex(onclick, "'")
	if start < 0 || end <= start {
		return ""
	}
	return onclick[start+1 : end]
}
