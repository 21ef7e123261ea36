package shaping

import (
	"fmt"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// ReportKind tells the writers which report they render.
type ReportKind string

const (
	ReportComparison ReportKind = "comparison"
	ReportCache      ReportKind = "cache"
)

// Item statuses of a comparison report.
const (
	StatusNew     = "new"
	StatusRemoved = "removed"
)

// MetaField is one ordered key/value of report metadata.
type MetaField struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Report is the writer-neutral model of a rendered report.
type Report struct {
	Title    string        `json:"title"`
	Kind     ReportKind    `json:"kind"`
	Metadata []MetaField   `json:"metadata"`
	Sites    []SiteSection `json:"sites"`
	Notices  []NoticeSheet `json:"notices,omitempty"`
}

// SiteSection holds everything reported for one site.
type SiteSection struct {
	Code   string                    `json:"code"`
	Name   string                    `json:"name,omitempty"`
	Error  string                    `json:"error,omitempty"`
	Counts *schemas.ComparisonCounts `json:"counts,omitempty"`
	Groups []Group                   `json:"groups"`
}

// Group is a headed run of items, one per packet or comparison class.
type Group struct {
	Heading string `json:"heading"`
	Webpage string `json:"webpage,omitempty"`
	Items   []Item `json:"items"`
}

// Item is one entry in display form.
type Item struct {
	Name    string   `json:"name"`
	Titles  []string `json:"titles,omitempty"`
	Status  string   `json:"status,omitempty"`
	Content []Block  `json:"content"`
	Diff    string   `json:"diff,omitempty"`
}

// NoticeSheet is one notice board table with a unique sheet name.
type NoticeSheet struct {
	Name    string      `json:"name"`
	Site    string      `json:"site"`
	Action  string      `json:"action"`
	Webpage string      `json:"webpage"`
	Titles  []string    `json:"titles,omitempty"`
	Rows    []NoticeRow `json:"rows"`
}

// BuildComparisonReport lays out new and removed entries per site. Unchanged
// entries are only counted. A new table that replaces a removed table of the
// same name carries the cell diff between the two.
func BuildComparisonReport(meta []MetaField, results []schemas.ComparisonResult) Report {
	r := Report{
		Title:    "Comparison Report",
		Kind:     ReportComparison,
		Metadata: meta,
	}
	for _, res := range results {
		counts := res.Counts
		section := SiteSection{Code: res.Site, Name: res.SiteName, Counts: &counts}

		removedTables := make(map[string]Table)
		for _, e := range res.Removed {
			if e.Type != schemas.ContentTableHTML {
				continue
			}
			if t, err := ParseTable(e.Value); err == nil {
				removedTables[e.Name] = t
			}
		}

		if len(res.New) > 0 {
			g := Group{Heading: "New"}
			for _, e := range res.New {
				item := newItem(e, StatusNew)
				if before, ok := removedTables[e.Name]; ok && e.Type == schemas.ContentTableHTML {
					if after, err := ParseTable(e.Value); err == nil {
						item.Diff = DiffTables(before, after)
					}
				}
				g.Items = append(g.Items, item)
			}
			section.Groups = append(section.Groups, g)
		}
		if len(res.Removed) > 0 {
			g := Group{Heading: "Removed"}
			for _, e := range res.Removed {
				g.Items = append(g.Items, newItem(e, StatusRemoved))
			}
			section.Groups = append(section.Groups, g)
		}
		r.Sites = append(r.Sites, section)
	}
	return r
}

// BuildCacheReport lays out every packet of a run cache in order and
// collects the notice board tables it contains.
func BuildCacheReport(cache schemas.Cache) Report {
	r := Report{
		Title: "Extraction Report",
		Kind:  ReportCache,
		Metadata: []MetaField{
			{Key: "program", Value: cache.Metadata.Program},
			{Key: "timestamp", Value: cache.Metadata.Timestamp},
			{Key: "config", Value: cache.Metadata.Config},
			{Key: "filename", Value: cache.Metadata.Filename},
		},
	}
	if cache.Metadata.RunID != "" {
		r.Metadata = append(r.Metadata, MetaField{Key: "run_id", Value: cache.Metadata.RunID})
	}

	var namer SheetNamer
	for _, rec := range cache.Records {
		section := SiteSection{Code: rec.BankCode, Name: rec.BankName, Error: rec.Error}
		for _, pkt := range rec.ScrapedData {
			count := 0
			if pkt.DataPresent {
				count = pkt.ResponseCount
			}
			g := Group{
				Heading: fmt.Sprintf("Action: %s | Timestamp: %s | Present: %t | Count: %d", pkt.Action, pkt.Timestamp, pkt.DataPresent, count),
				Webpage: pkt.Webpage,
			}
			for _, e := range pkt.Response {
				g.Items = append(g.Items, newItem(e, string(e.Marker)))
				if notice, ok := noticeSheet(&namer, rec, pkt, e); ok {
					r.Notices = append(r.Notices, notice)
				}
			}
			section.Groups = append(section.Groups, g)
		}
		r.Sites = append(r.Sites, section)
	}
	return r
}

func newItem(e schemas.ResponseEntry, status string) Item {
	return Item{
		Name:    e.Name,
		Titles:  e.Title,
		Status:  status,
		Content: ParseEntry(e).Content,
	}
}

func noticeSheet(namer *SheetNamer, rec schemas.SiteRecord, pkt schemas.ResultPacket, e schemas.ResponseEntry) (NoticeSheet, bool) {
	if !pkt.DataPresent || e.Type != schemas.ContentTableHTML || e.Value == "" {
		return NoticeSheet{}, false
	}
	rows, err := ParseNoticeTable(e.Value)
	if err != nil || len(rows) == 0 {
		return NoticeSheet{}, false
	}
	base := string(pkt.Action)
	if len(e.Title) > 0 {
		base = e.Title[len(e.Title)-1]
	}
	return NoticeSheet{
		Name:    namer.Next(base, "Sheet"),
		Site:    rec.BankCode,
		Action:  string(pkt.Action),
		Webpage: pkt.Webpage,
		Titles:  e.Title,
		Rows:    rows,
	}, true
}
