// Package changes classifies the entries of two extraction runs as new,
// removed or unchanged. Entries are matched by a single key field, by
// default the content hash, so any change to an entry's content shows up as
// one removed and one new entry.
package changes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// KeyField selects the ResponseEntry field entries are matched on.
type KeyField string

const (
	KeyHash  KeyField = "hash"
	KeyName  KeyField = "name"
	KeyValue KeyField = "value"
	KeyTitle KeyField = "title"
)

// titleSep joins multi-part titles into one key.
const titleSep = " > "

// ParseKeyField maps a flag value to a KeyField. An empty value selects
// KeyHash.
func ParseKeyField(s string) (KeyField, error) {
	switch k := KeyField(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KeyHash, nil
	case KeyHash, KeyName, KeyValue, KeyTitle:
		return k, nil
	default:
		return "", fmt.Errorf("unknown comparison key %q", s)
	}
}

// keyOf returns the entry's key, or "" when it has none.
func keyOf(e schemas.ResponseEntry, key KeyField) string {
	switch key {
	case KeyName:
		return e.Name
	case KeyValue:
		return e.Value
	case KeyTitle:
		return strings.Join(e.Title, titleSep)
	default:
		return e.Hash
	}
}

// keyedSet is an insertion-ordered set of entries by key.
type keyedSet struct {
	order   []string
	entries map[string]schemas.ResponseEntry
}

// extract flattens every entry of packets into a keyed set. Marker entries
// and entries without a key are left out; the first entry of a key wins.
func extract(packets []schemas.ResultPacket, key KeyField) keyedSet {
	set := keyedSet{entries: make(map[string]schemas.ResponseEntry)}
	for _, p := range packets {
		for _, e := range p.Response {
			if e.IsMarker() {
				continue
			}
			k := keyOf(e, key)
			if k == "" {
				continue
			}
			if _, ok := set.entries[k]; ok {
				continue
			}
			set.entries[k] = e
			set.order = append(set.order, k)
		}
	}
	return set
}

// Compare classifies the entries of before and after. new holds the entries
// whose key only appears in after, removed those only in before, and
// unchanged the after-side entries of keys present in both.
func Compare(before, after []schemas.ResultPacket, key KeyField) schemas.ComparisonResult {
	if key == "" {
		key = KeyHash
	}
	old := extract(before, key)
	cur := extract(after, key)

	res := schemas.ComparisonResult{
		Key:       string(key),
		New:       []schemas.ResponseEntry{},
		Removed:   []schemas.ResponseEntry{},
		Unchanged: []schemas.ResponseEntry{},
	}
	for _, k := range cur.order {
		if _, ok := old.entries[k]; ok {
			res.Unchanged = append(res.Unchanged, cur.entries[k])
		} else {
			res.New = append(res.New, cur.entries[k])
		}
	}
	for _, k := range old.order {
		if _, ok := cur.entries[k]; !ok {
			res.Removed = append(res.Removed, old.entries[k])
		}
	}
	res.Counts = schemas.ComparisonCounts{
		New:       len(res.New),
		Removed:   len(res.Removed),
		Unchanged: len(res.Unchanged),
	}
	return res
}

// CompareCaches compares two run caches site by site, matching records by
// bank code. A site present in only one cache is compared against nothing.
// Results are sorted by site code.
func CompareCaches(before, after schemas.Cache, key KeyField) []schemas.ComparisonResult {
	type pair struct {
		name        string
		old, latest []schemas.ResultPacket
	}
	sites := make(map[string]*pair)
	get := func(code string) *pair {
		p, ok := sites[code]
		if !ok {
			p = &pair{}
			sites[code] = p
		}
		return p
	}
	for _, rec := range before.Records {
		p := get(rec.BankCode)
		p.old = append(p.old, rec.ScrapedData...)
		if p.name == "" {
			p.name = rec.BankName
		}
	}
	for _, rec := range after.Records {
		p := get(rec.BankCode)
		p.latest = append(p.latest, rec.ScrapedData...)
		if rec.BankName != "" {
			p.name = rec.BankName
		}
	}

	codes := make([]string, 0, len(sites))
	for code := range sites {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	results := make([]schemas.ComparisonResult, 0, len(codes))
	for _, code := range codes {
		p := sites[code]
		res := Compare(p.old, p.latest, key)
		res.Site = code
		res.SiteName = p.name
		results = append(results, res)
	}
	return results
}
