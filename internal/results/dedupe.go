package results

import (
	"strings"

	"github.com/C0sCube/selenium-scrape/api/schemas"
)

// Dedupe drops repeated entries within each packet of rec, matched by hash,
// and then drops packets whose remaining entries repeat an earlier packet's.
// Markers and entries without a hash are always kept. Counts and data
// presence are recomputed.
func Dedupe(rec schemas.SiteRecord) schemas.SiteRecord {
	out := rec
	out.ScrapedData = make([]schemas.ResultPacket, 0, len(rec.ScrapedData))

	seenPackets := make(map[string]bool)
	for _, p := range rec.ScrapedData {
		p.Response = dedupeEntries(p.Response)
		p.ResponseCount = len(p.Response)
		p.DataPresent = schemas.DataPresent(p.Response)

		if sig, ok := signature(p); ok {
			if seenPackets[sig] {
				continue
			}
			seenPackets[sig] = true
		}
		out.ScrapedData = append(out.ScrapedData, p)
	}
	return out
}

func dedupeEntries(in []schemas.ResponseEntry) []schemas.ResponseEntry {
	out := make([]schemas.ResponseEntry, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, e := range in {
		if e.Hash != "" && !e.IsMarker() {
			if seen[e.Hash] {
				continue
			}
			seen[e.Hash] = true
		}
		out = append(out, e)
	}
	return out
}

// signature identifies a packet by the ordered hashes of its data entries.
// Packets without data have none and are never merged.
func signature(p schemas.ResultPacket) (string, bool) {
	var hashes []string
	for _, e := range p.Response {
		if e.HasData() && e.Hash != "" {
			hashes = append(hashes, e.Hash)
		}
	}
	if len(hashes) == 0 {
		return "", false
	}
	return string(p.Action) + ":" + strings.Join(hashes, ","), true
}
