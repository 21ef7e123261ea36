package changes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/packet"
)

var builder = packet.New()

func tablePacket(values ...string) schemas.ResultPacket {
	entries := make([]schemas.ResponseEntry, 0, len(values))
	for i, v := range values {
		entries = append(entries, builder.BuildEntry("table_"+string(rune('0'+i)), []string{"Rates"}, v, schemas.ContentTableHTML))
	}
	return builder.BuildPacket(schemas.ActionTable, entries, "https://bank.test/rates", "tables")
}

func hashes(entries []schemas.ResponseEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Hash)
	}
	return out
}

func TestCompare_SelfIsUnchanged(t *testing.T) {
	packets := []schemas.ResultPacket{tablePacket("<table>a</table>", "<table>b</table>"), tablePacket("<table>c</table>")}

	res := Compare(packets, packets, KeyHash)

	assert.Empty(t, res.New)
	assert.Empty(t, res.Removed)
	assert.Len(t, res.Unchanged, 3)
	assert.Equal(t, schemas.ComparisonCounts{Unchanged: 3}, res.Counts)
	assert.Equal(t, "hash", res.Key)
}

func TestCompare_OneCellChange(t *testing.T) {
	before := []schemas.ResultPacket{tablePacket(
		"<table><tr><td>1y</td><td>7.0</td></tr></table>",
		"<table><tr><td>2y</td><td>7.2</td></tr></table>",
		"<table><tr><td>3y</td><td>7.4</td></tr></table>",
	)}
	after := []schemas.ResultPacket{tablePacket(
		"<table><tr><td>1y</td><td>7.0</td></tr></table>",
		"<table><tr><td>2y</td><td>7.25</td></tr></table>",
		"<table><tr><td>3y</td><td>7.4</td></tr></table>",
	)}

	res := Compare(before, after, KeyHash)

	require.Len(t, res.New, 1)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, after[0].Response[1].Hash, res.New[0].Hash)
	assert.Equal(t, before[0].Response[1].Hash, res.Removed[0].Hash)
	assert.ElementsMatch(t, []string{after[0].Response[0].Hash, after[0].Response[2].Hash}, hashes(res.Unchanged))
	assert.Equal(t, schemas.ComparisonCounts{New: 1, Removed: 1, Unchanged: 2}, res.Counts)

	// Matching by name sees the same table on both sides.
	byName := Compare(before, after, KeyName)
	assert.Empty(t, byName.New)
	assert.Empty(t, byName.Removed)
	assert.Len(t, byName.Unchanged, 3)
}

func TestCompare_Disjointness(t *testing.T) {
	before := []schemas.ResultPacket{tablePacket("a", "b", "c", "d")}
	after := []schemas.ResultPacket{tablePacket("c", "d", "e"), tablePacket("f", "a")}

	res := Compare(before, after, KeyHash)
	oldKeys := extract(before, KeyHash).entries
	newKeys := extract(after, KeyHash).entries

	for _, e := range res.Removed {
		assert.NotContains(t, newKeys, e.Hash)
	}
	for _, e := range res.New {
		assert.NotContains(t, oldKeys, e.Hash)
	}
	assert.Equal(t, 1, res.Counts.Removed)
	assert.Equal(t, 2, res.Counts.New)
	assert.Equal(t, 3, res.Counts.Unchanged)
}

func TestCompare_SkipsMarkersAndEmptyKeys(t *testing.T) {
	p := builder.BuildPacket(schemas.ActionTable, []schemas.ResponseEntry{
		builder.Skip(packet.ReasonNotFound),
		builder.BuildEntry("empty", nil, "", schemas.ContentText),
		builder.BuildEntry("dup", nil, "same", schemas.ContentText),
		builder.BuildEntry("dup-again", nil, "same", schemas.ContentText),
	}, "", "")

	res := Compare(nil, []schemas.ResultPacket{p}, KeyHash)

	require.Len(t, res.New, 1)
	assert.Equal(t, "dup", res.New[0].Name)
	assert.NotNil(t, res.Removed)
	assert.NotNil(t, res.Unchanged)
}

func TestCompare_TitleKey(t *testing.T) {
	a := builder.BuildPacket(schemas.ActionTable, []schemas.ResponseEntry{
		builder.BuildEntry("t", []string{"Savings", "Rates"}, "x", schemas.ContentText),
	}, "", "")
	b := builder.BuildPacket(schemas.ActionTable, []schemas.ResponseEntry{
		builder.BuildEntry("t", []string{"Savings", "Rates"}, "y", schemas.ContentText),
		builder.BuildEntry("u", []string{"Savings Rates"}, "z", schemas.ContentText),
	}, "", "")

	res := Compare([]schemas.ResultPacket{a}, []schemas.ResultPacket{b}, KeyTitle)
	assert.Len(t, res.Unchanged, 1)
	assert.Len(t, res.New, 1)
}

func TestCompareCaches(t *testing.T) {
	shared := tablePacket("<table>same</table>")
	before := schemas.Cache{Records: []schemas.SiteRecord{
		{BankCode: "ZED", BankName: "Zed Bank", ScrapedData: []schemas.ResultPacket{shared}},
		{BankCode: "GONE", BankName: "Gone Bank", ScrapedData: []schemas.ResultPacket{tablePacket("<table>old</table>")}},
	}}
	after := schemas.Cache{Records: []schemas.SiteRecord{
		{BankCode: "ZED", BankName: "Zed Bank", ScrapedData: []schemas.ResultPacket{shared}},
		{BankCode: "ALPHA", BankName: "Alpha Bank", ScrapedData: []schemas.ResultPacket{tablePacket("<table>fresh</table>")}},
	}}

	results := CompareCaches(before, after, "")

	require.Len(t, results, 3)
	assert.Equal(t, "ALPHA", results[0].Site)
	assert.Equal(t, "Alpha Bank", results[0].SiteName)
	assert.Equal(t, 1, results[0].Counts.New)

	assert.Equal(t, "GONE", results[1].Site)
	assert.Equal(t, 1, results[1].Counts.Removed)

	assert.Equal(t, "ZED", results[2].Site)
	assert.Equal(t, schemas.ComparisonCounts{Unchanged: 1}, results[2].Counts)
}

func TestParseKeyField(t *testing.T) {
	k, err := ParseKeyField("")
	require.NoError(t, err)
	assert.Equal(t, KeyHash, k)

	k, err = ParseKeyField(" Title ")
	require.NoError(t, err)
	assert.Equal(t, KeyTitle, k)

	_, err = ParseKeyField("position")
	assert.Error(t, err)
}
