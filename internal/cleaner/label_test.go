package cleaner

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func tableNode(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	sel := doc.Find("table").Last()
	require.Equal(t, 1, sel.Length())
	return sel.Nodes[0]
}

func TestFindPrecedingLabels(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		n       int
		maxHops int
		want    []string
	}{
		{
			name: "siblings in document order",
			page: `<body><div><h2>Deposit  Rates</h2><p>Effective
				01-04-2025</p><br><hr><table><tr><td>1</td></tr></table></div></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{"Deposit Rates", "Effective 01-04-2025"},
		},
		{
			name:    "stops at n",
			page:    `<body><h1>Bank</h1><h2>Deposits</h2><p>Domestic</p><table><tr><td>1</td></tr></table></body>`,
			n:       1,
			maxHops: 6,
			want:    []string{"Domestic"},
		},
		{
			name:    "climbs to ancestor siblings",
			page:    `<body><section><h3>Loans</h3><div class="wrap"><div><table><tr><td>1</td></tr></table></div></div></section></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{"Loans"},
		},
		{
			name:    "skips empty divs and nested tables",
			page:    `<body><strong>Senior Citizens</strong><div><table><tr><td>old</td></tr></table></div><div>  </div><table><tr><td>1</td></tr></table></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{"Senior Citizens"},
		},
		{
			name:    "div with inline text qualifies",
			page:    `<body><div class="title"><span>NRE  Deposits</span></div><table><tr><td>1</td></tr></table></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{"NRE Deposits"},
		},
		{
			name:    "caption is nearest",
			page:    `<body><p>Intro</p><table><caption>Savings</caption><tr><td>1</td></tr></table></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{"Intro", "Savings"},
		},
		{
			name:    "placeholder when nothing precedes",
			page:    `<body><table><tr><td>1</td></tr></table></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{PlaceholderLabel},
		},
		{
			name:    "hop bound",
			page:    `<body><h1>Far</h1><div><div><div><table><tr><td>1</td></tr></table></div></div></div></body>`,
			n:       2,
			maxHops: 1,
			want:    []string{PlaceholderLabel},
		},
		{
			name:    "within hop bound",
			page:    `<body><h1>Far</h1><div><div><div><table><tr><td>1</td></tr></table></div></div></div></body>`,
			n:       2,
			maxHops: 6,
			want:    []string{"Far"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindPrecedingLabels(tableNode(t, tt.page), tt.n, tt.maxHops)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindPrecedingLabels_Truncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	page := `<body><p>` + long + `</p><table><tr><td>1</td></tr></table></body>`

	got := FindPrecedingLabels(tableNode(t, page), 1, 2)

	require.Len(t, got, 1)
	assert.LessOrEqual(t, len([]rune(got[0])), maxLabelRunes)
}

func TestFindPrecedingLabels_NilNode(t *testing.T) {
	assert.Equal(t, []string{PlaceholderLabel}, FindPrecedingLabels(nil, 2, 6))
}
