package shaping

import (
	"fmt"
	"strings"
)

// MaxSheetName is the longest sheet name spreadsheet tools accept.
const MaxSheetName = 31

var sheetNameReplacer = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", `\`, "_",
)

// SanitizeSheetName replaces characters spreadsheets reject and truncates to
// MaxSheetName runes. An empty result yields fallback.
func SanitizeSheetName(name, fallback string) string {
	safe := strings.TrimSpace(sheetNameReplacer.Replace(name))
	if safe == "" {
		return fallback
	}
	return truncateRunes(safe, MaxSheetName)
}

// SheetNamer hands out unique sheet names. The zero value is ready to use.
type SheetNamer struct {
	used map[string]bool
	seen map[string]int
}

// Next returns a sanitized name for base, suffixed with _2, _3 and so on
// when base was already handed out.
func (n *SheetNamer) Next(base, fallback string) string {
	if n.used == nil {
		n.used = make(map[string]bool)
		n.seen = make(map[string]int)
	}
	name := SanitizeSheetName(base, fallback)
	for {
		n.seen[name]++
		candidate := name
		if count := n.seen[name]; count > 1 {
			suffix := fmt.Sprintf("_%d", count)
			candidate = truncateRunes(name, MaxSheetName-len(suffix)) + suffix
		}
		if !n.used[candidate] {
			n.used[candidate] = true
			return candidate
		}
	}
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
