// Package cleaner normalises raw HTML pulled from pages and finds the
// human-readable labels that sit above extracted tables.
package cleaner

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	noiseCharsRe = regexp.MustCompile(`[#*@\r\n\t]+`)
)

// NormalizeWhitespace collapses every whitespace run to one space and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripNoise removes bullet and control characters that pages use as
// decoration inside table cells.
func stripNoise(s string) string {
	return noiseCharsRe.ReplaceAllString(s, "")
}
