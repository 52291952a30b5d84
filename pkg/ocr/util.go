package ocr

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	blankRunRE = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLnRE  = regexp.MustCompile(`\n\s*\n`)
)

// snippet returns a shortened version of text for logging. It never splits a rune.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}

// normalizeOCRText collapses horizontal whitespace runs to one space and blank lines to a
// single newline, keeping the line structure intact.
func normalizeOCRText(t string) string {
	t = blankRunRE.ReplaceAllString(t, " ")
	t = blankLnRE.ReplaceAllString(t, "\n")
	return t
}
