package extractor

import (
	"strings"
	"unicode/utf8"
)

// CleanText repairs invalid UTF-8, normalizes line endings and NBSP, and
// collapses runs of spaces inside each line. Line structure is kept since
// the menu parser is line oriented.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, " ")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}

// TextSignalWeak reports whether extracted pages carry too little text to
// be a menu.
func TextSignalWeak(pages []string) bool {
	total := 0
	for _, p := range pages {
		total += len(strings.TrimSpace(p))
	}
	return total < 40
}
