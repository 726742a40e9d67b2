package sources

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
)

var (
	menuDateRe  = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	menuPriceRe = regexp.MustCompile(`(?:€\s*)?\d{1,3}(?:\.\d{3})*[.,]\d{2}\s*(?:€|EUR)?`)
)

type MenuTextOptions struct {
	Section  string
	Headings []string
	MaxItems int
}

type MenuItem struct {
	Description string
	Price       string
}

type MenuText struct {
	Date      time.Time
	DateFound bool
	Items     []MenuItem
}

// ParseMenuText reads dishes from OCR text of a printed menu. The first
// DD.MM.YYYY in the text is the menu date. With a Section configured only
// lines between that heading and the next known heading are read, and
// unpriced lines there count as dishes. Without one, only priced lines do.
func ParseMenuText(text string, opts MenuTextOptions) MenuText {
	var out MenuText
	if m := menuDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := civilDate(m[1], m[2], m[3]); ok {
			out.Date, out.DateFound = d, true
		}
	}

	lines := splitLines(text)
	section := strings.TrimSpace(opts.Section)
	if section != "" {
		lines = sectionLines(lines, section, opts.Headings)
	}

	seen := map[string]bool{}
	add := func(desc, price string) bool {
		desc = trimDishText(desc)
		if desc == "" {
			return true
		}
		key := menu.DescriptionKey(desc)
		if seen[key] {
			return true
		}
		seen[key] = true
		out.Items = append(out.Items, MenuItem{Description: desc, Price: strings.TrimSpace(price)})
		return opts.MaxItems <= 0 || len(out.Items) < opts.MaxItems
	}

	pending := ""
	for _, ln := range lines {
		if menuDateRe.MatchString(ln) || !hasLetterOrDigit(ln) {
			continue
		}
		loc := menuPriceRe.FindStringIndex(ln)
		if loc == nil {
			if section != "" && pending != "" && !add(pending, "") {
				return out
			}
			pending = ln
			continue
		}
		desc := strings.TrimSpace(ln[:loc[0]])
		price := ln[loc[0]:loc[1]]
		if trimDishText(desc) == "" {
			desc = pending
		} else if section != "" && pending != "" && !add(pending, "") {
			return out
		}
		pending = ""
		if !add(desc, price) {
			return out
		}
	}
	if section != "" && pending != "" {
		add(pending, "")
	}
	return out
}

func civilDate(dd, mm, yyyy string) (time.Time, bool) {
	d, err1 := strconv.Atoi(dd)
	m, err2 := strconv.Atoi(mm)
	y, err3 := strconv.Atoi(yyyy)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return out
}

func sectionLines(lines []string, section string, headings []string) []string {
	known := map[string]bool{headingKey(section): true}
	for _, h := range headings {
		known[headingKey(h)] = true
	}
	target := headingKey(section)
	start := -1
	for i, ln := range lines {
		if headingKey(ln) == target {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	end := len(lines)
	for i := start; i < len(lines); i++ {
		if known[headingKey(lines[i])] {
			end = i
			break
		}
	}
	return lines[start:end]
}

// headingKey folds a line for heading comparison; "Hauptspeisen:" and
// "HAUPTSPEISE" both fold to "hauptspeise".
func headingKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ": ")
	s = strings.TrimSuffix(s, "n")
	return s
}

func trimDishText(s string) string {
	return strings.TrimFunc(strings.TrimSpace(s), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(".,;:-–—|*•·", r)
	})
}

func hasLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
