package menu

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"gorm.io/datatypes"
)

const DayLayout = "2006-01-02"

// DayOf truncates t to its calendar date at UTC midnight. Stored dates are
// always normalized through here so equality holds across dialects.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Day(t time.Time) datatypes.Date { return datatypes.Date(DayOf(t)) }

func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return DayOf(t), nil
}

func FormatDay(d datatypes.Date) string { return time.Time(d).Format(DayLayout) }

// DescriptionKey is the dedup form of a description: whitespace collapsed
// and Unicode case folded.
func DescriptionKey(description string) string {
	collapsed := strings.Join(strings.Fields(strings.ReplaceAll(description, "\u00a0", " ")), " ")
	return cases.Fold().String(collapsed)
}
