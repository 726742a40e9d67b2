package normalize

import (
	"math"
	"regexp"
)

const kjPerKcal = 4.184

var (
	kcalRe    = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*kcal`)
	kjRe      = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*kj\b`)
	proteinRe = regexp.MustCompile(`(?i)(?:eiwei(?:ß|ss)|protein)\s*[=:]?\s*(\d[\d.,]*)\s*g`)
)

// parseEnergy returns kcal from nutrition text. When only kJ is given it is
// converted and rounded to 0.1 kcal.
func parseEnergy(text string) *float64 {
	if m := kcalRe.FindStringSubmatch(text); m != nil {
		if v, err := ParseDecimal(m[1]); err == nil && v >= 0 {
			return &v
		}
	}
	if m := kjRe.FindStringSubmatch(text); m != nil {
		if v, err := ParseDecimal(m[1]); err == nil && v >= 0 {
			kcal := math.Round(v/kjPerKcal*10) / 10
			return &kcal
		}
	}
	return nil
}

func parseProtein(text string) *float64 {
	m := proteinRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := ParseDecimal(m[1])
	if err != nil || v < 0 {
		return nil
	}
	return &v
}
