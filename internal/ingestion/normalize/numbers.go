package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errBlank    = errors.New("blank amount")
	errNegative = errors.New("negative amount")
)

// ParseCents converts a price string to integer cents with half-up
// rounding. It accepts "3,50", "1.234,50", "3.50", "€ 3,50" and "3,50 EUR".
func ParseCents(s string) (int64, error) {
	num := stripCurrency(s)
	if num == "" {
		return 0, errBlank
	}
	if strings.HasPrefix(num, "-") {
		return 0, errNegative
	}
	num = strings.TrimPrefix(num, "+")
	intPart, frac, err := splitDecimal(num)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	frac += "000"
	cents := whole*100 + int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	if frac[2] >= '5' {
		cents++
	}
	return cents, nil
}

// ParseDecimal reads a number written with either German or international
// separators.
func ParseDecimal(s string) (float64, error) {
	num := strings.TrimSuffix(stripCurrency(s), "%")
	num = strings.TrimSpace(num)
	if num == "" {
		return 0, errBlank
	}
	neg := strings.HasPrefix(num, "-")
	num = strings.TrimLeft(num, "+-")
	intPart, frac, err := splitDecimal(num)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", s, err)
	}
	lit := intPart
	if frac != "" {
		lit += "." + frac
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("number %q: %w", s, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func stripCurrency(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "EUR", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.TrimSpace(s)
}

// splitDecimal separates digits into integer and fraction parts. When both
// '.' and ',' occur the later one is the decimal mark. A lone '.' followed
// by exactly three digits, or repeated dots, are thousands separators
// unless the integer part is 0.
func splitDecimal(num string) (string, string, error) {
	lastDot := strings.LastIndexByte(num, '.')
	lastComma := strings.LastIndexByte(num, ',')

	var intPart, frac string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			intPart, frac = strings.ReplaceAll(num[:lastComma], ".", ""), num[lastComma+1:]
		} else {
			intPart, frac = strings.ReplaceAll(num[:lastDot], ",", ""), num[lastDot+1:]
		}
	case lastComma >= 0:
		intPart, frac = strings.ReplaceAll(num[:lastComma], ",", ""), num[lastComma+1:]
	case lastDot >= 0:
		head, tail := num[:lastDot], num[lastDot+1:]
		thousands := strings.Count(num, ".") > 1 || (len(tail) == 3 && head != "0" && head != "")
		if thousands {
			intPart = strings.ReplaceAll(num, ".", "")
		} else {
			intPart, frac = head, tail
		}
	default:
		intPart = num
	}
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(frac) {
		return "", "", errors.New("not a number")
	}
	return intPart, frac, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
