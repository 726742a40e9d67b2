package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
)

func TestParseCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		err  bool
	}{
		{"3,50", 350, false},
		{"1.234,50", 123450, false},
		{"3.50", 350, false},
		{"€ 3,50", 350, false},
		{"3,50 €", 350, false},
		{"2,5", 250, false},
		{"4", 400, false},
		{"2,345", 235, false},
		{"2,344", 234, false},
		{"1,234.50", 123450, false},
		{"-1,00", 0, true},
		{"gratis", 0, true},
		{"  ", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseCents(tc.in)
		if (err != nil) != tc.err {
			t.Fatalf("ParseCents(%q) err=%v", tc.in, err)
		}
		if !tc.err && got != tc.want {
			t.Fatalf("ParseCents(%q) = %d want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	cases := map[string]float64{
		"583,00":   583,
		"1.556,00": 1556,
		"25,7":     25.7,
		"2092":     2092,
		"0.125":    0.125,
		"48 %":     48,
	}
	for in, want := range cases {
		got, err := ParseDecimal(in)
		if err != nil || got != want {
			t.Fatalf("ParseDecimal(%q) = %v, %v want %v", in, got, err, want)
		}
	}
}

func TestNutritionParsing(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		kcal    *float64
		protein *float64
	}{
		{"kcal in parens", "Brennwert=3059 kJ (731 kcal), Fett=25,0g, Eiweiß=25,7g", ptr(731), ptr(25.7)},
		{"kJ only", "Brennwert=500 kJ", ptr(119.5), nil},
		{"protein english", "Energy 620 kcal; Protein: 31.5 g", ptr(620), ptr(31.5)},
		{"eiweiss spelling", "Eiweiss=12g", nil, ptr(12)},
		{"nothing", "Fett=10g", nil, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertPtr(t, "kcal", parseEnergy(tc.text), tc.kcal)
			assertPtr(t, "protein", parseProtein(tc.text), tc.protein)
		})
	}
}

func TestNormalizeFeedEntry(t *testing.T) {
	raw := menu.RawMealEntry{
		Source:      "feed",
		Venue:       " Hauptmensa ",
		Date:        time.Date(2025, 10, 15, 11, 30, 0, 0, time.UTC),
		Description: " ,Erbsensuppe   mit Brot ; ",
		Category:    "Essen 1",
		Markings:    "v, 26, 99, X",
		Prices:      map[menu.Tier]string{menu.TierStudent: "2,50", menu.TierStaff: "abc", menu.TierGuest: "-5,00", menu.TierGuestCard: ""},
		Nutrition:   "Brennwert=2092 kJ (500 kcal), Eiweiß=20,0g",
		Sustainability: menu.Sustainability{
			CO2Value: "583,00", CO2Rating: "A", WaterValue: "kaputt",
		},
	}
	m, warnings, err := NormalizeWithWarnings(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if m.Description != "Erbsensuppe mit Brot" || m.DescriptionKey != "erbsensuppe mit brot" || m.Venue != "Hauptmensa" {
		t.Fatalf("unexpected text fields %+v", m)
	}
	if got := menu.FormatDay(m.ServedOn); got != "2025-10-15" {
		t.Fatalf("served_on = %s", got)
	}
	prices := m.PriceTiers()
	if len(prices) != 1 || prices[menu.TierStudent] != 250 {
		t.Fatalf("unexpected prices %v", prices)
	}
	if len(warnings) != 3 {
		t.Fatalf("expected staff, guest and water warnings, got %v", warnings)
	}
	tags := m.Tags()
	if len(tags) != 3 || tags[0] != menu.TagContainsMilk || tags[1] != menu.TagVegan || tags[2] != menu.TagVegetarian {
		t.Fatalf("unexpected tags %v", tags)
	}
	if m.Markings != "v, 26, 99, X" {
		t.Fatalf("markings must keep unknown codes: %q", m.Markings)
	}
	assertPtr(t, "kcal", m.EnergyKcal, ptr(500))
	assertPtr(t, "protein", m.ProteinG, ptr(20))
	assertPtr(t, "co2", m.CO2Grams, ptr(583))
	if m.WaterLiters != nil {
		t.Fatalf("unparseable water must be nil")
	}
}

func TestNormalizeExplicitNutritionWins(t *testing.T) {
	m, err := Normalize(menu.RawMealEntry{
		Source: "document", Venue: "XXXLutz Hesse", Date: time.Now(),
		Description: "Gulasch", Nutrition: "800 kcal", EnergyKcal: ptr(650), ProteinG: ptr(0),
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertPtr(t, "kcal", m.EnergyKcal, ptr(650))
	assertPtr(t, "protein", m.ProteinG, ptr(0))
	if len(m.PriceTiers()) != 0 {
		t.Fatalf("expected no prices")
	}
}

func TestNormalizeRejects(t *testing.T) {
	for name, raw := range map[string]menu.RawMealEntry{
		"blank":   {Source: "feed", Venue: "A", Date: time.Now(), Description: " ;, "},
		"no date": {Source: "feed", Venue: "A", Description: "Suppe"},
		"venue":   {Source: "feed", Date: time.Now(), Description: "Suppe"},
	} {
		if _, err := Normalize(raw); !errors.Is(err, ingesterr.ErrParse) {
			t.Fatalf("%s: expected ErrParse, got %v", name, err)
		}
	}
}

func ptr(v float64) *float64 { return &v }

func assertPtr(t *testing.T, name string, got, want *float64) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("%s: got %v want %v", name, got, want)
	}
	if got != nil && *got != *want {
		t.Fatalf("%s: got %v want %v", name, *got, *want)
	}
}
