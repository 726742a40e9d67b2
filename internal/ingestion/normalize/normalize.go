package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
)

var codeTags = map[string]menu.DietaryTag{
	"v":   menu.TagVegetarian,
	"x":   menu.TagVegan,
	"g":   menu.TagPoultry,
	"s":   menu.TagPork,
	"r":   menu.TagBeef,
	"f":   menu.TagFish,
	"a":   menu.TagAlcohol,
	"26":  menu.TagContainsMilk,
	"22":  menu.TagContainsEgg,
	"20a": menu.TagContainsWheat,
}

// Normalize builds the canonical meal for a raw entry.
func Normalize(raw menu.RawMealEntry) (*menu.Meal, error) {
	m, _, err := NormalizeWithWarnings(raw)
	return m, err
}

// NormalizeWithWarnings is Normalize that also reports the fields it had to
// drop, such as an unparseable price tier.
func NormalizeWithWarnings(raw menu.RawMealEntry) (*menu.Meal, []string, error) {
	desc := CleanDescription(raw.Description)
	if desc == "" {
		return nil, nil, ingesterr.Parse(raw.Source, "normalize", errors.New("blank description"))
	}
	if raw.Date.IsZero() {
		return nil, nil, ingesterr.Parse(raw.Source, "normalize", fmt.Errorf("missing date for %q", desc))
	}
	venue := collapse(raw.Venue)
	if venue == "" {
		return nil, nil, ingesterr.Parse(raw.Source, "normalize", fmt.Errorf("missing venue for %q", desc))
	}

	var warnings []string
	m := &menu.Meal{
		Venue:          venue,
		ServedOn:       menu.Day(raw.Date),
		DescriptionKey: menu.DescriptionKey(desc),
		Description:    desc,
		Category:       collapse(raw.Category),
		Source:         raw.Source,
		Markings:       collapse(raw.Markings),
		NutritionRaw:   collapse(raw.Nutrition),
		Notes:          collapse(raw.Notes),
	}
	m.SetTags(Tags(raw.Markings))

	prices := menu.PriceTiers{}
	for _, tier := range sortedTiers(raw.Prices) {
		cents, err := ParseCents(raw.Prices[tier])
		switch {
		case err == nil:
			prices[tier] = cents
		case errors.Is(err, errBlank):
		default:
			warnings = append(warnings, fmt.Sprintf("price %s dropped: %v", tier, err))
		}
	}
	m.SetPriceTiers(prices)

	m.EnergyKcal = raw.EnergyKcal
	if m.EnergyKcal == nil {
		m.EnergyKcal = parseEnergy(raw.Nutrition)
	}
	m.ProteinG = raw.ProteinG
	if m.ProteinG == nil {
		m.ProteinG = parseProtein(raw.Nutrition)
	}

	s := raw.Sustainability
	m.CO2Grams = optionalDecimal(s.CO2Value, "co2", &warnings)
	m.CO2SavingsPct = optionalDecimal(s.CO2Savings, "co2_savings", &warnings)
	m.WaterLiters = optionalDecimal(s.WaterValue, "water", &warnings)
	m.CO2Rating = collapse(s.CO2Rating)
	m.WaterRating = collapse(s.WaterRating)
	m.AnimalWelfare = collapse(s.AnimalWelfare)
	m.RainforestSafe = collapse(s.RainforestSafe)

	return m, warnings, nil
}

// CleanDescription collapses whitespace and trims stray separators that
// OCR and feed concatenation leave at either end.
func CleanDescription(s string) string {
	s = collapse(s)
	return strings.TrimSpace(strings.Trim(s, ",;|·•-– "))
}

// Tags maps dietary codes to canonical tags. Unknown codes are ignored here
// and stay visible in Markings.
func Tags(markings string) []menu.DietaryTag {
	var out []menu.DietaryTag
	for _, code := range strings.FieldsFunc(markings, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' }) {
		code = strings.ToLower(strings.Trim(code, "() "))
		if tag, ok := codeTags[code]; ok {
			out = append(out, tag)
		}
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\u00a0", " ")), " ")
}

func optionalDecimal(raw, field string, warnings *[]string) *float64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := ParseDecimal(raw)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("%s dropped: %v", field, err))
		return nil
	}
	return &v
}

func sortedTiers(p map[menu.Tier]string) []menu.Tier {
	out := make([]menu.Tier, 0, len(p))
	for t := range p {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
