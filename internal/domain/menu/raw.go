package menu

import "time"

// RawMealEntry is one dish exactly as an upstream source reported it.
// Nothing here is trusted; the normalizer is the only path from a raw entry
// to a Meal.
type RawMealEntry struct {
	Source      string
	Venue       string
	Date        time.Time
	Description string
	Category    string
	Markings    string
	Prices      map[Tier]string
	Nutrition   string
	Notes       string

	// Explicit values win over anything parsed from Nutrition.
	EnergyKcal *float64
	ProteinG   *float64

	Sustainability Sustainability
}

// Sustainability carries the optional environmental attributes some feeds
// publish, still as raw strings.
type Sustainability struct {
	CO2Value       string
	CO2Rating      string
	CO2Savings     string
	WaterValue     string
	WaterRating    string
	AnimalWelfare  string
	RainforestSafe string
}
