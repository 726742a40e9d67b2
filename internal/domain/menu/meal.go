package menu

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Meal is the canonical persisted dish served at one venue on one day.
// Identity is (Venue, ServedOn, DescriptionKey); rows are never deleted.
// Score fields are a cache of scoring over the current prices and nutrition.
type Meal struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Venue          string         `gorm:"column:venue;not null;uniqueIndex:idx_meal_identity,priority:1;index" json:"venue"`
	ServedOn       datatypes.Date `gorm:"column:served_on;not null;uniqueIndex:idx_meal_identity,priority:2;index" json:"served_on"`
	DescriptionKey string         `gorm:"column:description_key;not null;uniqueIndex:idx_meal_identity,priority:3" json:"-"`
	Description    string         `gorm:"column:description;not null" json:"description"`
	Category       string         `gorm:"column:category" json:"category,omitempty"`
	Source         string         `gorm:"column:source;index" json:"source,omitempty"`

	Markings    string         `gorm:"column:markings" json:"markings,omitempty"`
	DietaryTags datatypes.JSON `gorm:"column:dietary_tags;type:jsonb" json:"dietary_tags"`
	Prices      datatypes.JSON `gorm:"column:prices;type:jsonb" json:"prices"`

	EnergyKcal   *float64 `gorm:"column:energy_kcal" json:"energy_kcal"`
	ProteinG     *float64 `gorm:"column:protein_g" json:"protein_g"`
	NutritionRaw string   `gorm:"column:nutrition_raw" json:"nutrition_raw,omitempty"`
	Notes        string   `gorm:"column:notes" json:"notes,omitempty"`

	CO2Grams       *float64 `gorm:"column:co2_grams" json:"co2_grams,omitempty"`
	CO2Rating      string   `gorm:"column:co2_rating" json:"co2_rating,omitempty"`
	CO2SavingsPct  *float64 `gorm:"column:co2_savings_pct" json:"co2_savings_pct,omitempty"`
	WaterLiters    *float64 `gorm:"column:water_liters" json:"water_liters,omitempty"`
	WaterRating    string   `gorm:"column:water_rating" json:"water_rating,omitempty"`
	AnimalWelfare  string   `gorm:"column:animal_welfare" json:"animal_welfare,omitempty"`
	RainforestSafe string   `gorm:"column:rainforest_safe" json:"rainforest_safe,omitempty"`

	PrimaryScore   *float64   `gorm:"column:primary_score" json:"primary_score"`
	SecondaryScore *float64   `gorm:"column:secondary_score" json:"secondary_score"`
	TertiaryScore  *float64   `gorm:"column:tertiary_score" json:"tertiary_score"`
	ScoredAt       *time.Time `gorm:"column:scored_at" json:"scored_at,omitempty"`

	Upvotes   int `gorm:"column:upvotes;not null;default:0" json:"upvotes"`
	Downvotes int `gorm:"column:downvotes;not null;default:0" json:"downvotes"`

	FirstSeenAt   time.Time `gorm:"column:first_seen_at;not null;index" json:"first_seen_at"`
	LastUpdatedAt time.Time `gorm:"column:last_updated_at;not null" json:"last_updated_at"`
	CreatedAt     time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Meal) TableName() string { return "meal" }

func (m *Meal) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Identity is the dedup key of a meal.
type Identity struct {
	Venue          string
	ServedOn       time.Time
	DescriptionKey string
}

func (m *Meal) Identity() Identity {
	return Identity{Venue: m.Venue, ServedOn: DayOf(time.Time(m.ServedOn)), DescriptionKey: m.DescriptionKey}
}

// SameMeasurements reports whether the price and nutrition facts that feed
// scoring are identical.
func (m *Meal) SameMeasurements(o *Meal) bool {
	if m == nil || o == nil {
		return m == o
	}
	if !floatPtrEqual(m.EnergyKcal, o.EnergyKcal) || !floatPtrEqual(m.ProteinG, o.ProteinG) {
		return false
	}
	if m.NutritionRaw != o.NutritionRaw {
		return false
	}
	return m.PriceTiers().Equal(o.PriceTiers())
}

func (m *Meal) Tally() Tally {
	return Tally{Up: m.Upvotes, Down: m.Downvotes}
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
