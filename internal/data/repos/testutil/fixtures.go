package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
)

// Venue returns a venue name unique to this test so shared Postgres runs do
// not see each other's rows.
func Venue(tb testing.TB, base string) string {
	tb.Helper()
	return base + " " + uuid.NewString()[:8]
}

func SeedMeal(tb testing.TB, ctx context.Context, tx *gorm.DB, venue string, day time.Time, description string, studentCents int64) *menu.Meal {
	tb.Helper()
	now := time.Now().UTC()
	m := &menu.Meal{
		ID:             uuid.New(),
		Venue:          venue,
		ServedOn:       menu.Day(day),
		Description:    description,
		DescriptionKey: menu.DescriptionKey(description),
		FirstSeenAt:    now,
		LastUpdatedAt:  now,
	}
	m.SetPriceTiers(menu.PriceTiers{menu.TierStudent: studentCents})
	m.SetTags(nil)
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed meal: %v", err)
	}
	return m
}

func PtrFloat(v float64) *float64 { return &v }
