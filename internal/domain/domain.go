package domain

import (
	"github.com/yungbote/mensa-backend/internal/domain/menu"
)

type (
	Meal          = menu.Meal
	Vote          = menu.Vote
	Tally         = menu.Tally
	VoteDirection = menu.VoteDirection
	FitnessScore  = menu.FitnessScore
	IngestRun     = menu.IngestRun
	SourceOutcome = menu.SourceOutcome
	PriceTiers    = menu.PriceTiers
	Tier          = menu.Tier
	DietaryTag    = menu.DietaryTag
)

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&menu.Meal{},
		&menu.Vote{},
		&menu.FitnessScore{},
		&menu.IngestRun{},
	}
}
