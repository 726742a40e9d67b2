package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/data/repos/meals"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type MealRepo = meals.MealRepo
type VoteRepo = meals.VoteRepo
type FitnessScoreRepo = meals.FitnessScoreRepo
type IngestRunRepo = meals.IngestRunRepo

type VenueSummary = meals.VenueSummary

func NewMealRepo(db *gorm.DB, baseLog *logger.Logger) MealRepo { return meals.NewMealRepo(db, baseLog) }
func NewVoteRepo(db *gorm.DB, baseLog *logger.Logger) VoteRepo { return meals.NewVoteRepo(db, baseLog) }
func NewFitnessScoreRepo(db *gorm.DB, baseLog *logger.Logger) FitnessScoreRepo {
	return meals.NewFitnessScoreRepo(db, baseLog)
}
func NewIngestRunRepo(db *gorm.DB, baseLog *logger.Logger) IngestRunRepo {
	return meals.NewIngestRunRepo(db, baseLog)
}
