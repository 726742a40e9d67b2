package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Repos struct {
	Meal         repos.MealRepo
	Vote         repos.VoteRepo
	FitnessScore repos.FitnessScoreRepo
	IngestRun    repos.IngestRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Meal:         repos.NewMealRepo(db, log),
		Vote:         repos.NewVoteRepo(db, log),
		FitnessScore: repos.NewFitnessScoreRepo(db, log),
		IngestRun:    repos.NewIngestRunRepo(db, log),
	}
}
