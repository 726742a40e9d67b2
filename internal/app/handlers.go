package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/mensa-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mensa-backend/internal/http/middleware"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Meal   *httpH.MealHandler
	Vote   *httpH.VoteHandler
	Ingest *httpH.IngestHandler

	Recommendation *httpH.RecommendationHandler
}

type Middleware struct {
	Voter *httpMW.VoterMiddleware
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Meal:   httpH.NewMealHandler(services.Meal, services.Badge, cfg.Location),
		Vote:   httpH.NewVoteHandler(services.Vote),
		Ingest: httpH.NewIngestHandler(services.Ingest, cfg.Location),

		Recommendation: httpH.NewRecommendationHandler(services.Recommendation, cfg.Location),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Voter: httpMW.NewVoterMiddleware(log, services.VoterTokens, cfg.SecureCookies),
	}
}
