package app

import (
	httpserver "github.com/yungbote/mensa-backend/internal/http"
	"github.com/yungbote/mensa-backend/internal/observability"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *httpserver.Server {
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:                log,
		Metrics:            metrics,
		ServiceName:        cfg.ServiceName,
		Tracing:            cfg.OtelEnabled,
		CORSOrigins:        cfg.CORSOrigins,
		VoterMiddleware:    middleware.Voter,
		IngestTriggerToken: cfg.IngestTriggerToken,
		HealthHandler:      handlers.Health,
		MealHandler:        handlers.Meal,
		VoteHandler:        handlers.Vote,
		IngestHandler:      handlers.Ingest,

		RecommendationHandler: handlers.Recommendation,
	})
}
