package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/mensa-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mensa-backend/internal/http/middleware"
	"github.com/yungbote/mensa-backend/internal/observability"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	Tracing     bool
	CORSOrigins []string

	VoterMiddleware    *httpMW.VoterMiddleware
	IngestTriggerToken string

	HealthHandler *httpH.HealthHandler
	MealHandler   *httpH.MealHandler
	VoteHandler   *httpH.VoteHandler
	IngestHandler *httpH.IngestHandler

	RecommendationHandler *httpH.RecommendationHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		name := cfg.ServiceName
		if name == "" {
			name = "mensa-backend"
		}
		r.Use(otelgin.Middleware(name))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	if cfg.VoterMiddleware != nil {
		api.Use(cfg.VoterMiddleware.AttachVoter())
	}
	{
		// Meals
		if cfg.MealHandler != nil {
			api.GET("/meals", cfg.MealHandler.ListMeals)
			api.GET("/meals/:id", cfg.MealHandler.GetMeal)
			api.GET("/meals/:id/badge.png", cfg.MealHandler.Badge)
			api.GET("/venues", cfg.MealHandler.ListVenues)
		}

		// Votes
		if cfg.VoteHandler != nil {
			api.POST("/meals/:id/vote", cfg.VoteHandler.CastVote)
			api.GET("/meals/:id/votes", cfg.VoteHandler.GetVotes)
		}

		// Persona commentary
		if cfg.RecommendationHandler != nil {
			api.GET("/recommendations", cfg.RecommendationHandler.ListPersonas)
			api.POST("/recommendations/:persona", cfg.RecommendationHandler.Recommend)
		}
	}

	ingest := api.Group("/ingest")
	{
		if cfg.IngestHandler != nil {
			ingest.Use(httpMW.RequireToken(cfg.IngestTriggerToken))
			ingest.POST("", cfg.IngestHandler.Trigger)
			ingest.GET("/runs", cfg.IngestHandler.ListRuns)
			ingest.GET("/runs/:id", cfg.IngestHandler.GetRun)
		}
	}

	return r
}
