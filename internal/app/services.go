package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/ingestion/pipeline"
	"github.com/yungbote/mensa-backend/internal/ingestion/scoring"
	"github.com/yungbote/mensa-backend/internal/ingestion/sources"
	"github.com/yungbote/mensa-backend/internal/jobs/scheduler"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
	"github.com/yungbote/mensa-backend/internal/services"
)

type Services struct {
	Meal        services.MealService
	Vote        services.VoteService
	VoterTokens services.VoterTokenService
	Badge       services.BadgeService
	Ingest      services.IngestService

	Recommendation services.RecommendationService

	Driver    *pipeline.Driver
	Scheduler *scheduler.Scheduler
}

// wireIngestion builds the pipeline driver shared by the scheduler, the
// HTTP trigger and the CLI.
func wireIngestion(log *logger.Logger, cfg Config, reposet Repos, clients Clients) (*pipeline.Driver, error) {
	log.Info("Wiring ingestion...")
	srcCfg, err := sources.LoadConfig(cfg.SourcesConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	srcs, err := sources.Build(log, srcCfg, sources.Deps{
		Client:          clients.HTTP,
		FeedTimeout:     cfg.FeedTimeout,
		DocumentTimeout: cfg.DocumentTimeout,
		Backoff:         cfg.RetryBackoff,
		Extractor:       clients.Extractor,
		Archive:         clients.Archive,
		Browser:         clients.Browser,
	})
	if err != nil {
		return nil, fmt.Errorf("build sources: %w", err)
	}
	if len(srcs) == 0 {
		log.Warn("No menu sources enabled")
	}

	rules, err := scoring.LoadRules(cfg.ScoringRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load scoring rules: %w", err)
	}
	var fitness *scoring.FitnessScorer
	if clients.Generator != nil {
		fitness = scoring.NewFitnessScorer(log, clients.Generator, cfg.AITimeout, cfg.RetryBackoff)
	}

	return pipeline.NewDriver(pipeline.Config{
		LockTTL:          cfg.IngestLockTTL,
		FetchConcurrency: cfg.FetchConcurrency,
		RunTimeout:       cfg.IngestRunTimeout,
	}, pipeline.Deps{
		Log:          log,
		Sources:      srcs,
		Engine:       scoring.NewEngine(rules),
		Fitness:      fitness,
		Locker:       clients.Locker,
		Meals:        reposet.Meal,
		FitnessCache: reposet.FitnessScore,
		Runs:         reposet.IngestRun,
	})
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, driver *pipeline.Driver) (Services, error) {
	log.Info("Wiring services...")
	tokens, err := services.NewVoterTokenService(log, cfg.VoterTokenSecret, cfg.VoterTokenTTL)
	if err != nil {
		return Services{}, fmt.Errorf("init voter tokens: %w", err)
	}
	badges, err := services.NewBadgeService(log)
	if err != nil {
		return Services{}, fmt.Errorf("init badges: %w", err)
	}

	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched = scheduler.New(log, scheduler.Config{
			Interval:   cfg.IngestInterval,
			DaysAhead:  cfg.IngestDaysAhead,
			Location:   cfg.Location,
			RunOnStart: cfg.IngestRunOnStart,
			StaleAfter: cfg.IngestStaleAfter,
		}, driver, reposet.IngestRun)
	}

	meals := services.NewMealService(db, log, reposet.Meal)
	if clients.Generator == nil {
		log.Info("Persona recommendations disabled, no text generator")
	}

	return Services{
		Meal:        meals,
		Vote:        services.NewVoteService(db, log, reposet.Meal, reposet.Vote, tokens),
		VoterTokens: tokens,
		Badge:       badges,
		Ingest:      services.NewIngestService(log, driver, reposet.IngestRun),

		Recommendation: services.NewRecommendationService(log, clients.Generator, meals, cfg.AITimeout, cfg.RetryBackoff),

		Driver:    driver,
		Scheduler: sched,
	}, nil
}
