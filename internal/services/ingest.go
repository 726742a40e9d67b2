package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// IngestStarter is the part of the ingestion driver the API needs.
type IngestStarter interface {
	Start(ctx context.Context, day time.Time, trigger string) (*types.IngestRun, error)
}

type IngestService interface {
	// Trigger starts an ingestion run for day in the background. A run
	// already holding the date yields an error matching both
	// ingesterr.ErrLockHeld and pkg/errors.ErrConflict.
	Trigger(ctx context.Context, day time.Time) (*types.IngestRun, error)
	ListRuns(ctx context.Context, limit int) ([]*types.IngestRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*types.IngestRun, error)
}

type ingestService struct {
	log     *logger.Logger
	starter IngestStarter
	runRepo repos.IngestRunRepo
}

func NewIngestService(log *logger.Logger, starter IngestStarter, runRepo repos.IngestRunRepo) IngestService {
	return &ingestService{
		log:     log.With("service", "IngestService"),
		starter: starter,
		runRepo: runRepo,
	}
}

func (s *ingestService) Trigger(ctx context.Context, day time.Time) (*types.IngestRun, error) {
	if s.starter == nil {
		return nil, fmt.Errorf("ingestion not configured: %w", pkgerrors.ErrConflict)
	}
	run, err := s.starter.Start(ctx, day, menu.TriggerManual)
	if errors.Is(err, ingesterr.ErrLockHeld) {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrConflict, err)
	}
	if err != nil {
		s.log.Error("Failed to start ingest run", "date", day.Format(menu.DayLayout), "error", err)
		return nil, fmt.Errorf("start ingest: %w", err)
	}
	s.log.Info("Ingest run triggered", "run_id", run.ID, "date", day.Format(menu.DayLayout))
	return run, nil
}

func (s *ingestService) ListRuns(ctx context.Context, limit int) ([]*types.IngestRun, error) {
	out, err := s.runRepo.ListRecent(dbctx.New(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}
	if out == nil {
		out = []*types.IngestRun{}
	}
	return out, nil
}

func (s *ingestService) GetRun(ctx context.Context, id uuid.UUID) (*types.IngestRun, error) {
	run, err := s.runRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("get ingest run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("ingest run %s: %w", id, pkgerrors.ErrNotFound)
	}
	return run, nil
}
