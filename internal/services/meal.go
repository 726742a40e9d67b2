package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type MealService interface {
	// ListByDate returns the persisted meals of day ordered by venue,
	// category and description. A nil or blank venue lists every venue.
	ListByDate(ctx context.Context, day time.Time, venue *string) ([]*types.Meal, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Meal, error)
	Venues(ctx context.Context, day time.Time) ([]repos.VenueSummary, error)
}

type mealService struct {
	db       *gorm.DB
	log      *logger.Logger
	mealRepo repos.MealRepo
}

func NewMealService(db *gorm.DB, log *logger.Logger, mealRepo repos.MealRepo) MealService {
	return &mealService{
		db:       db,
		log:      log.With("service", "MealService"),
		mealRepo: mealRepo,
	}
}

func (s *mealService) ListByDate(ctx context.Context, day time.Time, venue *string) ([]*types.Meal, error) {
	filter := ""
	if venue != nil {
		filter = strings.Join(strings.Fields(*venue), " ")
	}
	meals, err := s.mealRepo.ListByDate(dbctx.New(ctx), day, filter)
	if err != nil {
		s.log.Error("List meals failed", "date", day.Format(time.DateOnly), "venue", filter, "error", err)
		return nil, fmt.Errorf("list meals: %w", err)
	}
	if meals == nil {
		meals = []*types.Meal{}
	}
	return meals, nil
}

func (s *mealService) Get(ctx context.Context, id uuid.UUID) (*types.Meal, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("meal id required: %w", pkgerrors.ErrInvalidArgument)
	}
	m, err := s.mealRepo.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("get meal: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("meal %s: %w", id, pkgerrors.ErrNotFound)
	}
	return m, nil
}

func (s *mealService) Venues(ctx context.Context, day time.Time) ([]repos.VenueSummary, error) {
	out, err := s.mealRepo.Venues(dbctx.New(ctx), day)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	if out == nil {
		out = []repos.VenueSummary{}
	}
	return out, nil
}
