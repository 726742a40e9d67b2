package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/mensa-backend/internal/data/repos"
	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/observability"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/mensa-backend/internal/pkg/errors"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// VoteState is a meal's tally as seen by one voter.
type VoteState struct {
	Up        int                 `json:"up"`
	Down      int                 `json:"down"`
	HasVoted  bool                `json:"has_voted"`
	Direction types.VoteDirection `json:"direction,omitempty"`
}

type VoteService interface {
	// Cast records the voter's direction on a meal and returns the new
	// tally. A second vote by the same voter replaces the first.
	Cast(ctx context.Context, mealID uuid.UUID, fingerprint string, direction string) (types.Tally, error)
	Tally(ctx context.Context, mealID uuid.UUID, fingerprint string) (*VoteState, error)
}

type voteService struct {
	db       *gorm.DB
	log      *logger.Logger
	mealRepo repos.MealRepo
	voteRepo repos.VoteRepo
	tokens   VoterTokenService
}

func NewVoteService(db *gorm.DB, log *logger.Logger, mealRepo repos.MealRepo, voteRepo repos.VoteRepo, tokens VoterTokenService) VoteService {
	return &voteService{
		db:       db,
		log:      log.With("service", "VoteService"),
		mealRepo: mealRepo,
		voteRepo: voteRepo,
		tokens:   tokens,
	}
}

func (s *voteService) Cast(ctx context.Context, mealID uuid.UUID, fingerprint string, direction string) (types.Tally, error) {
	dir, ok := menu.ParseVoteDirection(direction)
	if !ok {
		return types.Tally{}, fmt.Errorf("direction %q must be up or down: %w", direction, pkgerrors.ErrInvalidArgument)
	}
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return types.Tally{}, fmt.Errorf("voter required: %w", pkgerrors.ErrInvalidArgument)
	}
	if mealID == uuid.Nil {
		return types.Tally{}, fmt.Errorf("meal id required: %w", pkgerrors.ErrInvalidArgument)
	}
	voterHash := s.tokens.Hash(fingerprint)

	var tally types.Tally
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		// The meal row lock serialises concurrent casts so the recount
		// below always sees every committed vote.
		meal, err := s.mealRepo.GetByIDForUpdate(dbc, mealID)
		if err != nil {
			return fmt.Errorf("load meal: %w", err)
		}
		if meal == nil {
			return fmt.Errorf("meal %s: %w", mealID, pkgerrors.ErrNotFound)
		}
		if err := s.voteRepo.Upsert(dbc, &types.Vote{MealID: mealID, VoterHash: voterHash, Direction: dir}); err != nil {
			return fmt.Errorf("store vote: %w", err)
		}
		tally, err = s.voteRepo.Tally(dbc, mealID)
		if err != nil {
			return fmt.Errorf("count votes: %w", err)
		}
		if err := s.mealRepo.SetTally(dbc, mealID, tally); err != nil {
			return fmt.Errorf("store tally: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, pkgerrors.ErrNotFound) {
			s.log.Error("Vote failed", "meal_id", mealID, "error", err)
		}
		return types.Tally{}, err
	}
	observability.Current().IncVote(string(dir))
	return tally, nil
}

func (s *voteService) Tally(ctx context.Context, mealID uuid.UUID, fingerprint string) (*VoteState, error) {
	dbc := dbctx.New(ctx)
	meal, err := s.mealRepo.GetByID(dbc, mealID)
	if err != nil {
		return nil, fmt.Errorf("load meal: %w", err)
	}
	if meal == nil {
		return nil, fmt.Errorf("meal %s: %w", mealID, pkgerrors.ErrNotFound)
	}
	state := &VoteState{Up: meal.Upvotes, Down: meal.Downvotes}
	if fingerprint = strings.TrimSpace(fingerprint); fingerprint != "" {
		v, err := s.voteRepo.GetByVoter(dbc, mealID, s.tokens.Hash(fingerprint))
		if err != nil {
			return nil, fmt.Errorf("load vote: %w", err)
		}
		if v != nil {
			state.HasVoted = true
			state.Direction = v.Direction
		}
	}
	return state, nil
}
