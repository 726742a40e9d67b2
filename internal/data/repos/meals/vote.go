package meals

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type VoteRepo interface {
	// Upsert records the voter's direction, replacing any earlier vote by the
	// same voter on the same meal.
	Upsert(dbc dbctx.Context, vote *types.Vote) error
	GetByVoter(dbc dbctx.Context, mealID uuid.UUID, voterHash string) (*types.Vote, error)
	Tally(dbc dbctx.Context, mealID uuid.UUID) (types.Tally, error)
}

type voteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVoteRepo(db *gorm.DB, baseLog *logger.Logger) VoteRepo {
	return &voteRepo{
		db:  db,
		log: baseLog.With("repo", "VoteRepo"),
	}
}

func (r *voteRepo) Upsert(dbc dbctx.Context, vote *types.Vote) error {
	if vote == nil {
		return nil
	}
	if vote.ID == uuid.Nil {
		vote.ID = uuid.New()
	}
	vote.UpdatedAt = time.Now().UTC()
	return dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "meal_id"}, {Name: "voter_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"direction",
			"updated_at",
		}),
	}).Create(vote).Error
}

func (r *voteRepo) GetByVoter(dbc dbctx.Context, mealID uuid.UUID, voterHash string) (*types.Vote, error) {
	if mealID == uuid.Nil || voterHash == "" {
		return nil, nil
	}
	var v types.Vote
	err := dbc.Conn(r.db).
		Where("meal_id = ? AND voter_hash = ?", mealID, voterHash).
		Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *voteRepo) Tally(dbc dbctx.Context, mealID uuid.UUID) (types.Tally, error) {
	var rows []struct {
		Direction string
		N         int
	}
	if err := dbc.Conn(r.db).
		Model(&types.Vote{}).
		Select("direction, COUNT(*) AS n").
		Where("meal_id = ?", mealID).
		Group("direction").
		Scan(&rows).Error; err != nil {
		return types.Tally{}, err
	}
	var t types.Tally
	for _, row := range rows {
		switch menu.VoteDirection(row.Direction) {
		case menu.VoteUp:
			t.Up = row.N
		case menu.VoteDown:
			t.Down = row.N
		}
	}
	return t, nil
}
