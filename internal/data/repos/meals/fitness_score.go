package meals

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type FitnessScoreRepo interface {
	GetByKeys(dbc dbctx.Context, keys []string) (map[string]*types.FitnessScore, error)
	Upsert(dbc dbctx.Context, row *types.FitnessScore) error
}

type fitnessScoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFitnessScoreRepo(db *gorm.DB, baseLog *logger.Logger) FitnessScoreRepo {
	return &fitnessScoreRepo{
		db:  db,
		log: baseLog.With("repo", "FitnessScoreRepo"),
	}
}

func (r *fitnessScoreRepo) GetByKeys(dbc dbctx.Context, keys []string) (map[string]*types.FitnessScore, error) {
	out := map[string]*types.FitnessScore{}
	if len(keys) == 0 {
		return out, nil
	}
	var rows []*types.FitnessScore
	if err := dbc.Conn(r.db).Where("description_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DescriptionKey] = row
	}
	return out, nil
}

func (r *fitnessScoreRepo) Upsert(dbc dbctx.Context, row *types.FitnessScore) error {
	if row == nil || row.DescriptionKey == "" {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return dbc.Conn(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "description_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"score",
			"provider",
			"model",
			"updated_at",
		}),
	}).Create(row).Error
}
