package meals

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type IngestRunRepo interface {
	Create(dbc dbctx.Context, run *types.IngestRun) error
	Finish(dbc dbctx.Context, run *types.IngestRun, outcomes []types.SourceOutcome) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IngestRun, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*types.IngestRun, error)
	// FailStale marks runs still "running" that started before cutoff as
	// failed. Such rows are left behind by a process that died mid-run.
	FailStale(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type ingestRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewIngestRunRepo(db *gorm.DB, baseLog *logger.Logger) IngestRunRepo {
	return &ingestRunRepo{
		db:  db,
		log: baseLog.With("repo", "IngestRunRepo"),
	}
}

func (r *ingestRunRepo) Create(dbc dbctx.Context, run *types.IngestRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	run.StartedAt = run.StartedAt.UTC().Truncate(time.Microsecond)
	if run.Status == "" {
		run.Status = menu.RunStatusRunning
	}
	if len(run.Sources) == 0 {
		run.Sources = datatypes.JSON("[]")
	}
	return dbc.Conn(r.db).Create(run).Error
}

func (r *ingestRunRepo) Finish(dbc dbctx.Context, run *types.IngestRun, outcomes []types.SourceOutcome) error {
	if outcomes == nil {
		outcomes = []types.SourceOutcome{}
	}
	b, err := json.Marshal(outcomes)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	run.Sources = datatypes.JSON(b)
	run.FinishedAt = &now
	return dbc.Conn(r.db).
		Model(&types.IngestRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":          run.Status,
			"meals_seen":      run.MealsSeen,
			"meals_inserted":  run.MealsInserted,
			"meals_updated":   run.MealsUpdated,
			"meals_unchanged": run.MealsUnchanged,
			"meals_rejected":  run.MealsRejected,
			"sources":         run.Sources,
			"error":           run.Error,
			"finished_at":     run.FinishedAt,
		}).Error
}

func (r *ingestRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.IngestRun, error) {
	var run types.IngestRun
	err := dbc.Conn(r.db).Where("id = ?", id).Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *ingestRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.IngestRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*types.IngestRun
	if err := dbc.Conn(r.db).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ingestRunRepo) FailStale(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res := dbc.Conn(r.db).
		Model(&types.IngestRun{}).
		Where("status = ? AND started_at < ?", menu.RunStatusRunning, cutoff.UTC()).
		Updates(map[string]any{
			"status":      menu.RunStatusFailed,
			"error":       "abandoned: process exited before the run finished",
			"finished_at": now,
		})
	return res.RowsAffected, res.Error
}
