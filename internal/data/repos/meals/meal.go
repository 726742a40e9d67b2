package meals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/mensa-backend/internal/domain"
	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/pkg/dbctx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type UpsertOutcome string

const (
	Inserted  UpsertOutcome = "inserted"
	Updated   UpsertOutcome = "updated"
	Unchanged UpsertOutcome = "unchanged"
)

type VenueSummary struct {
	Venue string `json:"venue"`
	Meals int64  `json:"meals"`
}

type MealRepo interface {
	FindByIdentity(dbc dbctx.Context, id menu.Identity) (*types.Meal, error)
	FindByIdentities(dbc dbctx.Context, day time.Time, venue string, keys []string) (map[string]*types.Meal, error)
	Upsert(dbc dbctx.Context, incoming *types.Meal) (UpsertOutcome, *types.Meal, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Meal, error)
	// GetByIDForUpdate row-locks the meal until dbc's transaction ends.
	GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Meal, error)
	ListByDate(dbc dbctx.Context, day time.Time, venue string) ([]*types.Meal, error)
	Venues(dbc dbctx.Context, day time.Time) ([]VenueSummary, error)
	SetTally(dbc dbctx.Context, mealID uuid.UUID, tally types.Tally) error
}

type mealRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMealRepo(db *gorm.DB, baseLog *logger.Logger) MealRepo {
	return &mealRepo{
		db:  db,
		log: baseLog.With("repo", "MealRepo"),
	}
}

func (r *mealRepo) FindByIdentity(dbc dbctx.Context, id menu.Identity) (*types.Meal, error) {
	return r.findByIdentity(dbc.Conn(r.db), id, false)
}

func (r *mealRepo) findByIdentity(transaction *gorm.DB, id menu.Identity, lock bool) (*types.Meal, error) {
	q := transaction.Model(&types.Meal{})
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m types.Meal
	err := q.Where("venue = ? AND served_on = ? AND description_key = ?",
		id.Venue, menu.Day(id.ServedOn), id.DescriptionKey).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mealRepo) FindByIdentities(dbc dbctx.Context, day time.Time, venue string, keys []string) (map[string]*types.Meal, error) {
	out := map[string]*types.Meal{}
	if len(keys) == 0 {
		return out, nil
	}
	var rows []*types.Meal
	if err := dbc.Conn(r.db).
		Where("venue = ? AND served_on = ? AND description_key IN ?", venue, menu.Day(day), keys).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.DescriptionKey] = m
	}
	return out, nil
}

// Upsert stores incoming under its identity. An existing row only has its
// measurements, descriptive fields and scores replaced, and only when the
// measurements differ or a tertiary score becomes available; votes and
// FirstSeenAt are never touched. The returned meal is the stored row.
func (r *mealRepo) Upsert(dbc dbctx.Context, incoming *types.Meal) (UpsertOutcome, *types.Meal, error) {
	if incoming == nil {
		return "", nil, fmt.Errorf("upsert meal: nil meal")
	}
	if incoming.DescriptionKey == "" {
		incoming.DescriptionKey = menu.DescriptionKey(incoming.Description)
	}
	if incoming.DescriptionKey == "" || incoming.Venue == "" {
		return "", nil, fmt.Errorf("upsert meal: missing venue or description")
	}
	incoming.ServedOn = menu.Day(time.Time(incoming.ServedOn))

	var (
		outcome UpsertOutcome
		stored  *types.Meal
	)
	run := func(tx *gorm.DB) error {
		var err error
		outcome, stored, err = r.upsertTx(tx, incoming)
		return err
	}

	var err error
	if dbc.Tx != nil {
		err = run(dbc.Conn(r.db))
	} else {
		err = dbc.Conn(r.db).Transaction(run)
	}
	if err != nil {
		return "", nil, err
	}
	return outcome, stored, nil
}

func (r *mealRepo) upsertTx(tx *gorm.DB, incoming *types.Meal) (UpsertOutcome, *types.Meal, error) {
	existing, err := r.findByIdentity(tx, incoming.Identity(), true)
	if err != nil {
		return "", nil, fmt.Errorf("lookup meal: %w", err)
	}

	if existing == nil {
		now := time.Now().UTC().Truncate(time.Microsecond)
		row := *incoming
		row.ID = uuid.Nil
		row.Upvotes, row.Downvotes = 0, 0
		row.FirstSeenAt = now
		row.LastUpdatedAt = now
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return "", nil, fmt.Errorf("insert meal: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return Inserted, &row, nil
		}
		// Lost an insert race; fall through to the update path.
		existing, err = r.findByIdentity(tx, incoming.Identity(), true)
		if err != nil {
			return "", nil, fmt.Errorf("reload meal after conflict: %w", err)
		}
		if existing == nil {
			return "", nil, fmt.Errorf("reload meal after conflict: %w", gorm.ErrRecordNotFound)
		}
	}

	measurementsChanged := !existing.SameMeasurements(incoming)
	tertiaryArrived := existing.TertiaryScore == nil && incoming.TertiaryScore != nil
	if !measurementsChanged && !tertiaryArrived {
		return Unchanged, existing, nil
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"last_updated_at": now,
	}
	if measurementsChanged {
		updates["prices"] = incoming.Prices
		updates["energy_kcal"] = incoming.EnergyKcal
		updates["protein_g"] = incoming.ProteinG
		updates["nutrition_raw"] = incoming.NutritionRaw
		updates["primary_score"] = incoming.PrimaryScore
		updates["secondary_score"] = incoming.SecondaryScore
		updates["scored_at"] = incoming.ScoredAt
		updates["category"] = incoming.Category
		updates["markings"] = incoming.Markings
		updates["dietary_tags"] = incoming.DietaryTags
		updates["notes"] = incoming.Notes
		updates["co2_grams"] = incoming.CO2Grams
		updates["co2_rating"] = incoming.CO2Rating
		updates["co2_savings_pct"] = incoming.CO2SavingsPct
		updates["water_liters"] = incoming.WaterLiters
		updates["water_rating"] = incoming.WaterRating
		updates["animal_welfare"] = incoming.AnimalWelfare
		updates["rainforest_safe"] = incoming.RainforestSafe
	}
	if incoming.TertiaryScore != nil {
		updates["tertiary_score"] = incoming.TertiaryScore
	}

	if err := tx.Model(&types.Meal{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return "", nil, fmt.Errorf("update meal: %w", err)
	}

	var reloaded types.Meal
	if err := tx.Where("id = ?", existing.ID).Take(&reloaded).Error; err != nil {
		return "", nil, fmt.Errorf("reload meal: %w", err)
	}
	return Updated, &reloaded, nil
}

func (r *mealRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Meal, error) {
	return r.getByID(dbc.Conn(r.db), id, false)
}

func (r *mealRepo) GetByIDForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Meal, error) {
	return r.getByID(dbc.Conn(r.db), id, true)
}

func (r *mealRepo) getByID(transaction *gorm.DB, id uuid.UUID, lock bool) (*types.Meal, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	q := transaction.Model(&types.Meal{})
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m types.Meal
	err := q.Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *mealRepo) ListByDate(dbc dbctx.Context, day time.Time, venue string) ([]*types.Meal, error) {
	q := dbc.Conn(r.db).Where("served_on = ?", menu.Day(day))
	if venue != "" {
		q = q.Where("venue = ?", venue)
	}
	var out []*types.Meal
	if err := q.Order("venue ASC").Order("category ASC").Order("description ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mealRepo) Venues(dbc dbctx.Context, day time.Time) ([]VenueSummary, error) {
	var out []VenueSummary
	if err := dbc.Conn(r.db).
		Model(&types.Meal{}).
		Select("venue, COUNT(*) AS meals").
		Where("served_on = ?", menu.Day(day)).
		Group("venue").
		Order("venue ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mealRepo) SetTally(dbc dbctx.Context, mealID uuid.UUID, tally types.Tally) error {
	res := dbc.Conn(r.db).
		Model(&types.Meal{}).
		Where("id = ?", mealID).
		UpdateColumns(map[string]any{
			"upvotes":   tally.Up,
			"downvotes": tally.Down,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
