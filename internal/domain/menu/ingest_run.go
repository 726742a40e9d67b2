package menu

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"

	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

type IngestRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TargetDate     datatypes.Date `gorm:"column:target_date;not null;index" json:"target_date"`
	Trigger        string         `gorm:"column:trigger;not null" json:"trigger"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	MealsSeen      int            `gorm:"column:meals_seen;not null;default:0" json:"meals_seen"`
	MealsInserted  int            `gorm:"column:meals_inserted;not null;default:0" json:"meals_inserted"`
	MealsUpdated   int            `gorm:"column:meals_updated;not null;default:0" json:"meals_updated"`
	MealsUnchanged int            `gorm:"column:meals_unchanged;not null;default:0" json:"meals_unchanged"`
	MealsRejected  int            `gorm:"column:meals_rejected;not null;default:0" json:"meals_rejected"`
	Sources        datatypes.JSON `gorm:"column:sources;type:jsonb" json:"sources"`
	Error          string         `gorm:"column:error" json:"error,omitempty"`
	StartedAt      time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt     *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (IngestRun) TableName() string { return "ingest_run" }

func (r *IngestRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SourceOutcome is one entry of IngestRun.Sources.
type SourceOutcome struct {
	Source  string `json:"source"`
	Entries int    `json:"entries"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Outcomes decodes Sources.
func (r *IngestRun) Outcomes() []SourceOutcome {
	out := []SourceOutcome{}
	if r == nil || len(r.Sources) == 0 {
		return out
	}
	_ = json.Unmarshal(r.Sources, &out)
	return out
}
