package menu

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FitnessScore caches the externally generated 0-100 preference score per
// normalized description, so a dish seen again is not re-scored.
type FitnessScore struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DescriptionKey string    `gorm:"column:description_key;not null;uniqueIndex" json:"description_key"`
	Description    string    `gorm:"column:description;not null" json:"description"`
	Score          float64   `gorm:"column:score;not null" json:"score"`
	Provider       string    `gorm:"column:provider" json:"provider,omitempty"`
	Model          string    `gorm:"column:model" json:"model,omitempty"`
	CreatedAt      time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (FitnessScore) TableName() string { return "fitness_score" }

func (f *FitnessScore) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
