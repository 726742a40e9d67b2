package menu

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

func ParseVoteDirection(s string) (VoteDirection, bool) {
	switch VoteDirection(strings.ToLower(strings.TrimSpace(s))) {
	case VoteUp:
		return VoteUp, true
	case VoteDown:
		return VoteDown, true
	default:
		return "", false
	}
}

// Vote is one voter's current opinion on one meal. A changed direction
// overwrites the row; there is at most one row per (MealID, VoterHash).
type Vote struct {
	ID        uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	MealID    uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_meal_vote_voter,priority:1;index" json:"meal_id"`
	VoterHash string        `gorm:"column:voter_hash;not null;uniqueIndex:idx_meal_vote_voter,priority:2" json:"-"`
	Direction VoteDirection `gorm:"column:direction;not null" json:"direction"`
	CreatedAt time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Vote) TableName() string { return "meal_vote" }

func (v *Vote) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type Tally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}
