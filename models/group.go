package models

import (
	"time"
)

// Period is the cadence that governs round boundaries.
type Period string

const (
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Valid() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// Completion policies a group can run under.
const (
	PolicySelfAttest   = "self_attest"
	PolicyPeerApproval = "peer_approval"
)

// Group is a competition cohort
type Group struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	Name             string    `json:"name" gorm:"not null"`
	InviteCode       string    `json:"invite_code" gorm:"uniqueIndex;size:6;not null"`
	Period           Period    `json:"period" gorm:"type:varchar(16);not null;default:'weekly'"`
	CompletionPolicy string    `json:"completion_policy" gorm:"type:varchar(16);not null;default:'self_attest'"`
	Prize            string    `json:"prize"`
	AnnualPrize      *string   `json:"annual_prize,omitempty"`
	CreatedBy        *string   `json:"created_by,omitempty" gorm:"index"` // Member.ID of the owner
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Habits []Habit `json:"habits,omitempty" gorm:"foreignKey:GroupID"`
}

// Habit is a group-scoped task definition. Level 1 is the hardest and worth the most.
type Habit struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	GroupID   string    `json:"group_id" gorm:"not null;index"`
	Name      string    `json:"name" gorm:"not null"`
	Level     int       `json:"level" gorm:"not null;default:2"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}
