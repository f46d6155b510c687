package models

import "time"

// Completion statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusDisputed = "disputed"
)

// Completion is one member's photo proof for one habit on one calendar date.
// Several records may exist for the same habit and date (a rejected attempt and a retry).
type Completion struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	HabitID     string    `json:"habit_id" gorm:"not null;index"`
	MemberID    string    `json:"member_id" gorm:"not null;index"`
	Date        string    `json:"date" gorm:"type:varchar(10);not null;index"`
	PhotoURL    string    `json:"photo_url"`
	PhotoKey    string    `json:"-"`
	Status      string    `json:"status" gorm:"type:varchar(16);not null;index;default:'approved'"`
	ValidatedBy *string   `json:"validated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Habit stays nil when the habit was deleted after the completion was recorded.
	Habit  *Habit  `json:"habit,omitempty" gorm:"foreignKey:HabitID"`
	Member *Member `json:"member,omitempty" gorm:"foreignKey:MemberID"`
}
