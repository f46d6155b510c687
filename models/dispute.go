package models

import "time"

// Dispute resolutions
const (
	ResolutionAccepted = "accepted"
	ResolutionRejected = "rejected"
)

// Dispute is an objection against one completion.
type Dispute struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	CompletionID  string     `json:"completion_id" gorm:"not null;index"`
	DisputedBy    string     `json:"disputed_by" gorm:"not null;index"`
	ObjectionText string     `json:"objection_text" gorm:"type:text;not null"`
	DefenseText   *string    `json:"defense_text,omitempty" gorm:"type:text"`
	Resolution    *string    `json:"resolution,omitempty" gorm:"type:varchar(16)"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at" gorm:"autoCreateTime"`

	Completion *Completion `json:"completion,omitempty" gorm:"foreignKey:CompletionID"`
	Objector   *Member     `json:"objector,omitempty" gorm:"foreignKey:DisputedBy"`
}
