package models

import "time"

// Round is a scored competition window. StartDate and EndDate are inclusive
// calendar dates in YYYY-MM-DD form.
//
// The partial unique index keeps a single active round per group even when two
// triggers race on the same expiry.
type Round struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	GroupID   string    `json:"group_id" gorm:"not null;index;uniqueIndex:idx_rounds_one_active,where:is_active = true"`
	StartDate string    `json:"start_date" gorm:"type:varchar(10);not null;index"`
	EndDate   string    `json:"end_date" gorm:"type:varchar(10);not null"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:false"`
	WinnerID  *string   `json:"winner_id,omitempty" gorm:"index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
