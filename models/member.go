package models

import "time"

// Member is a person's participation profile inside one group. One person holds one
// Member per group, all sharing the same session token.
type Member struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	GroupID      string    `json:"group_id" gorm:"not null;index"`
	Nickname     string    `json:"nickname" gorm:"not null"`
	SessionToken string    `json:"-" gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`

	Group *Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}
