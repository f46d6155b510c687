package models

import "time"

// NotificationSettings are the reminder toggles a member opted into.
type NotificationSettings struct {
	MemberID      string    `json:"member_id" gorm:"primaryKey"`
	DailyReminder bool      `json:"daily_reminder" gorm:"default:false"`
	DailyTime     string    `json:"daily_time" gorm:"type:varchar(5);default:'20:00'"` // HH:MM
	LastChance    bool      `json:"last_chance" gorm:"default:false"`
	LeaderChange  bool      `json:"leader_change" gorm:"default:false"`
	LeaderStreak  bool      `json:"leader_streak" gorm:"default:false"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NotificationState is the reminder bookkeeping for one member.
// NotifiedTags and StreakDays hold comma separated values.
type NotificationState struct {
	MemberID       string    `json:"member_id" gorm:"primaryKey"`
	LogDate        string    `json:"log_date" gorm:"type:varchar(10)"`
	SentCount      int       `json:"sent_count"`
	NotifiedTags   string    `json:"notified_tags"`
	LastLeaderID   string    `json:"last_leader_id"`
	StreakLeaderID string    `json:"streak_leader_id"`
	StreakDays     string    `json:"streak_days"`
	StreakLastDate string    `json:"streak_last_date" gorm:"type:varchar(10)"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
