package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"habit-league/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC) // a Wednesday

func newTestDB(t *testing.T, clock clockwork.Clock) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
		NowFunc:                                  func() time.Time { return clock.Now() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))
	return db
}

type sentNotice struct {
	MemberIDs []string
	Title     string
	Body      string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *recordingNotifier) Notify(_ context.Context, memberIDs []string, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{MemberIDs: append([]string(nil), memberIDs...), Title: title, Body: body})
}

func (n *recordingNotifier) all() []sentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotice(nil), n.sent...)
}

type memoryPhotos struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failNext bool
	deleted  []string
}

func newMemoryPhotos() *memoryPhotos {
	return &memoryPhotos{objects: map[string][]byte{}}
}

func (p *memoryPhotos) Upload(_ context.Context, key, _ string, body []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext {
		p.failNext = false
		return "", fmt.Errorf("bucket unavailable")
	}
	p.objects[key] = body
	return "https://cdn.test/" + key, nil
}

func (p *memoryPhotos) Delete(_ context.Context, keys []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.objects, k)
		p.deleted = append(p.deleted, k)
	}
	return nil
}

// fixture is a group with members, one habit per level and an active round.
type fixture struct {
	Group   models.Group
	Members []models.Member
	Habits  map[int]models.Habit
	Round   models.Round
}

func seedGroup(t *testing.T, db *gorm.DB, period models.Period, policy, start, end string, nicknames ...string) fixture {
	t.Helper()
	f := fixture{Habits: map[int]models.Habit{}}
	f.Group = models.Group{
		ID:               uuid.NewString(),
		Name:             "Casa Fit",
		InviteCode:       uuid.NewString()[:6],
		Period:           period,
		CompletionPolicy: policy,
		Prize:            "dinner",
	}
	require.NoError(t, db.Omit("Habits").Create(&f.Group).Error)

	for i, nick := range nicknames {
		m := models.Member{
			ID:           uuid.NewString(),
			GroupID:      f.Group.ID,
			Nickname:     nick,
			SessionToken: "session-" + nick,
			CreatedAt:    baseTime.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Omit("Group").Create(&m).Error)
		f.Members = append(f.Members, m)
	}
	if len(f.Members) > 0 {
		require.NoError(t, db.Model(&f.Group).Update("created_by", f.Members[0].ID).Error)
		f.Group.CreatedBy = &f.Members[0].ID
	}

	for level, name := range map[int]string{1: "run 5k", 2: "read", 3: "water"} {
		h := models.Habit{ID: uuid.NewString(), GroupID: f.Group.ID, Name: name, Level: level}
		require.NoError(t, db.Create(&h).Error)
		f.Habits[level] = h
	}

	f.Round = models.Round{ID: uuid.NewString(), GroupID: f.Group.ID, StartDate: start, EndDate: end, IsActive: true}
	require.NoError(t, db.Create(&f.Round).Error)
	return f
}

func addCompletion(t *testing.T, db *gorm.DB, member models.Member, habit models.Habit, date, status string) models.Completion {
	t.Helper()
	c := models.Completion{
		ID:       uuid.NewString(),
		HabitID:  habit.ID,
		MemberID: member.ID,
		Date:     date,
		PhotoURL: "https://cdn.test/" + date,
		PhotoKey: "groups/test/" + date + "/" + uuid.NewString() + ".jpg",
		Status:   status,
	}
	require.NoError(t, db.Omit("Habit", "Member").Create(&c).Error)
	return c
}

func activeRounds(t *testing.T, db *gorm.DB, groupID string) []models.Round {
	t.Helper()
	var rounds []models.Round
	require.NoError(t, db.Where("group_id = ? AND is_active = ?", groupID, true).Find(&rounds).Error)
	return rounds
}
