package services

import (
	"context"
	"testing"
	"time"

	"habit-league/models"
	"habit-league/scoring"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStates map[string]models.NotificationState

func (m memoryStates) LoadState(_ context.Context, memberID string) (*models.NotificationState, error) {
	st, ok := m[memberID]
	if !ok {
		st = models.NotificationState{MemberID: memberID}
	}
	return &st, nil
}

func (m memoryStates) SaveState(_ context.Context, st *models.NotificationState) error {
	m[st.MemberID] = *st
	return nil
}

func leaderRanking(id, nickname string, points int) []scoring.RankingEntry {
	return []scoring.RankingEntry{
		{Member: models.Member{ID: id, Nickname: nickname}, Points: points},
		{Member: models.Member{ID: "other", Nickname: "other"}, Points: 0},
	}
}

func tags(notices []Notice) []string {
	out := make([]string, len(notices))
	for i, n := range notices {
		out[i] = n.Tag
	}
	return out
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 10, hour, minute, 0, 0, time.UTC)
}

func TestDailyReminderFiresOnceAfterConfiguredTime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(19, 59))
	engine := NewReminderEngine(clock, time.UTC, memoryStates{})
	settings := models.NotificationSettings{MemberID: "m1", DailyReminder: true, DailyTime: "20:00"}
	ctx := context.Background()

	notices, err := engine.Evaluate(ctx, settings, nil, false)
	require.NoError(t, err)
	assert.Empty(t, notices)

	clock.Advance(time.Minute)
	notices, err = engine.Evaluate(ctx, settings, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{TagDaily}, tags(notices))

	notices, err = engine.Evaluate(ctx, settings, nil, false)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestDailyReminderSkippedWhenSomethingWasCompleted(t *testing.T) {
	engine := NewReminderEngine(clockwork.NewFakeClockAt(at(21, 0)), time.UTC, memoryStates{})
	settings := models.NotificationSettings{MemberID: "m1", DailyReminder: true, LastChance: true}

	notices, err := engine.Evaluate(context.Background(), settings, nil, true)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestInvalidDailyTimeFallsBackToEightPM(t *testing.T) {
	engine := NewReminderEngine(clockwork.NewFakeClockAt(at(19, 0)), time.UTC, memoryStates{})
	settings := models.NotificationSettings{MemberID: "m1", DailyReminder: true, DailyTime: "soon"}

	notices, err := engine.Evaluate(context.Background(), settings, nil, false)
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestLastChanceAfterElevenAndDailyCap(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(23, 5))
	states := memoryStates{}
	engine := NewReminderEngine(clock, time.UTC, states)
	settings := models.NotificationSettings{MemberID: "m1", DailyReminder: true, DailyTime: "20:00", LastChance: true, LeaderChange: true}
	ctx := context.Background()

	// Daily first, then stop.
	notices, err := engine.Evaluate(ctx, settings, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{TagDaily}, tags(notices))

	notices, err = engine.Evaluate(ctx, settings, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{TagLastChance}, tags(notices))

	// Two sent today; a leader change is swallowed.
	st := states["m1"]
	st.LastLeaderID = "old"
	states["m1"] = st
	notices, err = engine.Evaluate(ctx, settings, leaderRanking("new", "beto", 30), false)
	require.NoError(t, err)
	assert.Empty(t, notices)

	// Next day the budget resets.
	clock.Advance(24 * time.Hour)
	notices, err = engine.Evaluate(ctx, settings, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []string{TagDaily}, tags(notices))
	assert.Equal(t, "2024-01-11", states["m1"].LogDate)
	assert.Equal(t, 1, states["m1"].SentCount)
}

func TestLeaderChange(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(12, 0))
	states := memoryStates{}
	engine := NewReminderEngine(clock, time.UTC, states)
	settings := models.NotificationSettings{MemberID: "m1", LeaderChange: true}
	ctx := context.Background()

	// First sighting only records the leader.
	notices, err := engine.Evaluate(ctx, settings, leaderRanking("ana", "ana", 30), true)
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, "ana", states["m1"].LastLeaderID)

	// A leader with zero points is not a leader.
	notices, err = engine.Evaluate(ctx, settings, leaderRanking("beto", "beto", 0), true)
	require.NoError(t, err)
	assert.Empty(t, notices)

	notices, err = engine.Evaluate(ctx, settings, leaderRanking("beto", "beto", 40), true)
	require.NoError(t, err)
	require.Equal(t, []string{TagLeader}, tags(notices))
	assert.Contains(t, notices[0].Body, "beto took the lead")

	// Only once per day.
	notices, err = engine.Evaluate(ctx, settings, leaderRanking("ana", "ana", 50), true)
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, "ana", states["m1"].LastLeaderID)
}

func TestLeaderStreakNeedsThreeDistinctDays(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(12, 0))
	states := memoryStates{}
	engine := NewReminderEngine(clock, time.UTC, states)
	settings := models.NotificationSettings{MemberID: "m1", LeaderStreak: true}
	ctx := context.Background()
	ranking := leaderRanking("ana", "ana", 30)

	for day := 0; day < 2; day++ {
		notices, err := engine.Evaluate(ctx, settings, ranking, true)
		require.NoError(t, err)
		assert.Empty(t, notices, "day %d", day)
		// Re-evaluating on the same day does not count twice.
		notices, err = engine.Evaluate(ctx, settings, ranking, true)
		require.NoError(t, err)
		assert.Empty(t, notices)
		clock.Advance(24 * time.Hour)
	}

	notices, err := engine.Evaluate(ctx, settings, ranking, true)
	require.NoError(t, err)
	require.Equal(t, []string{TagStreak}, tags(notices))
	assert.Contains(t, notices[0].Body, "3 days")

	for i := 0; i < 5; i++ {
		clock.Advance(24 * time.Hour)
		_, err = engine.Evaluate(ctx, settings, ranking, true)
		require.NoError(t, err)
	}
	assert.Len(t, splitTags(states["m1"].StreakDays), 5)

	// A new leader restarts the streak.
	clock.Advance(24 * time.Hour)
	notices, err = engine.Evaluate(ctx, settings, leaderRanking("beto", "beto", 60), true)
	require.NoError(t, err)
	assert.Empty(t, notices)
	assert.Equal(t, "beto", states["m1"].StreakLeaderID)
	assert.Len(t, splitTags(states["m1"].StreakDays), 1)
}

func TestAppendStreakDay(t *testing.T) {
	days := appendStreakDay([]string{"2024-01-03", "2024-01-01", "2024-01-02", "2024-01-04", "2024-01-05"}, "2024-01-06")
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-06"}, days)
	assert.Equal(t, []string{"2024-01-01"}, appendStreakDay([]string{"2024-01-01"}, "2024-01-01"))
}

func TestReminderServiceRunOnce(t *testing.T) {
	clock := clockwork.NewFakeClockAt(at(21, 0))
	db := newTestDB(t, clock)
	f := seedGroup(t, db, models.PeriodWeekly, models.PolicySelfAttest, "2024-01-08", "2024-01-14", "ana", "beto", "caro")
	ana, beto, caro := f.Members[0], f.Members[1], f.Members[2]
	addCompletion(t, db, beto, f.Habits[1], "2024-01-10", models.StatusApproved)

	notifier := &recordingNotifier{}
	dash := NewDashboardService(db, clock, time.UTC)
	svc := NewReminderService(db, NewReminderEngine(clock, time.UTC, GormStateStore{DB: db}), dash, notifier)
	ctx := context.Background()

	_, err := svc.SaveSettings(ctx, models.NotificationSettings{MemberID: ana.ID, DailyReminder: true, DailyTime: "20:30"})
	require.NoError(t, err)
	_, err = svc.SaveSettings(ctx, models.NotificationSettings{MemberID: beto.ID, DailyReminder: true})
	require.NoError(t, err)
	_, err = svc.SaveSettings(ctx, models.NotificationSettings{MemberID: caro.ID})
	require.NoError(t, err)

	sent, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	got := notifier.all()
	require.Len(t, got, 1)
	assert.Equal(t, []string{ana.ID}, got[0].MemberIDs)

	sent, err = svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	var st models.NotificationState
	require.NoError(t, db.Take(&st, "member_id = ?", ana.ID).Error)
	assert.Equal(t, 1, st.SentCount)
	assert.Equal(t, TagDaily, st.NotifiedTags)
}

func TestReminderSettingsDefaultsAndValidation(t *testing.T) {
	clock := clockwork.NewFakeClockAt(baseTime)
	db := newTestDB(t, clock)
	svc := NewReminderService(db, NewReminderEngine(clock, time.UTC, GormStateStore{DB: db}), NewDashboardService(db, clock, time.UTC), nil)
	ctx := context.Background()

	s, err := svc.Settings(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "20:00", s.DailyTime)
	assert.False(t, s.DailyReminder)

	_, err = svc.SaveSettings(ctx, models.NotificationSettings{MemberID: "m1", DailyTime: "25:99"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SaveSettings(ctx, models.NotificationSettings{MemberID: "m1", DailyReminder: true, DailyTime: "07:15"})
	require.NoError(t, err)
	_, err = svc.SaveSettings(ctx, models.NotificationSettings{MemberID: "m1", DailyReminder: false, DailyTime: "07:15"})
	require.NoError(t, err)

	s, err = svc.Settings(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, s.DailyReminder)
	assert.Equal(t, "07:15", s.DailyTime)
}
