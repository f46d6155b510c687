package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"habit-league/models"
	"habit-league/scoring"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxNoticesPerDay  = 2
	defaultDailyTime  = "20:00"
	lastChanceMinutes = 23 * 60
	streakMinDays     = 3
	streakKeepDays    = 5

	TagDaily      = "daily"
	TagLastChance = "lastchance"
	TagLeader     = "leader"
	TagStreak     = "streak"
)

// Notice is one reminder to deliver to a member.
type Notice struct {
	MemberID string `json:"member_id"`
	Tag      string `json:"tag"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

// StateStore persists per-member reminder bookkeeping.
type StateStore interface {
	LoadState(ctx context.Context, memberID string) (*models.NotificationState, error)
	SaveState(ctx context.Context, state *models.NotificationState) error
}

// GormStateStore keeps reminder state in the notification_states table.
type GormStateStore struct {
	DB *gorm.DB
}

func (s GormStateStore) LoadState(ctx context.Context, memberID string) (*models.NotificationState, error) {
	var st models.NotificationState
	err := s.DB.WithContext(ctx).Take(&st, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.NotificationState{MemberID: memberID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s GormStateStore) SaveState(ctx context.Context, state *models.NotificationState) error {
	return s.DB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error
}

// ReminderEngine decides which reminders a member is due, at most two per day.
type ReminderEngine struct {
	clock  clockwork.Clock
	loc    *time.Location
	states StateStore
}

func NewReminderEngine(clock clockwork.Clock, loc *time.Location, states StateStore) *ReminderEngine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &ReminderEngine{clock: clock, loc: loc, states: states}
}

// Evaluate applies the reminder rules in order: daily reminder, last chance, leader
// change, leader streak. The first two stop evaluation when they fire. Leader tracking
// is updated even when no notice goes out.
func (e *ReminderEngine) Evaluate(ctx context.Context, settings models.NotificationSettings, ranking []scoring.RankingEntry, completedToday bool) ([]Notice, error) {
	now := e.clock.Now().In(e.loc)
	today := scoring.FormatDate(now)
	minutes := now.Hour()*60 + now.Minute()

	st, err := e.states.LoadState(ctx, settings.MemberID)
	if err != nil {
		return nil, err
	}
	if st.LogDate != today {
		st.LogDate = today
		st.SentCount = 0
		st.NotifiedTags = ""
	}
	if st.SentCount >= maxNoticesPerDay {
		return nil, nil
	}

	var notices []Notice
	send := func(tag, title, body string) {
		if st.SentCount >= maxNoticesPerDay || hasTag(st.NotifiedTags, tag) {
			return
		}
		notices = append(notices, Notice{MemberID: settings.MemberID, Tag: tag, Title: title, Body: body})
		st.SentCount++
		st.NotifiedTags = addTag(st.NotifiedTags, tag)
	}

	if settings.DailyReminder && !completedToday && minutes >= dailyMinutes(settings.DailyTime) && !hasTag(st.NotifiedTags, TagDaily) {
		send(TagDaily, notificationTitle, "You have not completed any habit today. Don't lose points!")
		return notices, e.states.SaveState(ctx, st)
	}

	if settings.LastChance && !completedToday && minutes >= lastChanceMinutes && !hasTag(st.NotifiedTags, TagLastChance) {
		send(TagLastChance, "Last chance!", "Less than an hour left to complete today's habits.")
		return notices, e.states.SaveState(ctx, st)
	}

	if len(ranking) > 0 && ranking[0].Points > 0 {
		leader := ranking[0].Member

		if settings.LeaderChange {
			if st.LastLeaderID != "" && st.LastLeaderID != leader.ID {
				send(TagLeader, "New leader!", fmt.Sprintf("%s took the lead of the ranking.", leader.Nickname))
			}
			st.LastLeaderID = leader.ID
		}

		if settings.LeaderStreak {
			if st.StreakLeaderID == leader.ID {
				if st.StreakLastDate != today {
					days := appendStreakDay(splitTags(st.StreakDays), today)
					st.StreakDays = strings.Join(days, ",")
					st.StreakLastDate = today
					if len(days) >= streakMinDays {
						send(TagStreak, "Leadership streak", fmt.Sprintf("%s has been leading for %d days!", leader.Nickname, len(days)))
					}
				}
			} else {
				st.StreakLeaderID = leader.ID
				st.StreakDays = today
				st.StreakLastDate = today
			}
		}
	}

	return notices, e.states.SaveState(ctx, st)
}

// dailyMinutes parses HH:MM, falling back to 20:00.
func dailyMinutes(hhmm string) int {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		t, _ = time.Parse("15:04", defaultDailyTime)
	}
	return t.Hour()*60 + t.Minute()
}

// appendStreakDay adds day, keeps unique dates sorted and retains the last five.
func appendStreakDay(days []string, day string) []string {
	seen := make(map[string]bool, len(days)+1)
	var unique []string
	for _, d := range append(days, day) {
		if !seen[d] {
			seen[d] = true
			unique = append(unique, d)
		}
	}
	sort.Strings(unique)
	if len(unique) > streakKeepDays {
		unique = unique[len(unique)-streakKeepDays:]
	}
	return unique
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func hasTag(csv, tag string) bool {
	for _, t := range splitTags(csv) {
		if t == tag {
			return true
		}
	}
	return false
}

func addTag(csv, tag string) string {
	if csv == "" {
		return tag
	}
	return csv + "," + tag
}

// ReminderService runs the reminder engine over every member who opted in.
type ReminderService struct {
	DB        *gorm.DB
	engine    *ReminderEngine
	dashboard *DashboardService
	notifier  Notifier
}

func NewReminderService(db *gorm.DB, engine *ReminderEngine, dashboard *DashboardService, notifier Notifier) *ReminderService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ReminderService{DB: db, engine: engine, dashboard: dashboard, notifier: notifier}
}

// Settings returns the member's reminder settings, or the defaults when none were saved.
func (s *ReminderService) Settings(ctx context.Context, memberID string) (*models.NotificationSettings, error) {
	var settings models.NotificationSettings
	err := s.DB.WithContext(ctx).Take(&settings, "member_id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.NotificationSettings{MemberID: memberID, DailyTime: defaultDailyTime}, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *ReminderService) SaveSettings(ctx context.Context, settings models.NotificationSettings) (*models.NotificationSettings, error) {
	if settings.DailyTime == "" {
		settings.DailyTime = defaultDailyTime
	}
	if _, err := time.Parse("15:04", settings.DailyTime); err != nil {
		return nil, fmt.Errorf("%w: daily_time must be HH:MM", ErrValidation)
	}
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Select("*").
		Create(&settings).Error
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// RunOnce evaluates every opted-in member and dispatches their notices.
// It returns how many notices were sent.
func (s *ReminderService) RunOnce(ctx context.Context) (int, error) {
	var all []models.NotificationSettings
	if err := s.DB.WithContext(ctx).
		Where("daily_reminder OR last_chance OR leader_change OR leader_streak").
		Find(&all).Error; err != nil {
		return 0, err
	}

	rankings := make(map[string][]scoring.RankingEntry)
	sent := 0
	var errs []error
	for _, settings := range all {
		var member models.Member
		if err := s.DB.WithContext(ctx).Take(&member, "id = ?", settings.MemberID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				errs = append(errs, err)
			}
			continue
		}

		ranking, ok := rankings[member.GroupID]
		if !ok {
			_, r, err := s.dashboard.LiveRanking(ctx, member.GroupID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			ranking = r
			rankings[member.GroupID] = r
		}

		today, err := s.dashboard.TodayCompletions(ctx, member.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		notices, err := s.engine.Evaluate(ctx, settings, ranking, completedAny(today))
		if err != nil {
			errs = append(errs, fmt.Errorf("member %s: %w", member.ID, err))
			continue
		}
		for _, n := range notices {
			s.notifier.Notify(ctx, []string{n.MemberID}, n.Title, n.Body)
			sent++
		}
	}
	if sent > 0 {
		log.Printf("🔔 [REMINDERS] sent %d reminder(s) to %d opted-in member(s)", sent, len(all))
	}
	return sent, errors.Join(errs...)
}

func completedAny(today map[string]models.Completion) bool {
	for _, c := range today {
		if c.Status != models.StatusRejected {
			return true
		}
	}
	return false
}
