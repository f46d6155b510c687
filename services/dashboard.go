package services

import (
	"context"
	"time"

	"habit-league/models"
	"habit-league/scoring"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

const recentActivityLimit = 20

// DashboardView is everything the home screen shows for one member.
type DashboardView struct {
	ActiveRound      *models.Round                `json:"active_round"`
	DaysRemaining    int                          `json:"days_remaining"`
	Ranking          []scoring.RankingEntry       `json:"ranking"`
	Habits           []models.Habit               `json:"habits"`
	TodayCompletions map[string]models.Completion `json:"today_completions"`
	PendingDefenses  int64                        `json:"pending_defenses"`
	RecentActivity   []models.Completion          `json:"recent_activity"`
	RoundClosed      *RoundClosed                 `json:"round_closed,omitempty"`
}

// DashboardService aggregates the live, unpersisted view of the running round.
type DashboardService struct {
	DB    *gorm.DB
	store *GormStore
	clock clockwork.Clock
	loc   *time.Location
}

func NewDashboardService(db *gorm.DB, clock clockwork.Clock, loc *time.Location) *DashboardService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &DashboardService{DB: db, store: NewGormStore(db), clock: clock, loc: loc}
}

// LiveRanking scores the group's active round as it stands now. The round is nil when
// the group has none, and the ranking is sorted by points only.
func (s *DashboardService) LiveRanking(ctx context.Context, groupID string) (*models.Round, []scoring.RankingEntry, error) {
	round, err := s.store.FindActiveRound(ctx, groupID)
	if err != nil || round == nil {
		return nil, []scoring.RankingEntry{}, err
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	completions, err := s.store.ListApprovedCompletions(ctx, ids, round.StartDate, round.EndDate)
	if err != nil {
		return nil, nil, err
	}
	window := scoring.Bounds{Start: round.StartDate, End: round.EndDate}
	return round, scoring.ScoreUsers(members, completions, window, scoring.LevelPoints), nil
}

// Dashboard builds the member's home screen.
func (s *DashboardService) Dashboard(ctx context.Context, member models.Member) (*DashboardView, error) {
	db := s.DB.WithContext(ctx)
	now := s.clock.Now()

	round, ranking, err := s.LiveRanking(ctx, member.GroupID)
	if err != nil {
		return nil, err
	}
	view := &DashboardView{ActiveRound: round, Ranking: ranking}
	if round != nil {
		view.DaysRemaining = scoring.DaysRemaining(round.EndDate, now.In(s.loc))
	}

	if err := db.Where("group_id = ?", member.GroupID).Order("level ASC").Order("created_at ASC").Find(&view.Habits).Error; err != nil {
		return nil, err
	}

	today, err := s.TodayCompletions(ctx, member.ID)
	if err != nil {
		return nil, err
	}
	view.TodayCompletions = today

	if err := db.Model(&models.Dispute{}).
		Joins("JOIN completions ON completions.id = disputes.completion_id").
		Where("completions.member_id = ? AND disputes.resolution IS NULL AND disputes.defense_text IS NULL", member.ID).
		Count(&view.PendingDefenses).Error; err != nil {
		return nil, err
	}

	if err := db.
		Preload("Habit").
		Preload("Member").
		Joins("JOIN members ON members.id = completions.member_id").
		Where("members.group_id = ? AND completions.status IN ?", member.GroupID, []string{models.StatusApproved, models.StatusDisputed}).
		Order("completions.created_at DESC").
		Limit(recentActivityLimit).
		Find(&view.RecentActivity).Error; err != nil {
		return nil, err
	}
	return view, nil
}

// TodayCompletions maps habit id to the member's completion for today. A non-rejected
// record wins over a rejected one for the same habit.
func (s *DashboardService) TodayCompletions(ctx context.Context, memberID string) (map[string]models.Completion, error) {
	today := scoring.Today(s.clock.Now(), s.loc)

	var rows []models.Completion
	if err := s.DB.WithContext(ctx).
		Where("member_id = ? AND date = ?", memberID, today).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return pickTodayStatus(rows), nil
}

func pickTodayStatus(rows []models.Completion) map[string]models.Completion {
	out := make(map[string]models.Completion, len(rows))
	for _, c := range rows {
		existing, ok := out[c.HabitID]
		if !ok || existing.Status == models.StatusRejected {
			out[c.HabitID] = c
		}
	}
	return out
}
