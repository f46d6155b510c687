package services

import (
	"context"
	"fmt"

	"habit-league/scoring"

	"gorm.io/gorm"
)

// AnnualEntry is one member's line in the year table.
type AnnualEntry struct {
	MemberID  string `json:"user_id"`
	Nickname  string `json:"nickname"`
	Points    int    `json:"points"`
	RoundsWon int    `json:"rounds_won"`
}

// AnnualTable is the year-long standings of a group.
type AnnualTable struct {
	Year        int           `json:"year"`
	AnnualPrize *string       `json:"annual_prize,omitempty"`
	Entries     []AnnualEntry `json:"entries"`
}

type AnnualService struct {
	DB    *gorm.DB
	store *GormStore
}

func NewAnnualService(db *gorm.DB) *AnnualService {
	return &AnnualService{DB: db, store: NewGormStore(db)}
}

// Table sums approved points over the calendar year and counts rounds won among
// rounds that started in it. Entries are sorted by points; round wins do not break ties.
func (s *AnnualService) Table(ctx context.Context, groupID string, year int) (*AnnualTable, error) {
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("%w: year %d out of range", ErrValidation, year)
	}
	group, err := s.store.FindGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}

	window := scoring.Bounds{Start: fmt.Sprintf("%04d-01-01", year), End: fmt.Sprintf("%04d-12-31", year)}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	completions, err := s.store.ListApprovedCompletions(ctx, ids, window.Start, window.End)
	if err != nil {
		return nil, err
	}

	var winners []*string
	if err := s.DB.WithContext(ctx).
		Table("rounds").
		Where("group_id = ? AND start_date >= ? AND start_date <= ? AND winner_id IS NOT NULL", groupID, window.Start, window.End).
		Pluck("winner_id", &winners).Error; err != nil {
		return nil, err
	}
	wins := make(map[string]int, len(winners))
	for _, w := range winners {
		if w != nil {
			wins[*w]++
		}
	}

	ranking := scoring.ScoreUsers(members, completions, window, scoring.LevelPoints)
	entries := make([]AnnualEntry, len(ranking))
	for i, r := range ranking {
		entries[i] = AnnualEntry{
			MemberID:  r.Member.ID,
			Nickname:  r.Member.Nickname,
			Points:    r.Points,
			RoundsWon: wins[r.Member.ID],
		}
	}
	return &AnnualTable{Year: year, AnnualPrize: group.AnnualPrize, Entries: entries}, nil
}
