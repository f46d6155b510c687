package services

import (
	"context"
	"errors"
	"time"

	"habit-league/models"

	"gorm.io/gorm"
)

// Store is the persistence surface the round and dispute state machines run against.
// Lookups return (nil, nil) when the row does not exist. Conditional writes report
// whether they changed a row so callers can detect a lost race.
type Store interface {
	FindGroup(ctx context.Context, groupID string) (*models.Group, error)
	FindActiveRound(ctx context.Context, groupID string) (*models.Round, error)
	ListExpiredActiveRounds(ctx context.Context, today string) ([]models.Round, error)
	ListMembers(ctx context.Context, groupID string) ([]models.Member, error)
	FindMember(ctx context.Context, memberID string) (*models.Member, error)
	ListApprovedCompletions(ctx context.Context, memberIDs []string, start, end string) ([]models.Completion, error)

	// CloseRound clears the active flag and records the winner only if the round is
	// still active.
	CloseRound(ctx context.Context, roundID string, winnerID *string) (bool, error)
	CreateRound(ctx context.Context, round *models.Round) error

	FindCompletion(ctx context.Context, completionID string) (*models.Completion, error)
	// SetCompletionStatus moves a completion from one status to another, guarded on from.
	SetCompletionStatus(ctx context.Context, completionID, from, to string) (bool, error)

	FindDispute(ctx context.Context, disputeID string) (*models.Dispute, error)
	HasOpenDispute(ctx context.Context, completionID string) (bool, error)
	CreateDispute(ctx context.Context, dispute *models.Dispute) error
	// SetDisputeDefense records the defense only while none exists and the dispute is open.
	SetDisputeDefense(ctx context.Context, disputeID, text string) (bool, error)
	// ResolveDispute records the resolution only while the dispute is defended and open.
	ResolveDispute(ctx context.Context, disputeID, resolution string, resolvedAt time.Time) (bool, error)

	// Transaction runs fn against a store bound to one database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on gorm.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) FindGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var group models.Group
	if err := s.DB.WithContext(ctx).Take(&group, "id = ?", groupID).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &group, nil
}

func (s *GormStore) FindActiveRound(ctx context.Context, groupID string) (*models.Round, error) {
	var round models.Round
	err := s.DB.WithContext(ctx).
		Where("group_id = ? AND is_active = ?", groupID, true).
		Order("start_date DESC").
		Take(&round).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &round, nil
}

func (s *GormStore) ListExpiredActiveRounds(ctx context.Context, today string) ([]models.Round, error) {
	var rounds []models.Round
	err := s.DB.WithContext(ctx).
		Where("is_active = ? AND end_date < ?", true, today).
		Order("end_date ASC").
		Find(&rounds).Error
	return rounds, err
}

func (s *GormStore) ListMembers(ctx context.Context, groupID string) ([]models.Member, error) {
	var members []models.Member
	err := s.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

func (s *GormStore) FindMember(ctx context.Context, memberID string) (*models.Member, error) {
	var member models.Member
	if err := s.DB.WithContext(ctx).Take(&member, "id = ?", memberID).Error; err != nil {
		return nil, notFoundAsNil(err)
	}
	return &member, nil
}

func (s *GormStore) ListApprovedCompletions(ctx context.Context, memberIDs []string, start, end string) ([]models.Completion, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	var completions []models.Completion
	err := s.DB.WithContext(ctx).
		Preload("Habit").
		Where("status = ? AND date >= ? AND date <= ? AND member_id IN ?", models.StatusApproved, start, end, memberIDs).
		Find(&completions).Error
	return completions, err
}

func (s *GormStore) CloseRound(ctx context.Context, roundID string, winnerID *string) (bool, error) {
	var winner interface{}
	if winnerID != nil {
		winner = *winnerID
	}
	res := s.DB.WithContext(ctx).
		Model(&models.Round{}).
		Where("id = ? AND is_active = ?", roundID, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"winner_id": winner,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) CreateRound(ctx context.Context, round *models.Round) error {
	return s.DB.WithContext(ctx).Create(round).Error
}

func (s *GormStore) FindCompletion(ctx context.Context, completionID string) (*models.Completion, error) {
	var completion models.Completion
	err := s.DB.WithContext(ctx).
		Preload("Habit").
		Preload("Member").
		Take(&completion, "id = ?", completionID).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &completion, nil
}

func (s *GormStore) SetCompletionStatus(ctx context.Context, completionID, from, to string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Completion{}).
		Where("id = ? AND status = ?", completionID, from).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) FindDispute(ctx context.Context, disputeID string) (*models.Dispute, error) {
	var dispute models.Dispute
	err := s.DB.WithContext(ctx).
		Preload("Completion").
		Preload("Completion.Habit").
		Preload("Completion.Member").
		Preload("Objector").
		Take(&dispute, "id = ?", disputeID).Error
	if err != nil {
		return nil, notFoundAsNil(err)
	}
	return &dispute, nil
}

func (s *GormStore) HasOpenDispute(ctx context.Context, completionID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("completion_id = ? AND resolution IS NULL", completionID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) CreateDispute(ctx context.Context, dispute *models.Dispute) error {
	return s.DB.WithContext(ctx).Omit("Completion", "Objector").Create(dispute).Error
}

func (s *GormStore) SetDisputeDefense(ctx context.Context, disputeID, text string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND defense_text IS NULL AND resolution IS NULL", disputeID).
		Update("defense_text", text)
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) ResolveDispute(ctx context.Context, disputeID, resolution string, resolvedAt time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.Dispute{}).
		Where("id = ? AND defense_text IS NOT NULL AND resolution IS NULL", disputeID).
		Updates(map[string]interface{}{
			"resolution":  resolution,
			"resolved_at": resolvedAt,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{DB: tx})
	})
}

func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
