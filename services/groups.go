package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"habit-league/models"
	"habit-league/scoring"
	"habit-league/utils"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

const inviteCodeAttempts = 5

// HabitInput describes a habit when creating a group or editing its habits.
// An empty ID means a new habit.
type HabitInput struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type CreateGroupInput struct {
	Name             string        `json:"name"`
	Nickname         string        `json:"nickname"`
	Prize            string        `json:"prize"`
	AnnualPrize      string        `json:"annual_prize,omitempty"`
	Period           models.Period `json:"period"`
	CompletionPolicy string        `json:"completion_policy,omitempty"`
	Habits           []HabitInput  `json:"habits"`
	SessionToken     string        `json:"-"`
}

type GroupPatch struct {
	Name        *string `json:"name"`
	Prize       *string `json:"prize"`
	AnnualPrize *string `json:"annual_prize"`
}

// Membership is the result of creating or joining a group.
type Membership struct {
	Group        models.Group  `json:"group"`
	Member       models.Member `json:"member"`
	SessionToken string        `json:"session_token"`
}

// GroupInfo is the group detail screen.
type GroupInfo struct {
	Group   models.Group    `json:"group"`
	Habits  []models.Habit  `json:"habits"`
	Members []models.Member `json:"members"`
	Round   *models.Round   `json:"active_round,omitempty"`
}

// GroupService owns group, habit and membership lifecycle.
type GroupService struct {
	DB     *gorm.DB
	photos PhotoStorage
	clock  clockwork.Clock
	loc    *time.Location
}

func NewGroupService(db *gorm.DB, photos PhotoStorage, clock clockwork.Clock, loc *time.Location) *GroupService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &GroupService{DB: db, photos: photos, clock: clock, loc: loc}
}

// CreateGroup creates the group, its owner profile, its habits and the first round
// covering the current period, all in one transaction.
func (s *GroupService) CreateGroup(ctx context.Context, in CreateGroupInput) (*Membership, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Nickname = strings.TrimSpace(in.Nickname)
	in.Prize = strings.TrimSpace(in.Prize)
	if in.Name == "" || in.Nickname == "" || in.Prize == "" {
		return nil, fmt.Errorf("%w: name, nickname and prize are required", ErrValidation)
	}
	if in.Period == "" {
		in.Period = models.PeriodWeekly
	}
	if !in.Period.Valid() {
		return nil, fmt.Errorf("%w: period must be weekly or monthly", ErrValidation)
	}
	policy, err := PolicyFor(in.CompletionPolicy)
	if err != nil {
		return nil, err
	}
	if len(in.Habits) == 0 {
		return nil, fmt.Errorf("%w: at least one habit is required", ErrValidation)
	}
	for i := range in.Habits {
		if err := validateHabit(&in.Habits[i]); err != nil {
			return nil, err
		}
	}

	bounds, err := scoring.CurrentPeriodBounds(in.Period, scoring.Today(s.clock.Now(), s.loc))
	if err != nil {
		return nil, err
	}

	token := in.SessionToken
	if token == "" {
		token = uuid.NewString()
	}

	group := models.Group{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Period:           in.Period,
		CompletionPolicy: policy.Name(),
		Prize:            in.Prize,
	}
	if annual := strings.TrimSpace(in.AnnualPrize); annual != "" {
		group.AnnualPrize = &annual
	}
	member := models.Member{
		ID:           uuid.NewString(),
		GroupID:      group.ID,
		Nickname:     in.Nickname,
		SessionToken: token,
	}
	group.CreatedBy = &member.ID

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := uniqueInviteCode(tx)
		if err != nil {
			return err
		}
		group.InviteCode = code

		if err := tx.Omit("Habits").Create(&group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		if err := tx.Omit("Group").Create(&member).Error; err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		habits := make([]models.Habit, len(in.Habits))
		for i, h := range in.Habits {
			habits[i] = models.Habit{ID: uuid.NewString(), GroupID: group.ID, Name: h.Name, Level: h.Level}
		}
		if err := tx.Create(&habits).Error; err != nil {
			return fmt.Errorf("create habits: %w", err)
		}
		group.Habits = habits

		round := models.Round{
			ID:        uuid.NewString(),
			GroupID:   group.ID,
			StartDate: bounds.Start,
			EndDate:   bounds.End,
			IsActive:  true,
		}
		if err := tx.Create(&round).Error; err != nil {
			return fmt.Errorf("create first round: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Printf("❌ [GROUPS] create group %q failed: %v", in.Name, err)
		return nil, err
	}

	log.Printf("✅ [GROUPS] created group %s (%s, code %s) round %s..%s", group.ID, group.Period, group.InviteCode, bounds.Start, bounds.End)
	return &Membership{Group: group, Member: member, SessionToken: token}, nil
}

// JoinGroup adds a profile for the session to the group behind inviteCode. A session
// that already belongs to the group gets its existing profile back.
func (s *GroupService) JoinGroup(ctx context.Context, inviteCode, nickname, sessionToken string) (*Membership, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	code := utils.NormalizeInviteCode(inviteCode)
	if len(code) != utils.InviteCodeLength {
		return nil, fmt.Errorf("%w: invite code must have %d characters", ErrValidation, utils.InviteCodeLength)
	}

	db := s.DB.WithContext(ctx)
	var group models.Group
	if err := db.Take(&group, "invite_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no group with code %s", ErrNotFound, code)
		}
		return nil, err
	}

	if sessionToken != "" {
		var existing models.Member
		err := db.Take(&existing, "group_id = ? AND session_token = ?", group.ID, sessionToken).Error
		if err == nil {
			return &Membership{Group: group, Member: existing, SessionToken: sessionToken}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	} else {
		sessionToken = uuid.NewString()
	}

	member := models.Member{
		ID:           uuid.NewString(),
		GroupID:      group.ID,
		Nickname:     nickname,
		SessionToken: sessionToken,
	}
	if err := db.Omit("Group").Create(&member).Error; err != nil {
		return nil, err
	}
	log.Printf("👋 [GROUPS] %s joined group %s as %q", member.ID, group.ID, nickname)
	return &Membership{Group: group, Member: member, SessionToken: sessionToken}, nil
}

// ResolveMember finds the session's profile in groupID. Without a group id the most
// recently joined profile is used.
func (s *GroupService) ResolveMember(ctx context.Context, sessionToken, groupID string) (*models.Member, error) {
	if sessionToken == "" {
		return nil, fmt.Errorf("%w: session token missing", ErrForbidden)
	}
	q := s.DB.WithContext(ctx).Where("session_token = ?", sessionToken)
	if groupID != "" {
		q = q.Where("group_id = ?", groupID)
	}
	var member models.Member
	if err := q.Order("created_at DESC").Take(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown session", ErrForbidden)
		}
		return nil, err
	}
	return &member, nil
}

// ListSessionGroups returns every profile held by a session, with its group.
func (s *GroupService) ListSessionGroups(ctx context.Context, sessionToken string) ([]models.Member, error) {
	var profiles []models.Member
	err := s.DB.WithContext(ctx).
		Preload("Group").
		Where("session_token = ?", sessionToken).
		Order("created_at ASC").
		Find(&profiles).Error
	return profiles, err
}

func (s *GroupService) GroupInfo(ctx context.Context, groupID string) (*GroupInfo, error) {
	db := s.DB.WithContext(ctx)
	info := &GroupInfo{}
	if err := db.Take(&info.Group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		return nil, err
	}
	if err := db.Where("group_id = ?", groupID).Order("level ASC").Find(&info.Habits).Error; err != nil {
		return nil, err
	}
	if err := db.Where("group_id = ?", groupID).Order("created_at ASC").Find(&info.Members).Error; err != nil {
		return nil, err
	}
	round, err := NewGormStore(s.DB).FindActiveRound(ctx, groupID)
	if err != nil {
		return nil, err
	}
	info.Round = round
	return info, nil
}

// UpdateGroup edits the name and prizes. Owner only.
func (s *GroupService) UpdateGroup(ctx context.Context, owner models.Member, patch GroupPatch) (*models.Group, error) {
	group, err := s.ownedGroup(ctx, owner)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		updates["name"] = name
		group.Name = name
	}
	if patch.Prize != nil {
		prize := strings.TrimSpace(*patch.Prize)
		if prize == "" {
			return nil, fmt.Errorf("%w: prize cannot be empty", ErrValidation)
		}
		updates["prize"] = prize
		group.Prize = prize
	}
	if patch.AnnualPrize != nil {
		annual := strings.TrimSpace(*patch.AnnualPrize)
		if annual == "" {
			updates["annual_prize"] = nil
			group.AnnualPrize = nil
		} else {
			updates["annual_prize"] = annual
			group.AnnualPrize = &annual
		}
	}
	if len(updates) == 0 {
		return group, nil
	}
	if err := s.DB.WithContext(ctx).Model(&models.Group{}).Where("id = ?", group.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	return group, nil
}

// ReplaceHabits makes the group's habits match the given list: entries with an id are
// edited, entries without one are added, and habits missing from the list are removed.
func (s *GroupService) ReplaceHabits(ctx context.Context, owner models.Member, habits []HabitInput) ([]models.Habit, error) {
	group, err := s.ownedGroup(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(habits) == 0 {
		return nil, fmt.Errorf("%w: at least one habit is required", ErrValidation)
	}
	for i := range habits {
		if err := validateHabit(&habits[i]); err != nil {
			return nil, err
		}
	}

	var result []models.Habit
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current []models.Habit
		if err := tx.Where("group_id = ?", group.ID).Find(&current).Error; err != nil {
			return err
		}
		known := make(map[string]bool, len(current))
		for _, h := range current {
			known[h.ID] = true
		}

		keep := make(map[string]bool, len(habits))
		for _, h := range habits {
			if h.ID == "" {
				continue
			}
			if !known[h.ID] {
				return fmt.Errorf("%w: habit %s is not in this group", ErrNotFound, h.ID)
			}
			keep[h.ID] = true
			if err := tx.Model(&models.Habit{}).Where("id = ?", h.ID).
				Updates(map[string]interface{}{"name": h.Name, "level": h.Level}).Error; err != nil {
				return err
			}
		}

		var removed []string
		for _, h := range current {
			if !keep[h.ID] {
				removed = append(removed, h.ID)
			}
		}
		if len(removed) > 0 {
			if err := tx.Where("id IN ?", removed).Delete(&models.Habit{}).Error; err != nil {
				return err
			}
		}

		for _, h := range habits {
			if h.ID != "" {
				continue
			}
			habit := models.Habit{ID: uuid.NewString(), GroupID: group.ID, Name: h.Name, Level: h.Level}
			if err := tx.Create(&habit).Error; err != nil {
				return err
			}
		}

		return tx.Where("group_id = ?", group.ID).Order("level ASC").Find(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LeaveGroup removes the member's profile. The owner hands the group to the next-oldest
// member; the last member out deletes the group.
func (s *GroupService) LeaveGroup(ctx context.Context, member models.Member) error {
	var photoKeys []string
	groupDeleted := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.Take(&group, "id = ?", member.GroupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: group %s", ErrNotFound, member.GroupID)
			}
			return err
		}

		var next models.Member
		err := tx.Where("group_id = ? AND id <> ?", group.ID, member.ID).Order("created_at ASC").Take(&next).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			keys, err := deleteGroupCascade(tx, group.ID)
			if err != nil {
				return err
			}
			photoKeys = keys
			groupDeleted = true
			return nil
		}
		if err != nil {
			return err
		}

		if group.CreatedBy != nil && *group.CreatedBy == member.ID {
			if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).Update("created_by", next.ID).Error; err != nil {
				return err
			}
			log.Printf("👑 [GROUPS] ownership of %s moved from %s to %s", group.ID, member.ID, next.ID)
		}

		keys, err := deleteMemberCascade(tx, member.ID)
		if err != nil {
			return err
		}
		photoKeys = keys
		return nil
	})
	if err != nil {
		return err
	}

	if groupDeleted {
		log.Printf("🗑️ [GROUPS] last member %s left, group %s deleted", member.ID, member.GroupID)
	} else {
		log.Printf("👋 [GROUPS] %s left group %s", member.ID, member.GroupID)
	}
	s.deletePhotos(ctx, photoKeys)
	return nil
}

// DeleteGroup removes the group and everything it owns. Owner only.
func (s *GroupService) DeleteGroup(ctx context.Context, owner models.Member) error {
	group, err := s.ownedGroup(ctx, owner)
	if err != nil {
		return err
	}
	var photoKeys []string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keys, err := deleteGroupCascade(tx, group.ID)
		photoKeys = keys
		return err
	})
	if err != nil {
		return err
	}
	log.Printf("🗑️ [GROUPS] group %s deleted by owner %s", group.ID, owner.ID)
	s.deletePhotos(ctx, photoKeys)
	return nil
}

func (s *GroupService) ownedGroup(ctx context.Context, owner models.Member) (*models.Group, error) {
	var group models.Group
	if err := s.DB.WithContext(ctx).Take(&group, "id = ?", owner.GroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrNotFound, owner.GroupID)
		}
		return nil, err
	}
	if group.CreatedBy == nil || *group.CreatedBy != owner.ID {
		return nil, fmt.Errorf("%w: only the group owner can do this", ErrForbidden)
	}
	return &group, nil
}

func (s *GroupService) deletePhotos(ctx context.Context, keys []string) {
	if len(keys) == 0 || s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, keys); err != nil {
		log.Printf("⚠️ [GROUPS] failed to delete %d photo(s): %v", len(keys), err)
	}
}

// deleteMemberCascade removes a profile with its completions, the disputes on them and
// its reminder rows. It returns the photo keys that were orphaned.
func deleteMemberCascade(tx *gorm.DB, memberID string) ([]string, error) {
	var completions []models.Completion
	if err := tx.Select("id", "photo_key").Where("member_id = ?", memberID).Find(&completions).Error; err != nil {
		return nil, err
	}
	ids, keys := completionKeys(completions)
	if len(ids) > 0 {
		if err := tx.Where("completion_id IN ?", ids).Delete(&models.Dispute{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("id IN ?", ids).Delete(&models.Completion{}).Error; err != nil {
			return nil, err
		}
	}
	// Open objections filed by the leaver can no longer be resolved; the proofs go back
	// to approved.
	var open []string
	if err := tx.Model(&models.Dispute{}).
		Where("disputed_by = ? AND resolution IS NULL", memberID).
		Pluck("completion_id", &open).Error; err != nil {
		return nil, err
	}
	if len(open) > 0 {
		if err := tx.Model(&models.Completion{}).
			Where("id IN ? AND status = ?", open, models.StatusDisputed).
			Update("status", models.StatusApproved).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Where("disputed_by = ?", memberID).Delete(&models.Dispute{}).Error; err != nil {
		return nil, err
	}

	if err := tx.Where("member_id = ?", memberID).Delete(&models.NotificationSettings{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("member_id = ?", memberID).Delete(&models.NotificationState{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Where("id = ?", memberID).Delete(&models.Member{}).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func deleteGroupCascade(tx *gorm.DB, groupID string) ([]string, error) {
	var memberIDs []string
	if err := tx.Model(&models.Member{}).Where("group_id = ?", groupID).Pluck("id", &memberIDs).Error; err != nil {
		return nil, err
	}
	var keys []string
	for _, id := range memberIDs {
		k, err := deleteMemberCascade(tx, id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k...)
	}
	for _, model := range []interface{}{&models.Round{}, &models.Habit{}} {
		if err := tx.Where("group_id = ?", groupID).Delete(model).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Where("id = ?", groupID).Delete(&models.Group{}).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

func completionKeys(completions []models.Completion) (ids, keys []string) {
	for _, c := range completions {
		ids = append(ids, c.ID)
		if c.PhotoKey != "" {
			keys = append(keys, c.PhotoKey)
		}
	}
	return ids, keys
}

func uniqueInviteCode(tx *gorm.DB) (string, error) {
	for i := 0; i < inviteCodeAttempts; i++ {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&models.Group{}).Where("invite_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique invite code", ErrConflict)
}

func validateHabit(h *HabitInput) error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return fmt.Errorf("%w: habit name is required", ErrValidation)
	}
	if _, ok := scoring.LevelPoints[h.Level]; !ok {
		return fmt.Errorf("%w: habit level must be 1, 2 or 3", ErrValidation)
	}
	return nil
}
