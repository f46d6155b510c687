package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"habit-league/models"
	"habit-league/scoring"
	"habit-league/telemetry"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

const activityLimit = 50

// PhotoStorage keeps completion photos in object storage.
type PhotoStorage interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
	Delete(ctx context.Context, keys []string) error
}

// Photo is an uploaded proof image.
type Photo struct {
	Data        []byte
	ContentType string
	Filename    string
}

// ActivityItem is a completion on the group feed with its latest dispute, if any.
type ActivityItem struct {
	Completion models.Completion `json:"completion"`
	Dispute    *models.Dispute   `json:"dispute,omitempty"`
	State      DisputeState      `json:"dispute_state"`
}

// CompletionService records photo proofs and, for peer approval groups, their validation.
type CompletionService struct {
	DB       *gorm.DB
	photos   PhotoStorage
	notifier Notifier
	clock    clockwork.Clock
	loc      *time.Location
	metrics  *telemetry.Metrics
}

func NewCompletionService(db *gorm.DB, photos PhotoStorage, notifier Notifier, clock clockwork.Clock, loc *time.Location, metrics *telemetry.Metrics) *CompletionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &CompletionService{DB: db, photos: photos, notifier: notifier, clock: clock, loc: loc, metrics: metrics}
}

// Submit stores today's proof for one habit. A member cannot hold two live proofs for the
// same habit and day; a rejected one can be retried.
func (s *CompletionService) Submit(ctx context.Context, member models.Member, habitID string, photo Photo) (*models.Completion, error) {
	if len(photo.Data) == 0 {
		return nil, fmt.Errorf("%w: photo is required", ErrValidation)
	}

	db := s.DB.WithContext(ctx)

	var habit models.Habit
	if err := db.Take(&habit, "id = ? AND group_id = ?", habitID, member.GroupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: habit %s", ErrNotFound, habitID)
		}
		return nil, err
	}
	var group models.Group
	if err := db.Take(&group, "id = ?", member.GroupID).Error; err != nil {
		return nil, err
	}
	policy, err := PolicyFor(group.CompletionPolicy)
	if err != nil {
		return nil, err
	}

	today := scoring.Today(s.clock.Now(), s.loc)

	var live int64
	if err := db.Model(&models.Completion{}).
		Where("member_id = ? AND habit_id = ? AND date = ? AND status <> ?", member.ID, habit.ID, today, models.StatusRejected).
		Count(&live).Error; err != nil {
		return nil, err
	}
	if live > 0 {
		return nil, fmt.Errorf("%w: habit already completed today", ErrConflict)
	}

	ext := strings.ToLower(filepath.Ext(photo.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	contentType := photo.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := fmt.Sprintf("groups/%s-%s/%s/%s%s", slug.Make(group.Name), group.ID, today, uuid.NewString(), ext)
	url, err := s.photos.Upload(ctx, key, contentType, photo.Data)
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}

	completion := &models.Completion{
		ID:       uuid.NewString(),
		HabitID:  habit.ID,
		MemberID: member.ID,
		Date:     today,
		PhotoURL: url,
		PhotoKey: key,
		Status:   policy.InitialStatus(),
	}
	if err := db.Omit("Habit", "Member").Create(completion).Error; err != nil {
		if delErr := s.photos.Delete(ctx, []string{key}); delErr != nil {
			log.Printf("⚠️ [COMPLETIONS] orphaned photo %s: %v", key, delErr)
		}
		return nil, err
	}
	completion.Habit = &habit

	s.metrics.CompletionSubmitted(completion.Status)
	log.Printf("📸 [COMPLETIONS] %s completed %q on %s (%s)", member.ID, habit.Name, today, completion.Status)

	var memberIDs []string
	if err := db.Model(&models.Member{}).Where("group_id = ?", member.GroupID).Pluck("id", &memberIDs).Error; err != nil {
		log.Printf("⚠️ [COMPLETIONS] could not load groupmates for notification: %v", err)
	} else {
		body := fmt.Sprintf("%s uploaded today's proof 📸", member.Nickname)
		if policy.RequiresValidation() {
			body = fmt.Sprintf("%s uploaded a proof, validate it 📸", member.Nickname)
		}
		s.notifier.Notify(ctx, othersThan(memberIDs, member.ID), notificationTitle, body)
	}
	return completion, nil
}

// Validate approves or rejects a pending completion in a peer approval group.
func (s *CompletionService) Validate(ctx context.Context, validator models.Member, completionID string, approve bool) (*models.Completion, error) {
	db := s.DB.WithContext(ctx)

	var completion models.Completion
	if err := db.Preload("Member").Preload("Habit").Take(&completion, "id = ?", completionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: completion %s", ErrNotFound, completionID)
		}
		return nil, err
	}
	if completion.Member == nil || completion.Member.GroupID != validator.GroupID {
		return nil, fmt.Errorf("%w: completion is not in your group", ErrForbidden)
	}
	if completion.MemberID == validator.ID {
		return nil, fmt.Errorf("%w: members cannot validate their own completion", ErrForbidden)
	}

	var group models.Group
	if err := db.Take(&group, "id = ?", validator.GroupID).Error; err != nil {
		return nil, err
	}
	policy, err := PolicyFor(group.CompletionPolicy)
	if err != nil {
		return nil, err
	}
	if !policy.RequiresValidation() {
		return nil, fmt.Errorf("%w: group %s does not validate completions", ErrInvalidTransition, group.ID)
	}
	if completion.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: completion is %s", ErrInvalidTransition, completion.Status)
	}

	status := models.StatusRejected
	if approve {
		status = models.StatusApproved
	}
	res := db.Model(&models.Completion{}).
		Where("id = ? AND status = ?", completion.ID, models.StatusPending).
		Updates(map[string]interface{}{"status": status, "validated_by": validator.ID})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: completion was validated concurrently", ErrConflict)
	}
	completion.Status = status
	completion.ValidatedBy = &validator.ID

	log.Printf("🧾 [COMPLETIONS] %s marked completion %s as %s", validator.ID, completion.ID, status)
	msg := fmt.Sprintf("%s approved your %s proof ✅", validator.Nickname, habitName(&completion))
	if !approve {
		msg = fmt.Sprintf("%s rejected your %s proof ❌", validator.Nickname, habitName(&completion))
	}
	s.notifier.Notify(ctx, []string{completion.MemberID}, notificationTitle, msg)
	return &completion, nil
}

// ListPending returns the group's pending completions the member could validate.
func (s *CompletionService) ListPending(ctx context.Context, member models.Member) ([]models.Completion, error) {
	var pending []models.Completion
	err := s.DB.WithContext(ctx).
		Preload("Habit").
		Preload("Member").
		Joins("JOIN members ON members.id = completions.member_id").
		Where("members.group_id = ? AND completions.status = ? AND completions.member_id <> ?", member.GroupID, models.StatusPending, member.ID).
		Order("completions.created_at DESC").
		Find(&pending).Error
	return pending, err
}

// Activity returns the group feed of approved and disputed completions, newest first.
func (s *CompletionService) Activity(ctx context.Context, member models.Member) ([]ActivityItem, error) {
	db := s.DB.WithContext(ctx)

	var completions []models.Completion
	err := db.
		Preload("Habit").
		Preload("Member").
		Joins("JOIN members ON members.id = completions.member_id").
		Where("members.group_id = ? AND completions.status IN ?", member.GroupID, []string{models.StatusApproved, models.StatusDisputed}).
		Order("completions.created_at DESC").
		Limit(activityLimit).
		Find(&completions).Error
	if err != nil {
		return nil, err
	}
	if len(completions) == 0 {
		return []ActivityItem{}, nil
	}

	ids := make([]string, len(completions))
	for i, c := range completions {
		ids[i] = c.ID
	}
	var disputes []models.Dispute
	if err := db.Where("completion_id IN ?", ids).Order("created_at ASC").Find(&disputes).Error; err != nil {
		return nil, err
	}
	latest := make(map[string]*models.Dispute, len(disputes))
	for i := range disputes {
		latest[disputes[i].CompletionID] = &disputes[i]
	}

	items := make([]ActivityItem, len(completions))
	for i, c := range completions {
		d := latest[c.ID]
		items[i] = ActivityItem{Completion: c, Dispute: d, State: StateOf(d)}
	}
	return items, nil
}
