package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"habit-league/models"
	"habit-league/telemetry"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DisputeState is the position of a completion in the objection lifecycle.
type DisputeState string

const (
	DisputeNone             DisputeState = "none"
	DisputeObjected         DisputeState = "objected"
	DisputeDefended         DisputeState = "defended"
	DisputeResolvedAccepted DisputeState = "resolved_accepted"
	DisputeResolvedRejected DisputeState = "resolved_rejected"
)

// StateOf derives the lifecycle state from a dispute row. A nil dispute is DisputeNone.
func StateOf(d *models.Dispute) DisputeState {
	switch {
	case d == nil:
		return DisputeNone
	case d.Resolution != nil && *d.Resolution == models.ResolutionAccepted:
		return DisputeResolvedAccepted
	case d.Resolution != nil:
		return DisputeResolvedRejected
	case d.DefenseText != nil:
		return DisputeDefended
	default:
		return DisputeObjected
	}
}

// Terminal reports whether no further transition is possible.
func (s DisputeState) Terminal() bool {
	return s == DisputeResolvedAccepted || s == DisputeResolvedRejected
}

// DisputeService runs objection, defense and resolution for disputed completions.
type DisputeService struct {
	store    Store
	notifier Notifier
	clock    clockwork.Clock
	metrics  *telemetry.Metrics
}

func NewDisputeService(store Store, notifier Notifier, clock clockwork.Clock, metrics *telemetry.Metrics) *DisputeService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DisputeService{store: store, notifier: notifier, clock: clock, metrics: metrics}
}

// Get loads a dispute with its completion, habit and both parties.
func (s *DisputeService) Get(ctx context.Context, disputeID string) (*models.Dispute, error) {
	d, err := s.store.FindDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("%w: dispute %s", ErrNotFound, disputeID)
	}
	return d, nil
}

// Object files an objection against an approved completion and marks it disputed.
func (s *DisputeService) Object(ctx context.Context, completionID, objectorID, text string) (*models.Dispute, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: objection text is required", ErrValidation)
	}

	completion, err := s.store.FindCompletion(ctx, completionID)
	if err != nil {
		return nil, err
	}
	if completion == nil || completion.Member == nil {
		return nil, fmt.Errorf("%w: completion %s", ErrNotFound, completionID)
	}
	objector, err := s.store.FindMember(ctx, objectorID)
	if err != nil {
		return nil, err
	}
	if objector == nil || objector.GroupID != completion.Member.GroupID {
		return nil, fmt.Errorf("%w: objector is not in the completion's group", ErrForbidden)
	}
	if objector.ID == completion.MemberID {
		return nil, fmt.Errorf("%w: members cannot object to their own completion", ErrForbidden)
	}

	group, err := s.store.FindGroup(ctx, objector.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, objector.GroupID)
	}
	policy, err := PolicyFor(group.CompletionPolicy)
	if err != nil {
		return nil, err
	}
	if !policy.AllowsDisputes() {
		return nil, fmt.Errorf("%w: group %s does not take objections", ErrInvalidTransition, group.ID)
	}
	if completion.Status != models.StatusApproved {
		return nil, fmt.Errorf("%w: completion is %s, only approved completions can be disputed", ErrInvalidTransition, completion.Status)
	}

	dispute := &models.Dispute{
		ID:            uuid.NewString(),
		CompletionID:  completion.ID,
		DisputedBy:    objector.ID,
		ObjectionText: text,
	}
	err = s.store.Transaction(ctx, func(tx Store) error {
		open, err := tx.HasOpenDispute(ctx, completion.ID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("%w: completion already has an open dispute", ErrConflict)
		}
		if err := tx.CreateDispute(ctx, dispute); err != nil {
			return err
		}
		ok, err := tx.SetCompletionStatus(ctx, completion.ID, models.StatusApproved, models.StatusDisputed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: completion changed status while objecting", ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.DisputeTransition(string(DisputeObjected))
	log.Printf("⚖️ [DISPUTES] %s objected to completion %s (dispute %s)", objector.ID, completion.ID, dispute.ID)
	s.notifier.Notify(ctx, []string{completion.MemberID}, notificationTitle,
		fmt.Sprintf("%s objected to your %s proof, defend it!", objector.Nickname, habitName(completion)))

	dispute.Objector = objector
	return dispute, nil
}

// Defend records the accused member's defense. It can happen exactly once.
func (s *DisputeService) Defend(ctx context.Context, disputeID, memberID, text string) (*models.Dispute, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: defense text is required", ErrValidation)
	}

	dispute, err := s.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Completion == nil {
		return nil, fmt.Errorf("%w: completion %s", ErrNotFound, dispute.CompletionID)
	}
	if dispute.Completion.MemberID != memberID {
		return nil, fmt.Errorf("%w: only the completion owner can defend", ErrForbidden)
	}
	if state := StateOf(dispute); state != DisputeObjected {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidTransition, state)
	}

	ok, err := s.store.SetDisputeDefense(ctx, dispute.ID, text)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: dispute was defended or resolved concurrently", ErrInvalidTransition)
	}
	dispute.DefenseText = &text

	s.metrics.DisputeTransition(string(DisputeDefended))
	log.Printf("🛡️ [DISPUTES] %s defended dispute %s", memberID, dispute.ID)
	s.notifier.Notify(ctx, []string{dispute.DisputedBy}, notificationTitle,
		fmt.Sprintf("%s defended their proof, make a decision", ownerNickname(dispute.Completion)))
	return dispute, nil
}

// Resolve lets the original objector accept or reject the defense. Accepting puts the
// completion back to approved; rejecting drops it from scoring.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, memberID, resolution string) (*models.Dispute, error) {
	var status string
	switch resolution {
	case models.ResolutionAccepted:
		status = models.StatusApproved
	case models.ResolutionRejected:
		status = models.StatusRejected
	default:
		return nil, fmt.Errorf("%w: resolution must be %q or %q", ErrValidation, models.ResolutionAccepted, models.ResolutionRejected)
	}

	dispute, err := s.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.DisputedBy != memberID {
		return nil, fmt.Errorf("%w: only the objector can resolve", ErrForbidden)
	}
	if state := StateOf(dispute); state != DisputeDefended {
		return nil, fmt.Errorf("%w: dispute is %s", ErrInvalidTransition, state)
	}

	resolvedAt := s.clock.Now()
	err = s.store.Transaction(ctx, func(tx Store) error {
		ok, err := tx.ResolveDispute(ctx, dispute.ID, resolution, resolvedAt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: dispute was resolved concurrently", ErrInvalidTransition)
		}
		ok, err = tx.SetCompletionStatus(ctx, dispute.CompletionID, models.StatusDisputed, status)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: completion %s is no longer disputed", ErrConflict, dispute.CompletionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dispute.Resolution = &resolution
	dispute.ResolvedAt = &resolvedAt
	if dispute.Completion != nil {
		dispute.Completion.Status = status
	}

	state := StateOf(dispute)
	s.metrics.DisputeTransition(string(state))
	log.Printf("🔨 [DISPUTES] dispute %s resolved %s by %s", dispute.ID, resolution, memberID)

	if dispute.Completion != nil {
		objector := "The objector"
		if dispute.Objector != nil {
			objector = dispute.Objector.Nickname
		}
		msg := fmt.Sprintf("%s accepted your defense ✅", objector)
		if resolution == models.ResolutionRejected {
			msg = fmt.Sprintf("%s rejected your defense ❌", objector)
		}
		s.notifier.Notify(ctx, []string{dispute.Completion.MemberID}, notificationTitle, msg)
	}
	return dispute, nil
}

func habitName(c *models.Completion) string {
	if c.Habit == nil {
		return "habit"
	}
	return c.Habit.Name
}

func ownerNickname(c *models.Completion) string {
	if c == nil || c.Member == nil {
		return "The member"
	}
	return c.Member.Nickname
}
