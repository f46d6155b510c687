package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"habit-league/models"
	"habit-league/scoring"
	"habit-league/telemetry"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// maxCatchUpRounds bounds how many consecutive expired periods one sweep closes for a
// single group.
const maxCatchUpRounds = 64

// RoundClosed is the one-time result shown to members when a round ends.
type RoundClosed struct {
	Ranking     []scoring.RankingEntry `json:"ranking"`
	WinnerID    *string                `json:"winner_id"`
	IsTie       bool                   `json:"is_tie"`
	ClosedRound models.Round           `json:"closed_round"`
	NextRound   models.Round           `json:"next_round"`
}

// RoundService detects expired rounds, closes them and opens the next period.
type RoundService struct {
	store    Store
	notifier Notifier
	clock    clockwork.Clock
	loc      *time.Location
	metrics  *telemetry.Metrics
}

func NewRoundService(store Store, notifier Notifier, clock clockwork.Clock, loc *time.Location, metrics *telemetry.Metrics) *RoundService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &RoundService{store: store, notifier: notifier, clock: clock, loc: loc, metrics: metrics}
}

// Today is the current calendar date in the service's timezone.
func (s *RoundService) Today() string {
	return scoring.Today(s.clock.Now(), s.loc)
}

// CheckRound closes the group's active round if it has expired and opens the next one.
//
// It returns (nil, nil) when there is no active round, when the round has not expired,
// when the group has no members, and when another trigger closed the same round first.
// Persistence failures are wrapped in ErrRoundTransition and leave no partial close.
func (s *RoundService) CheckRound(ctx context.Context, groupID string) (*RoundClosed, error) {
	round, err := s.store.FindActiveRound(ctx, groupID)
	if err != nil {
		return nil, s.failed("find active round", groupID, err)
	}
	if round == nil || s.Today() <= round.EndDate {
		return nil, nil
	}
	return s.closeExpired(ctx, *round)
}

// CatchUp repeats CheckRound until the group's active round is current again, returning
// every round it closed in order.
func (s *RoundService) CatchUp(ctx context.Context, groupID string) ([]RoundClosed, error) {
	var closed []RoundClosed
	for i := 0; i < maxCatchUpRounds; i++ {
		result, err := s.CheckRound(ctx, groupID)
		if err != nil {
			return closed, err
		}
		if result == nil {
			return closed, nil
		}
		closed = append(closed, *result)
	}
	log.Printf("[ROUNDS] ⚠️ group %s still behind after %d catch-up closes", groupID, maxCatchUpRounds)
	return closed, nil
}

// SweepExpired closes every expired active round across all groups. It keeps going past
// individual group failures and returns them joined.
func (s *RoundService) SweepExpired(ctx context.Context) (int, error) {
	rounds, err := s.store.ListExpiredActiveRounds(ctx, s.Today())
	if err != nil {
		return 0, s.failed("list expired rounds", "*", err)
	}

	var (
		total int
		errs  []error
		seen  = make(map[string]bool, len(rounds))
	)
	for _, r := range rounds {
		if seen[r.GroupID] {
			continue
		}
		seen[r.GroupID] = true

		closed, err := s.CatchUp(ctx, r.GroupID)
		total += len(closed)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (s *RoundService) closeExpired(ctx context.Context, round models.Round) (*RoundClosed, error) {
	group, err := s.store.FindGroup(ctx, round.GroupID)
	if err != nil {
		return nil, s.failed("load group", round.GroupID, err)
	}
	if group == nil {
		return nil, s.failed("load group", round.GroupID, ErrNotFound)
	}

	members, err := s.store.ListMembers(ctx, round.GroupID)
	if err != nil {
		return nil, s.failed("list members", round.GroupID, err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	memberIDs := make([]string, len(members))
	for i, m := range members {
		memberIDs[i] = m.ID
	}
	completions, err := s.store.ListApprovedCompletions(ctx, memberIDs, round.StartDate, round.EndDate)
	if err != nil {
		return nil, s.failed("list completions", round.GroupID, err)
	}

	eval := scoring.EvaluateRound(round, members, completions)

	bounds, err := scoring.NextPeriodBounds(group.Period, round.EndDate)
	if err != nil {
		return nil, s.failed("next period bounds", round.GroupID, err)
	}
	next := models.Round{
		ID:        uuid.NewString(),
		GroupID:   round.GroupID,
		StartDate: bounds.Start,
		EndDate:   bounds.End,
		IsActive:  true,
	}

	won := false
	err = s.store.Transaction(ctx, func(tx Store) error {
		ok, err := tx.CloseRound(ctx, round.ID, eval.WinnerID)
		if err != nil {
			return fmt.Errorf("close round: %w", err)
		}
		if !ok {
			return nil
		}
		won = true
		if err := tx.CreateRound(ctx, &next); err != nil {
			return fmt.Errorf("create next round: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.failed("close and open", round.GroupID, err)
	}
	if !won {
		log.Printf("[ROUNDS] ↩️ round %s of group %s was already closed by another trigger", round.ID, round.GroupID)
		s.metrics.RoundConflict()
		return nil, nil
	}

	round.IsActive = false
	round.WinnerID = eval.WinnerID

	outcome := "winner"
	switch {
	case eval.IsTie:
		outcome = "tie"
	case eval.WinnerID == nil:
		outcome = "empty"
	}
	s.metrics.RoundClosed(outcome)
	log.Printf("✅ [ROUNDS] closed round %s (%s..%s) of group %s: %s; next %s..%s",
		round.ID, round.StartDate, round.EndDate, round.GroupID, outcome, next.StartDate, next.EndDate)

	s.notifier.Notify(ctx, memberIDs, notificationTitle, roundClosedMessage(eval))

	return &RoundClosed{
		Ranking:     eval.Ranking,
		WinnerID:    eval.WinnerID,
		IsTie:       eval.IsTie,
		ClosedRound: round,
		NextRound:   next,
	}, nil
}

func (s *RoundService) failed(step, groupID string, err error) error {
	s.metrics.RoundFailure()
	log.Printf("❌ [ROUNDS] %s failed for group %s: %v", step, groupID, err)
	return fmt.Errorf("%w: %s: %w", ErrRoundTransition, step, err)
}

func roundClosedMessage(eval scoring.Evaluation) string {
	switch {
	case eval.IsTie:
		return "The round ended in a tie. A new round has started!"
	case eval.WinnerID == nil:
		return "The round ended without points. A new round has started!"
	default:
		return fmt.Sprintf("%s won the round 🏆 A new round has started!", eval.Ranking[0].Member.Nickname)
	}
}
