package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"habit-league/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type completionHarness struct {
	db       *gorm.DB
	svc      *CompletionService
	photos   *memoryPhotos
	notifier *recordingNotifier
	clock    *clockwork.FakeClock
	f        fixture
}

func newCompletionHarness(t *testing.T, policy string) completionHarness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(baseTime)
	db := newTestDB(t, clock)
	h := completionHarness{
		db:       db,
		photos:   newMemoryPhotos(),
		notifier: &recordingNotifier{},
		clock:    clock,
		f:        seedGroup(t, db, models.PeriodWeekly, policy, "2024-01-08", "2024-01-14", "ana", "beto", "caro"),
	}
	h.svc = NewCompletionService(db, h.photos, h.notifier, clock, time.UTC, nil)
	return h
}

var jpeg = Photo{Data: []byte("\xff\xd8\xff"), ContentType: "image/jpeg", Filename: "proof.JPG"}

func TestSubmitSelfAttestIsApprovedImmediately(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	ana := h.f.Members[0]

	c, err := h.svc.Submit(context.Background(), ana, h.f.Habits[1].ID, jpeg)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, c.Status)
	assert.Equal(t, "2024-01-10", c.Date)
	assert.True(t, strings.HasPrefix(c.PhotoKey, "groups/casa-fit-"+h.f.Group.ID+"/2024-01-10/"), c.PhotoKey)
	assert.True(t, strings.HasSuffix(c.PhotoKey, ".jpg"))
	assert.Equal(t, "https://cdn.test/"+c.PhotoKey, c.PhotoURL)
	assert.Contains(t, h.photos.objects, c.PhotoKey)

	sent := h.notifier.all()
	require.Len(t, sent, 1)
	assert.ElementsMatch(t, []string{h.f.Members[1].ID, h.f.Members[2].ID}, sent[0].MemberIDs)
}

func TestSubmitRefusesSecondLiveCompletionSameDay(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	ana := h.f.Members[0]
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, ana, h.f.Habits[1].ID, jpeg)
	require.NoError(t, err)
	_, err = h.svc.Submit(ctx, ana, h.f.Habits[1].ID, jpeg)
	assert.ErrorIs(t, err, ErrConflict)

	// Tomorrow is a new day.
	h.clock.Advance(24 * time.Hour)
	_, err = h.svc.Submit(ctx, ana, h.f.Habits[1].ID, jpeg)
	assert.NoError(t, err)
}

func TestSubmitAllowsRetryAfterRejection(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	ana := h.f.Members[0]
	addCompletion(t, h.db, ana, h.f.Habits[1], "2024-01-10", models.StatusRejected)

	c, err := h.svc.Submit(context.Background(), ana, h.f.Habits[1].ID, jpeg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, c.Status)
}

func TestSubmitValidation(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	other := seedGroup(t, h.db, models.PeriodWeekly, models.PolicySelfAttest, "2024-01-08", "2024-01-14", "zoe")
	ctx := context.Background()

	_, err := h.svc.Submit(ctx, h.f.Members[0], h.f.Habits[1].ID, Photo{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.Submit(ctx, h.f.Members[0], other.Habits[1].ID, jpeg)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitUploadFailureStoresNothing(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	h.photos.failNext = true

	_, err := h.svc.Submit(context.Background(), h.f.Members[0], h.f.Habits[1].ID, jpeg)
	require.Error(t, err)

	var count int64
	require.NoError(t, h.db.Model(&models.Completion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPeerApprovalFlow(t *testing.T) {
	h := newCompletionHarness(t, models.PolicyPeerApproval)
	ana, beto, caro := h.f.Members[0], h.f.Members[1], h.f.Members[2]
	ctx := context.Background()

	c, err := h.svc.Submit(ctx, ana, h.f.Habits[2].ID, jpeg)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, c.Status)

	pending, err := h.svc.ListPending(ctx, beto)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)
	require.NotNil(t, pending[0].Member)
	assert.Equal(t, "ana", pending[0].Member.Nickname)

	mine, err := h.svc.ListPending(ctx, ana)
	require.NoError(t, err)
	assert.Empty(t, mine)

	_, err = h.svc.Validate(ctx, ana, c.ID, true)
	assert.ErrorIs(t, err, ErrForbidden)

	validated, err := h.svc.Validate(ctx, beto, c.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, validated.Status)
	require.NotNil(t, validated.ValidatedBy)
	assert.Equal(t, beto.ID, *validated.ValidatedBy)

	_, err = h.svc.Validate(ctx, caro, c.ID, false)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPeerApprovalRejection(t *testing.T) {
	h := newCompletionHarness(t, models.PolicyPeerApproval)
	ana, beto := h.f.Members[0], h.f.Members[1]
	ctx := context.Background()

	c, err := h.svc.Submit(ctx, ana, h.f.Habits[2].ID, jpeg)
	require.NoError(t, err)
	validated, err := h.svc.Validate(ctx, beto, c.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, validated.Status)

	// A rejected proof can be retried the same day.
	_, err = h.svc.Submit(ctx, ana, h.f.Habits[2].ID, jpeg)
	assert.NoError(t, err)
}

func TestValidateOnlyUnderPeerApproval(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	c := addCompletion(t, h.db, h.f.Members[0], h.f.Habits[1], "2024-01-10", models.StatusPending)

	_, err := h.svc.Validate(context.Background(), h.f.Members[1], c.ID, true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestActivityIncludesLatestDispute(t *testing.T) {
	h := newCompletionHarness(t, models.PolicySelfAttest)
	ana, beto := h.f.Members[0], h.f.Members[1]
	plain := addCompletion(t, h.db, ana, h.f.Habits[3], "2024-01-09", models.StatusApproved)
	disputed := addCompletion(t, h.db, beto, h.f.Habits[1], "2024-01-09", models.StatusDisputed)
	addCompletion(t, h.db, beto, h.f.Habits[2], "2024-01-09", models.StatusRejected)
	require.NoError(t, h.db.Create(&models.Dispute{ID: "d1", CompletionID: disputed.ID, DisputedBy: ana.ID, ObjectionText: "hm"}).Error)

	items, err := h.svc.Activity(context.Background(), ana)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byID := map[string]ActivityItem{}
	for _, it := range items {
		byID[it.Completion.ID] = it
	}
	assert.Equal(t, DisputeNone, byID[plain.ID].State)
	assert.Nil(t, byID[plain.ID].Dispute)
	assert.Equal(t, DisputeObjected, byID[disputed.ID].State)
	require.NotNil(t, byID[disputed.ID].Dispute)
	assert.Equal(t, "d1", byID[disputed.ID].Dispute.ID)
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor("")
	require.NoError(t, err)
	assert.Equal(t, models.PolicySelfAttest, p.Name())

	p, err = PolicyFor(models.PolicyPeerApproval)
	require.NoError(t, err)
	assert.True(t, p.RequiresValidation())
	assert.False(t, p.AllowsDisputes())

	_, err = PolicyFor("honor_system")
	assert.ErrorIs(t, err, ErrValidation)
}
