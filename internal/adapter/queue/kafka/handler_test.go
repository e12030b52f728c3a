package kafka_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ad-moderation/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/ad-moderation/internal/domain"
)

type fakeAdverts struct {
	ads map[int64]domain.Advertisement
	err error
}

func (f *fakeAdverts) Create(_ domain.Context, ad domain.Advertisement) (domain.Advertisement, error) {
	return ad, nil
}

func (f *fakeAdverts) Select(_ domain.Context, itemID int64) (domain.Advertisement, error) {
	if f.err != nil {
		return domain.Advertisement{}, f.err
	}
	ad, ok := f.ads[itemID]
	if !ok {
		return domain.Advertisement{}, fmt.Errorf("op=advert.select: %w", domain.ErrNotFound)
	}
	return ad, nil
}

func (f *fakeAdverts) Close(_ domain.Context, itemID int64) (domain.CloseResult, error) {
	return domain.CloseResult{ItemID: itemID}, nil
}

type fakeTasks struct {
	pendingTaskID int64
	claimErr      error

	completedWith      *float64
	completedViolation *bool
	failedWith         *string
	processedIDs       map[string]bool
	recordedEvents     []string
}

func (f *fakeTasks) CreatePending(_ domain.Context, itemID int64) (domain.Task, error) {
	return domain.Task{ID: f.pendingTaskID, ItemID: itemID, Status: domain.TaskPending}, nil
}

func (f *fakeTasks) Get(_ domain.Context, taskID int64) (domain.Task, error) {
	return domain.Task{ID: taskID}, nil
}

func (f *fakeTasks) ClaimAndComplete(_ domain.Context, _ int64, isViolation bool, probability float64) (int64, error) {
	if f.claimErr != nil {
		return 0, f.claimErr
	}
	if f.pendingTaskID == 0 {
		return 0, nil
	}
	f.completedWith = &probability
	f.completedViolation = &isViolation
	return f.pendingTaskID, nil
}

func (f *fakeTasks) ClaimAndFail(_ domain.Context, _ int64, errorMessage string) (int64, error) {
	if f.pendingTaskID == 0 {
		return 0, nil
	}
	f.failedWith = &errorMessage
	return f.pendingTaskID, nil
}

func (f *fakeTasks) MarkEventProcessed(_ domain.Context, eventID string, _, _ int64) (bool, error) {
	f.recordedEvents = append(f.recordedEvents, eventID)
	return true, nil
}

func (f *fakeTasks) IsEventProcessed(_ domain.Context, eventID string) (bool, error) {
	return f.processedIDs[eventID], nil
}

type fakeScorer struct {
	probability float64
	err         error
}

func (f *fakeScorer) PredictProbability(domain.Advertisement) (float64, error) {
	return f.probability, f.err
}

type fakeDLQ struct {
	messages []string
}

func (f *fakeDLQ) PublishDeadLetter(_ domain.Context, _ []byte, errorMessage string) error {
	f.messages = append(f.messages, errorMessage)
	return nil
}

func TestHandler_CompletesTask(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
	tasks := &fakeTasks{pendingTaskID: 5}
	dlq := &fakeDLQ{}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{probability: 0.91}, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42, "event_id": "evt-1"}`))
	require.NoError(t, err)
	require.NotNil(t, tasks.completedWith)
	assert.InDelta(t, 0.91, *tasks.completedWith, 1e-9)
	assert.Nil(t, tasks.failedWith)
	assert.Empty(t, dlq.messages)
	assert.Equal(t, []string{"evt-1"}, tasks.recordedEvents)
}

func TestHandler_AdvertMissing_FailsAndDeadLetters(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{}}
	tasks := &fakeTasks{pendingTaskID: 5}
	dlq := &fakeDLQ{}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{}, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42}`))
	require.NoError(t, err)
	require.NotNil(t, tasks.failedWith)
	assert.Equal(t, "Advertisement not found", *tasks.failedWith)
	assert.Equal(t, []string{"Advertisement not found"}, dlq.messages)
}

func TestHandler_StorageError_FailsWithDetail(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{err: fmt.Errorf("op=advert.select: %w: conn refused", domain.ErrStorageUnavailable)}
	tasks := &fakeTasks{pendingTaskID: 5}
	dlq := &fakeDLQ{}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{}, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42}`))
	require.NoError(t, err)
	require.NotNil(t, tasks.failedWith)
	assert.Contains(t, *tasks.failedWith, "Database read failed: ")
	assert.Contains(t, *tasks.failedWith, "conn refused")
	assert.Len(t, dlq.messages, 1)
}

func TestHandler_PredictionError_FailsWithDetail(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
	tasks := &fakeTasks{pendingTaskID: 5}
	dlq := &fakeDLQ{}
	sc := &fakeScorer{err: fmt.Errorf("op=scorer.predict: %w", domain.ErrScorerFailed)}
	h := kafka.NewHandler(adverts, tasks, sc, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42}`))
	require.NoError(t, err)
	require.NotNil(t, tasks.failedWith)
	assert.Contains(t, *tasks.failedWith, "Prediction failed: ")
	assert.Len(t, dlq.messages, 1)
}

func TestHandler_CommitError_FailsWithDetail(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
	tasks := &fakeTasks{pendingTaskID: 5, claimErr: fmt.Errorf("op=task.claim_complete: %w: tx aborted", domain.ErrStorageUnavailable)}
	dlq := &fakeDLQ{}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{probability: 0.2}, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42}`))
	require.NoError(t, err)
	require.NotNil(t, tasks.failedWith)
	assert.Contains(t, *tasks.failedWith, "Failed to update moderation result: ")
	assert.Len(t, dlq.messages, 1)
}

func TestHandler_NoPendingTask_DiscardsWithoutDLQ(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
	tasks := &fakeTasks{pendingTaskID: 0}
	dlq := &fakeDLQ{}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{probability: 0.7}, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42}`))
	require.NoError(t, err)
	assert.Nil(t, tasks.completedWith)
	assert.Nil(t, tasks.failedWith)
	assert.Empty(t, dlq.messages)
}

func TestHandler_DuplicateEvent_Skipped(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
	tasks := &fakeTasks{pendingTaskID: 5, processedIDs: map[string]bool{"evt-1": true}}
	dlq := &fakeDLQ{}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{probability: 0.9}, dlq)

	err := h.Handle(context.Background(), []byte(`{"item_id": 42, "event_id": "evt-1"}`))
	require.NoError(t, err)
	assert.Nil(t, tasks.completedWith)
	assert.Empty(t, dlq.messages)
}

func TestHandler_InvalidPayload_DeadLettersOnly(t *testing.T) {
	t.Parallel()

	cases := []string{
		`not json`,
		`{"event_id": "evt-1"}`,
		`{"item_id": -1}`,
		`{"item_id": 1.5}`,
		`{"item_id": "42"}`,
		`{"item_id": 42}garbage`,
	}
	for _, raw := range cases {
		adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
		tasks := &fakeTasks{pendingTaskID: 5}
		dlq := &fakeDLQ{}
		h := kafka.NewHandler(adverts, tasks, &fakeScorer{}, dlq)

		err := h.Handle(context.Background(), []byte(raw))
		require.NoError(t, err, raw)
		assert.Nil(t, tasks.failedWith, raw)
		assert.Equal(t, []string{"Invalid message payload"}, dlq.messages, raw)
	}
}

func TestHandler_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	adverts := &fakeAdverts{ads: map[int64]domain.Advertisement{42: {ItemID: 42}}}
	tasks := &fakeTasks{pendingTaskID: 5}
	h := kafka.NewHandler(adverts, tasks, &fakeScorer{probability: domain.ViolationThreshold}, &fakeDLQ{})

	err := h.Handle(context.Background(), []byte(`{"item_id": 42}`))
	require.NoError(t, err)
	require.NotNil(t, tasks.completedWith)
	assert.InDelta(t, domain.ViolationThreshold, *tasks.completedWith, 1e-9)
	require.NotNil(t, tasks.completedViolation)
	assert.True(t, *tasks.completedViolation)
}
