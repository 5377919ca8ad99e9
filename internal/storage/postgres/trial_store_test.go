package postgres

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

func TestTrialStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTrialStore(pool, nil)
	ctx := context.Background()

	rec := &domain.TrialRecord{
		StudyID:    "study-a",
		TrialIndex: 0,
		Parameters: domain.Assignment{
			"bb_period": domain.IntValue(20),
			"devfactor": domain.FloatValue(2),
		},
		Status:                domain.TrialCompleted,
		InitialPortfolioValue: 10000,
		FinalPortfolioValue:   10012.5,
		AbsoluteReturn:        12.5,
		RelativeReturn:        0.00125,
		SharpeRatio:           ptr(0.8),
		MaxDrawdown:           1.2,
		SystemQualityNumber:   1.1,
		TradeCount:            4,
		Objective:             12.5,
	}

	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.GetByIndex(ctx, "study-a", 0)
	require.NoError(t, err)
	assert.Equal(t, rec.Parameters, got.Parameters)
	assert.Equal(t, rec.FinalPortfolioValue, got.FinalPortfolioValue)
	require.NotNil(t, got.SharpeRatio)
	assert.Equal(t, 0.8, *got.SharpeRatio)

	err = store.Insert(ctx, rec)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey), "expected ErrDuplicateKey, got %v", err)
}

func TestTrialStore_FailedTrialKeepsNegativeInfinity(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTrialStore(pool, nil)
	ctx := context.Background()

	failed := domain.FailedTrial("study-b", 3, domain.Assignment{}, errors.New("bad feed"))
	require.NoError(t, store.Insert(ctx, &failed))

	got, err := store.GetByIndex(ctx, "study-b", 3)
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.Objective, -1))
	assert.Nil(t, got.SharpeRatio)
	assert.Equal(t, "bad feed", got.Error)
	assert.True(t, got.Failed())
}

func TestTrialStore_InsertBulkAndOrder(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTrialStore(pool, nil)
	ctx := context.Background()

	batch := []*domain.TrialRecord{
		{StudyID: "s", TrialIndex: 2, Status: domain.TrialCompleted},
		{StudyID: "s", TrialIndex: 0, Status: domain.TrialCompleted},
		{StudyID: "s", TrialIndex: 1, Status: domain.TrialCompleted},
	}
	require.NoError(t, store.InsertBulk(ctx, batch))

	got, err := store.GetByStudy(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, i, r.TrialIndex)
	}

	// Duplicate in a batch rolls back the whole batch.
	err = store.InsertBulk(ctx, []*domain.TrialRecord{
		{StudyID: "s", TrialIndex: 3, Status: domain.TrialCompleted},
		{StudyID: "s", TrialIndex: 0, Status: domain.TrialCompleted},
	})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByIndex(ctx, "s", 3)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEventStore_CopyAndRead(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewEventStore(pool)
	ctx := context.Background()

	ts := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	rows := []domain.EventRow{
		{EventType: domain.EventBuyOrderSubmission, Timestamp: ts, SubmissionID: "abc", Size: ptr(int64(1)), RefPrice: ptr(101.5), Justification: ptr("Price 101.50 below lower BB 102.00")},
		{EventType: domain.EventBuyOrderExecution, Timestamp: ts.Add(time.Hour), SubmissionID: "abc", Size: ptr(int64(1)), RefPrice: ptr(101.7)},
		{EventType: domain.EventNoAction, Timestamp: ts.Add(2 * time.Hour)},
	}

	require.NoError(t, store.InsertBulk(ctx, "run-1", rows))
	require.ErrorIs(t, store.InsertBulk(ctx, "run-1", rows), storage.ErrDuplicateKey)

	got, err := store.GetByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	empty, err := store.GetByRun(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
