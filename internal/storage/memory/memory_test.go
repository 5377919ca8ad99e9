package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

func TestTrialStore_InsertAndGet(t *testing.T) {
	store := NewTrialStore()
	ctx := context.Background()

	sharpe := 1.25
	rec := &domain.TrialRecord{
		StudyID:     "study1",
		TrialIndex:  0,
		Parameters:  domain.Assignment{"sma_period": domain.IntValue(15)},
		Status:      domain.TrialCompleted,
		SharpeRatio: &sharpe,
		Objective:   12.5,
	}

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	rec.Parameters["sma_period"] = domain.IntValue(99)
	sharpe = 0

	got, err := store.GetByIndex(ctx, "study1", 0)
	if err != nil {
		t.Fatalf("GetByIndex failed: %v", err)
	}
	if got.Parameters["sma_period"].Int() != 15 {
		t.Errorf("Parameters mutated: got %v", got.Parameters)
	}
	if got.SharpeRatio == nil || *got.SharpeRatio != 1.25 {
		t.Errorf("SharpeRatio mismatch: got %v", got.SharpeRatio)
	}
}

func TestTrialStore_DuplicateKey(t *testing.T) {
	store := NewTrialStore()
	ctx := context.Background()

	rec := &domain.TrialRecord{StudyID: "study1", TrialIndex: 3}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, rec)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same index in another study is fine.
	if err := store.Insert(ctx, &domain.TrialRecord{StudyID: "study2", TrialIndex: 3}); err != nil {
		t.Errorf("Insert into other study failed: %v", err)
	}
}

func TestTrialStore_InsertBulkAtomic(t *testing.T) {
	store := NewTrialStore()
	ctx := context.Background()

	batch := []*domain.TrialRecord{
		{StudyID: "s", TrialIndex: 0},
		{StudyID: "s", TrialIndex: 1},
		{StudyID: "s", TrialIndex: 1},
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByStudy(ctx, "s")
	if len(got) != 0 {
		t.Errorf("Expected no records after failed batch, got %d", len(got))
	}
}

func TestTrialStore_GetByStudyOrdered(t *testing.T) {
	store := NewTrialStore()
	ctx := context.Background()

	for _, idx := range []int{2, 0, 1} {
		if err := store.Insert(ctx, &domain.TrialRecord{StudyID: "s", TrialIndex: idx}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByStudy(ctx, "s")
	if err != nil {
		t.Fatalf("GetByStudy failed: %v", err)
	}
	for i, r := range got {
		if r.TrialIndex != i {
			t.Errorf("position %d: got trial %d", i, r.TrialIndex)
		}
	}

	if _, err := store.GetByIndex(ctx, "s", 7); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestTrialStore_InvalidInput(t *testing.T) {
	store := NewTrialStore()
	if err := store.Insert(context.Background(), &domain.TrialRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTrialStore_ConcurrentInsert(t *testing.T) {
	store := NewTrialStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = store.Insert(ctx, &domain.TrialRecord{StudyID: "s", TrialIndex: idx})
		}(i)
	}
	wg.Wait()

	got, _ := store.GetByStudy(ctx, "s")
	if len(got) != 50 {
		t.Errorf("Expected 50 records, got %d", len(got))
	}
}

func TestEventStore_RoundTrip(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []domain.EventRow{
		{EventType: domain.EventNoAction, Timestamp: ts},
		{EventType: domain.EventNoAction, Timestamp: ts.Add(time.Minute)},
	}

	if err := store.InsertBulk(ctx, "run1", rows); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, "run1", rows); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByRun failed: %v", err)
	}
	if len(got) != 2 || !got[1].Timestamp.Equal(ts.Add(time.Minute)) {
		t.Errorf("Unexpected rows: %+v", got)
	}

	empty, _ := store.GetByRun(ctx, "missing")
	if len(empty) != 0 {
		t.Errorf("Expected empty log, got %d rows", len(empty))
	}
}

func TestBarStore_RangeAndDuplicates(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bar := func(i int) domain.Bar {
		return domain.Bar{Timestamp: base.Add(time.Duration(i) * time.Hour), Open: 1, High: 1, Low: 1, Close: 1}
	}

	if err := store.InsertBulk(ctx, "SPY", "1h", []domain.Bar{bar(2), bar(0)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, "SPY", "1h", []domain.Bar{bar(1), bar(3)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	if err := store.InsertBulk(ctx, "SPY", "1h", []domain.Bar{bar(4), bar(2)}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetRange(ctx, "SPY", "1h", base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 2 || !got[0].Timestamp.Equal(base.Add(time.Hour)) || !got[1].Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Errorf("Unexpected range: %+v", got)
	}

	other, _ := store.GetRange(ctx, "SPY", "1d", base, base.Add(24*time.Hour))
	if len(other) != 0 {
		t.Errorf("Expected no bars for other interval, got %d", len(other))
	}
}
