package memory

import (
	"context"
	"errors"
	"testing"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

func TestPredictionLogStore_InsertBulkDuplicate(t *testing.T) {
	store := NewPredictionLogStore()
	ctx := context.Background()

	logs := []*domain.PredictionLog{
		{ID: "p1", Ticker: "AAPL", Date: day(2024, 1, 2), Probability: 60},
		{ID: "p1", Ticker: "AAPL", Date: day(2024, 1, 3), Probability: 65},
	}
	if err := store.InsertBulk(ctx, logs); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByDateRange(ctx, day(2024, 1, 1), day(2024, 1, 31))
	if len(got) != 0 {
		t.Errorf("failed batch must not insert anything, got %d", len(got))
	}
}

func TestCalibrationRunStore_GetByKindNewestFirst(t *testing.T) {
	store := NewCalibrationRunStore()
	ctx := context.Background()

	_ = store.Insert(ctx, &domain.CalibrationRun{RunID: "r1", Kind: domain.CalibrationRunDrift, CreatedAt: day(2024, 1, 1)})
	_ = store.Insert(ctx, &domain.CalibrationRun{RunID: "r2", Kind: domain.CalibrationRunDrift, CreatedAt: day(2024, 2, 1)})
	_ = store.Insert(ctx, &domain.CalibrationRun{RunID: "r3", Kind: domain.CalibrationRunFit, CreatedAt: day(2024, 3, 1)})

	got, err := store.GetByKind(ctx, domain.CalibrationRunDrift, 1)
	if err != nil {
		t.Fatalf("GetByKind failed: %v", err)
	}
	if len(got) != 1 || got[0].RunID != "r2" {
		t.Errorf("unexpected runs: %+v", got)
	}
}
