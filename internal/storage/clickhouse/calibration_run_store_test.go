package clickhouse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-outcome-lab/internal/domain"
	"trade-outcome-lab/internal/storage"
)

func TestCalibrationRunStore_InsertAndGetByKind(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCalibrationRunStore(conn)

	first := &domain.CalibrationRun{RunID: "r1", Kind: domain.CalibrationRunDrift, CreatedAt: day(2024, 1, 1), TradeCount: 12, WeightedError: -0.04}
	second := &domain.CalibrationRun{RunID: "r2", Kind: domain.CalibrationRunDrift, CreatedAt: day(2024, 2, 1), TradeCount: 30, DriftDetected: true}
	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	err := store.Insert(ctx, first)
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	runs, err := store.GetByKind(ctx, domain.CalibrationRunDrift, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].RunID)
	assert.True(t, runs[0].DriftDetected)
	assert.Equal(t, 12, runs[1].TradeCount)
}
