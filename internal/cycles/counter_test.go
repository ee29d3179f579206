package cycles

import (
	"context"
	"errors"
	"testing"

	"battery_log/internal/apperr"
	"battery_log/internal/rowstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountIn(t *testing.T) {
	values := [][]string{
		{"Battery ID", "date", "name", "id_2"},
		{"B1", "2025-01-01", "a", ""},
		{" B1 ", "2025-01-02", "a", "B2"},
		{"B2", "2025-01-03", "a", "B1"},
		{"b1", "2025-01-04", "a", ""},
		{"B3"},
	}

	tests := []struct {
		id   string
		want int
	}{
		{"B1", 3},
		{" B1", 3},
		{"B2", 2},
		{"b1", 1},
		{"B3", 1},
		{"B9", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, CountIn(values, tt.id))
		})
	}
}

func TestCountInHeaderOnlyOrEmpty(t *testing.T) {
	assert.Equal(t, 0, CountIn(nil, "B1"))
	assert.Equal(t, 0, CountIn([][]string{{"id", "date", "name"}}, "B1"))
}

func TestCountInLegacyPositions(t *testing.T) {
	row := make([]string, 32)
	row[0] = "B1"
	row[16] = "B2"
	values := [][]string{{"", "", ""}, row}

	assert.Equal(t, 1, CountIn(values, "B1"))
	assert.Equal(t, 1, CountIn(values, "B2"))
}

func TestCountInPrimaryColumnOnly(t *testing.T) {
	values := [][]string{
		{"id", "date", "name"},
		{"B1", "d", "n"},
		{"B1", "d", "n"},
	}
	assert.Equal(t, 2, CountIn(values, "B1"))
}

func TestCounterCount(t *testing.T) {
	store := rowstore.NewMemory(
		[]string{"id", "date", "name"},
		[]string{"B1", "2025-01-01", "a"},
		[]string{"B1", "2025-01-02", "a"},
	)
	counter := NewCounter(store)

	n, err := counter.Count(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Append(context.Background(), []string{"B1", "2025-01-03", "a"}))
	n, err = counter.Count(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "counts are read fresh on every call")
}

func TestCounterEmptyID(t *testing.T) {
	store := rowstore.NewMemory([]string{"id"})
	_, err := NewCounter(store).Count(context.Background(), "  ")

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	reads, _ := store.Stats()
	assert.Zero(t, reads)
}

func TestCounterStoreFailure(t *testing.T) {
	store := rowstore.NewMemory()
	store.ReadErr = errors.New("quota exceeded")

	_, err := NewCounter(store).Count(context.Background(), "B1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}
