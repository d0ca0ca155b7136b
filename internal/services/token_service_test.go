package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"exact multiple", "abcd", 1},
		{"ten chars", "0123456789", 3},
		{"multibyte counted per character", "¿Qué?", 2},
		{"long", strings.Repeat("x", 401), 101},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateCost(tt.text))
		})
	}
}

func TestTryDebit(t *testing.T) {
	ta, err := NewTokenAccountant(DefaultTierLimits(), TierStandard, 10)
	require.NoError(t, err)

	t.Run("Debit within budget", func(t *testing.T) {
		assert.NoError(t, ta.TryDebit(4))
		assert.Equal(t, 6, ta.Snapshot().Remaining)
	})

	t.Run("Debit exactly the remaining budget", func(t *testing.T) {
		assert.NoError(t, ta.TryDebit(6))
		assert.Equal(t, 0, ta.Snapshot().Remaining)
	})

	t.Run("Insufficient budget leaves balance untouched", func(t *testing.T) {
		err := ta.TryDebit(1)
		assert.ErrorIs(t, err, ErrInsufficientBudget)
		assert.Equal(t, 0, ta.Snapshot().Remaining)
	})

	t.Run("Negative amount rejected", func(t *testing.T) {
		assert.ErrorIs(t, ta.TryDebit(-1), ErrInvalidAmount)
	})
}

func TestTryDebitNeverGoesNegative(t *testing.T) {
	ta, err := NewTokenAccountant(DefaultTierLimits(), TierStandard, 100)
	require.NoError(t, err)

	amounts := []int{30, 50, 40, 20, 0, 1, 25, 7}
	remaining := 100
	for _, a := range amounts {
		err := ta.TryDebit(a)
		if a <= remaining {
			require.NoError(t, err)
			remaining -= a
		} else {
			require.ErrorIs(t, err, ErrInsufficientBudget)
		}
		snap := ta.Snapshot()
		require.Equal(t, remaining, snap.Remaining)
		require.GreaterOrEqual(t, snap.Remaining, 0)
		require.LessOrEqual(t, snap.Remaining, snap.Limit)
	}
}

func TestNewTokenAccountantClampsToLimit(t *testing.T) {
	ta, err := NewTokenAccountant(DefaultTierLimits(), TierStandard, 999999)
	require.NoError(t, err)
	assert.Equal(t, 5000, ta.Snapshot().Remaining)

	ta, err = NewTokenAccountant(DefaultTierLimits(), TierElevated, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, ta.Snapshot().Remaining)
	assert.Equal(t, 100000, ta.Snapshot().Limit)

	_, err = NewTokenAccountant(DefaultTierLimits(), Tier("gold"), 10)
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestCreditAndTierChanges(t *testing.T) {
	ta, err := NewTokenAccountant(DefaultTierLimits(), TierStandard, 4900)
	require.NoError(t, err)

	remaining, err := ta.Credit(500)
	require.NoError(t, err)
	assert.Equal(t, 5000, remaining, "credit is capped at the tier limit")

	require.NoError(t, ta.SetTier(TierElevated))
	remaining, err = ta.Credit(500)
	require.NoError(t, err)
	assert.Equal(t, 5500, remaining)

	require.NoError(t, ta.SetTier(TierStandard))
	assert.Equal(t, 5000, ta.Snapshot().Remaining, "downgrade clamps to the new limit")

	assert.ErrorIs(t, ta.SetTier("gold"), ErrUnknownTier)
	_, err = ta.Credit(-1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBudgetSnapshotStatus(t *testing.T) {
	tests := []struct {
		remaining int
		want      BudgetStatus
	}{
		{5000, BudgetHigh},
		{2501, BudgetHigh},
		{2500, BudgetMedium},
		{1001, BudgetMedium},
		{1000, BudgetLow},
		{0, BudgetLow},
	}

	for _, tt := range tests {
		ta, err := NewTokenAccountant(DefaultTierLimits(), TierStandard, tt.remaining)
		require.NoError(t, err)
		snap := ta.Snapshot()
		assert.Equal(t, tt.want, snap.Status, "remaining=%d", tt.remaining)
		assert.Equal(t, 5000-tt.remaining, snap.Used)
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("elevated")
	require.NoError(t, err)
	assert.Equal(t, TierElevated, tier)

	_, err = ParseTier("plus")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestTokenAccountant_Reset(t *testing.T) {
	ta, err := NewTokenAccountant(DefaultTierLimits(), TierElevated, 90000)
	require.NoError(t, err)

	require.NoError(t, ta.Reset(TierStandard, 2500))
	snap := ta.Snapshot()
	assert.Equal(t, TierStandard, snap.Tier)
	assert.Equal(t, 2500, snap.Remaining)

	require.NoError(t, ta.Reset(TierStandard, 9000))
	assert.Equal(t, 5000, ta.Snapshot().Remaining)

	assert.ErrorIs(t, ta.Reset("gold", 10), ErrUnknownTier)
	assert.Equal(t, 5000, ta.Snapshot().Remaining)
}
