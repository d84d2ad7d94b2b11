package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransactions_CountAndOrdering(t *testing.T) {
	s := NewSimulator(42)

	records, err := s.Transactions(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, records, 500)

	now := time.Now().UTC()
	for i, tx := range records {
		require.NotEmpty(t, tx.ID)
		require.True(t, tx.Amount.IsPositive(), "record %d amount", i)
		require.True(t, tx.CO2e.IsPositive(), "record %d co2e", i)
		require.True(t, tx.OccurredAt.Before(now.Add(time.Hour)), "record %d in the past", i)
		if i > 0 {
			require.False(t, tx.OccurredAt.Before(records[i-1].OccurredAt),
				"record %d out of order", i)
		}
	}
}

func TestTransactions_SeedDeterminism(t *testing.T) {
	a, err := NewSimulator(7).Transactions(context.Background(), 100)
	require.NoError(t, err)
	b, err := NewSimulator(7).Transactions(context.Background(), 100)
	require.NoError(t, err)

	for i := range a {
		require.True(t, a[i].Amount.Equal(b[i].Amount), "record %d amount", i)
		require.True(t, a[i].CO2e.Equal(b[i].CO2e), "record %d co2e", i)
		require.Equal(t, a[i].ProjectID, b[i].ProjectID, "record %d project", i)
		require.Equal(t, a[i].PaymentMethod, b[i].PaymentMethod, "record %d payment", i)
	}
}

func TestTransactions_DifferentSeedsDiverge(t *testing.T) {
	a, err := NewSimulator(1).Transactions(context.Background(), 50)
	require.NoError(t, err)
	b, err := NewSimulator(2).Transactions(context.Background(), 50)
	require.NoError(t, err)

	same := 0
	for i := range a {
		if a[i].ProjectID == b[i].ProjectID && a[i].Amount.Equal(b[i].Amount) {
			same++
		}
	}
	require.Less(t, same, len(a), "different seeds should produce different streams")
}

func TestTransactions_ProjectFieldsConsistent(t *testing.T) {
	s := NewSimulator(3)
	byID := make(map[string]Project)
	for _, p := range s.Projects() {
		byID[p.ID] = p
	}

	records, err := s.Transactions(context.Background(), 200)
	require.NoError(t, err)
	for _, tx := range records {
		project, ok := byID[tx.ProjectID]
		require.True(t, ok, "unknown project %s", tx.ProjectID)
		require.Equal(t, project.Methodology, tx.Methodology)
		require.True(t, tx.Amount.Equal(tx.CO2e.Mul(project.PricePerTon).Round(2)))
	}
}

func TestTransactions_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulator(1).Transactions(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
}
