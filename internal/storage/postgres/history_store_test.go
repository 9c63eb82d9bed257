package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/wrenlabs/quill/internal/faults"
)

func TestRecordOutcomeInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHistoryStoreWithPool(mock, "recovery_outcomes")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO recovery_outcomes").
		WithArgs("anti_automation", "rotate_identity", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.RecordOutcome(context.Background(), faults.CategoryAntiAutomation, faults.ActionRotateIdentity, true)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccessRateAggregates(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHistoryStoreWithPool(mock, "recovery_outcomes")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT count").
		WithArgs("network", "retry").
		WillReturnRows(pgxmock.NewRows([]string{"total", "succeeded"}).AddRow(8, 6))

	rate, samples, err := store.SuccessRate(context.Background(), faults.CategoryNetwork, faults.ActionRetry)
	require.NoError(t, err)
	require.Equal(t, 8, samples)
	require.InDelta(t, 0.75, rate, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuccessRateNoRowsIsNeutral(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHistoryStoreWithPool(mock, "recovery_outcomes")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT count").
		WithArgs("data", "escalate").
		WillReturnRows(pgxmock.NewRows([]string{"total", "succeeded"}).AddRow(0, 0))

	rate, samples, err := store.SuccessRate(context.Background(), faults.CategoryData, faults.ActionEscalate)
	require.NoError(t, err)
	require.Zero(t, samples)
	require.Zero(t, rate)
}

func TestSuccessRateQueryError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewHistoryStoreWithPool(mock, "recovery_outcomes")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT count").
		WithArgs("network", "retry").
		WillReturnError(errors.New("connection reset"))

	_, _, err = store.SuccessRate(context.Background(), faults.CategoryNetwork, faults.ActionRetry)
	require.Error(t, err)
}

func TestNewHistoryStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewHistoryStoreWithPool(mock, "outcomes; drop table runs")
	require.Error(t, err)

	store, err := NewHistoryStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "recovery_outcomes", store.table)

	_, err = NewHistoryStoreWithPool(nil, "recovery_outcomes")
	require.Error(t, err)
}
