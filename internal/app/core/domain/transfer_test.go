package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferAdvance(t *testing.T) {
	t.Run("committed path", func(t *testing.T) {
		tr := NewTransfer(1, 2, decimal.NewFromInt(10), time.Now())
		for _, s := range []TransferState{
			TransferWithdrawPending, TransferWithdrawOK, TransferDepositPending,
			TransferDepositOK, TransferCommitted,
		} {
			require.NoError(t, tr.Advance(s))
		}
		assert.True(t, tr.State.Terminal())
		assert.Equal(t, "committed", tr.State.String())
	})

	t.Run("compensation path", func(t *testing.T) {
		tr := NewTransfer(1, 2, decimal.NewFromInt(10), time.Now())
		for _, s := range []TransferState{
			TransferWithdrawPending, TransferWithdrawOK, TransferDepositPending,
			TransferDepositFailed, TransferCompensating, TransferInconsistent,
		} {
			require.NoError(t, tr.Advance(s))
		}
		assert.True(t, tr.State.Terminal())
	})

	t.Run("illegal transition", func(t *testing.T) {
		tr := NewTransfer(1, 2, decimal.NewFromInt(10), time.Now())
		assert.Error(t, tr.Advance(TransferCommitted))
		assert.Equal(t, TransferStarted, tr.State)
	})
}

func TestAccountAdvance(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAccount(1, "cf", decimal.NewFromInt(100), now)

	next := a.Advance(decimal.NewFromInt(70), now.Add(time.Second))
	assert.Equal(t, uint64(2), next.Version)
	assert.True(t, next.Balance.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, now.Add(time.Second), next.LastModified)

	// 時鐘回撥時不得倒退
	back := next.Advance(decimal.NewFromInt(60), now.Add(-time.Hour))
	assert.Equal(t, next.LastModified, back.LastModified)
	assert.Equal(t, uint64(3), back.Version)

	// 原快照不受影響
	assert.True(t, a.Balance.Equal(decimal.NewFromInt(100)))
}

func TestValidateAmount(t *testing.T) {
	assert.ErrorIs(t, ValidateAmount(decimal.Zero), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateAmount(decimal.NewFromInt(-1)), ErrInvalidArgument)
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.01")))
	assert.NoError(t, ValidateBalance(decimal.Zero))
	assert.ErrorIs(t, ValidateBalance(decimal.NewFromInt(-1)), ErrInvalidArgument)
}

func TestValidateScale(t *testing.T) {
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("0.0001")))
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("1.50000")))
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("0.00001")), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateAmount(decimal.RequireFromString("10.12345")), ErrInvalidArgument)
	assert.NoError(t, ValidateBalance(decimal.RequireFromString("70.2500")))
	assert.ErrorIs(t, ValidateBalance(decimal.RequireFromString("70.25001")), ErrInvalidArgument)
}
