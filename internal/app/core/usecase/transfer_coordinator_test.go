package usecase_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

type alertSpy struct {
	mu        sync.Mutex
	incidents []usecase.Incident
}

func (s *alertSpy) Alert(_ context.Context, incident usecase.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, incident)
}

func balanceOf(t *testing.T, svc *usecase.AccountService, id int64) decimal.Decimal {
	t.Helper()
	b, _, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestTransferCommits(t *testing.T) {
	ctx := context.Background()
	svc := usecase.NewAccountService(newMemoryStore(t))
	coordinator := usecase.NewTransferCoordinator(svc)
	a := mustCreate(t, svc, 70)
	b := mustCreate(t, svc, 0)

	tran, err := coordinator.Transfer(ctx, a.ID, b.ID, d(50))
	require.NoError(t, err)
	assert.Equal(t, domain.TransferCommitted, tran.State)
	assert.True(t, balanceOf(t, svc, a.ID).Equal(d(20)))
	assert.True(t, balanceOf(t, svc, b.ID).Equal(d(50)))
}

func TestTransferRejectedBeforeAnyWrite(t *testing.T) {
	ctx := context.Background()
	svc := usecase.NewAccountService(newMemoryStore(t))
	coordinator := usecase.NewTransferCoordinator(svc)
	a := mustCreate(t, svc, 20)
	b := mustCreate(t, svc, 0)

	tran, err := coordinator.Transfer(ctx, a.ID, b.ID, d(50))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.TransferWithdrawFailed, tran.State)

	_, err = coordinator.Transfer(ctx, a.ID, a.ID, d(1))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = coordinator.Transfer(ctx, a.ID, b.ID, d(0))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	tran, err = coordinator.Transfer(ctx, 404, b.ID, d(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.TransferWithdrawFailed, tran.State)

	acc, err := svc.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, acc)
}

func TestTransferToMissingAccountRollsBack(t *testing.T) {
	ctx := context.Background()
	svc := usecase.NewAccountService(newMemoryStore(t))
	spy := &alertSpy{}
	coordinator := usecase.NewTransferCoordinator(svc, usecase.WithAlerter(spy))
	a := mustCreate(t, svc, 100)

	tran, err := coordinator.Transfer(ctx, a.ID, 404, d(50))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrInconsistent)
	assert.Equal(t, domain.TransferRolledBack, tran.State)
	assert.True(t, balanceOf(t, svc, a.ID).Equal(d(100)))
	assert.Empty(t, spy.incidents)
}

func TestTransferRollsBackOnCanceledContext(t *testing.T) {
	inner := newMemoryStore(t)
	store := newFailingStore(inner)
	svc := usecase.NewAccountService(store)
	coordinator := usecase.NewTransferCoordinator(svc)
	a := mustCreate(t, svc, 100)
	b := mustCreate(t, svc, 0)
	store.FailAfter(b.ID, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tran, err := coordinator.Transfer(ctx, a.ID, b.ID, d(10))
	assert.ErrorIs(t, err, errDiskOnFire)
	assert.Equal(t, domain.TransferRolledBack, tran.State)
	assert.True(t, balanceOf(t, svc, a.ID).Equal(d(100)))
}

func TestTransferCompensationFailureIsInconsistent(t *testing.T) {
	ctx := context.Background()
	inner := newMemoryStore(t)
	store := newFailingStore(inner)
	svc := usecase.NewAccountService(store)
	spy := &alertSpy{}
	coordinator := usecase.NewTransferCoordinator(svc, usecase.WithAlerter(spy))
	a := mustCreate(t, svc, 100)
	b := mustCreate(t, svc, 0)

	// 來源提款成功後不能再寫入 (退款失敗)，目的帳戶完全不能寫入
	store.FailAfter(a.ID, 1)
	store.FailAfter(b.ID, 0)

	tran, err := coordinator.Transfer(ctx, a.ID, b.ID, d(30))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInconsistent)
	assert.ErrorIs(t, err, errDiskOnFire)
	assert.Equal(t, usecase.OutcomeInconsistent, usecase.Outcome(err))
	assert.Equal(t, domain.TransferInconsistent, tran.State)

	require.Len(t, spy.incidents, 1)
	incident := spy.incidents[0]
	assert.Equal(t, tran.ID, incident.Transfer.ID)
	assert.Equal(t, a.ID, incident.Transfer.From)
	assert.True(t, incident.Transfer.Amount.Equal(d(30)))
	assert.ErrorIs(t, incident.Cause, domain.ErrInconsistent)

	// 資金停在中間：來源已扣，目的未入帳
	assert.True(t, balanceOf(t, svc, a.ID).Equal(d(70)))
	assert.True(t, balanceOf(t, svc, b.ID).IsZero())
}

func TestTransferRefundOutlastsContention(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{AccountStore: newMemoryStore(t)}
	svc := usecase.NewAccountService(store)
	spy := &alertSpy{}
	coordinator := usecase.NewTransferCoordinator(svc, usecase.WithAlerter(spy))
	a := mustCreate(t, svc, 100)

	// 提款之後，來源帳戶每次寫入前都被搶先，次數遠超過一般存款的重試上限
	const races = 4 * usecase.DefaultMaxAttempts
	store.Race(a.ID, 1, races)

	tran, err := coordinator.Transfer(ctx, a.ID, 404, d(50))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrInconsistent)
	assert.NotErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, domain.TransferRolledBack, tran.State)
	assert.Empty(t, spy.incidents)

	// 50 全數退回，加上競爭寫入的 races 筆存款
	assert.True(t, balanceOf(t, svc, a.ID).Equal(d(100+races)), balanceOf(t, svc, a.ID).String())
}

func TestTransferRefundBudgetExhaustedIsInconsistent(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{AccountStore: newMemoryStore(t)}
	svc := usecase.NewAccountService(store, usecase.WithRefundAttempts(3))
	spy := &alertSpy{}
	coordinator := usecase.NewTransferCoordinator(svc, usecase.WithAlerter(spy))
	a := mustCreate(t, svc, 100)
	store.Race(a.ID, 1, 10)

	tran, err := coordinator.Transfer(ctx, a.ID, 404, d(50))
	assert.ErrorIs(t, err, domain.ErrInconsistent)
	assert.ErrorIs(t, err, domain.ErrContention)
	assert.Equal(t, domain.TransferInconsistent, tran.State)
	require.Len(t, spy.incidents, 1)
	assert.True(t, balanceOf(t, svc, a.ID).Equal(d(53)))
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	ctx := context.Background()
	const (
		accounts  = 5
		transfers = 300
	)
	svc := usecase.NewAccountService(newMemoryStore(t), usecase.WithMaxAttempts(2*transfers+1))
	coordinator := usecase.NewTransferCoordinator(svc)

	ids := make([]int64, accounts)
	for i := range ids {
		ids[i] = mustCreate(t, svc, 100).ID
	}

	var wg sync.WaitGroup
	wg.Add(transfers)
	for i := 0; i < transfers; i++ {
		r := rand.New(rand.NewSource(int64(i)))
		fi := r.Intn(accounts)
		from, to := ids[fi], ids[(fi+1+r.Intn(accounts-1))%accounts]
		amount := d(int64(r.Intn(40) + 1))
		go func() {
			defer wg.Done()
			tran, err := coordinator.Transfer(ctx, from, to, amount)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
				assert.Equal(t, domain.TransferWithdrawFailed, tran.State)
				return
			}
			assert.Equal(t, domain.TransferCommitted, tran.State)
		}()
	}
	wg.Wait()

	total := decimal.Zero
	for _, id := range ids {
		b := balanceOf(t, svc, id)
		assert.False(t, b.IsNegative())
		total = total.Add(b)
	}
	assert.True(t, total.Equal(d(accounts*100)), total.String())
}

func TestCoreUseCaseDelegates(t *testing.T) {
	ctx := context.Background()
	svc := usecase.NewAccountService(newMemoryStore(t))
	core := usecase.NewCoreUseCase(svc, usecase.NewTransferCoordinator(svc))

	a, err := core.CreateAccount(ctx, "a", d(10))
	require.NoError(t, err)
	b, err := core.CreateAccount(ctx, "b", d(0))
	require.NoError(t, err)

	_, err = core.Transfer(ctx, a.ID, b.ID, d(4))
	require.NoError(t, err)
	balance, _, err := core.GetBalance(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(d(4)))
}
