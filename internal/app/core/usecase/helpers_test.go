package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

var errDiskOnFire = errors.New("disk on fire")

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newMemoryStore(t *testing.T, opts ...memory.Option) *memory.MutexAccountStore {
	t.Helper()
	s, err := memory.NewMutexAccountStore(nil, nil, opts...)
	require.NoError(t, err)
	return s
}

func mustCreate(t *testing.T, svc *usecase.AccountService, balance int64) domain.Account {
	t.Helper()
	acc, err := svc.CreateAccount(context.Background(), "owner", d(balance))
	require.NoError(t, err)
	return acc
}

// failingStore 包裝真正的 store，讓指定帳戶在成功寫入 n 次之後開始失敗
type failingStore struct {
	usecase.AccountStore

	mu        sync.Mutex
	failAfter map[int64]int
	writes    map[int64]int
}

func newFailingStore(inner usecase.AccountStore) *failingStore {
	return &failingStore{
		AccountStore: inner,
		failAfter:    make(map[int64]int),
		writes:       make(map[int64]int),
	}
}

func (s *failingStore) FailAfter(accountID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter[accountID] = n
}

func (s *failingStore) CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	limit, ok := s.failAfter[accountID]
	if ok && s.writes[accountID] >= limit {
		s.mu.Unlock()
		return domain.Account{}, errDiskOnFire
	}
	s.mu.Unlock()

	acc, err := s.AccountStore.CompareAndUpdate(ctx, accountID, expectedVersion, newBalance)
	if err == nil {
		s.mu.Lock()
		s.writes[accountID]++
		s.mu.Unlock()
	}
	return acc, err
}

// conflictingStore 前 conflicts 次 CompareAndUpdate 一律回傳版本衝突 (負數表示永遠衝突)
type conflictingStore struct {
	usecase.AccountStore

	mu        sync.Mutex
	conflicts int
	calls     int
}

func (s *conflictingStore) CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error) {
	s.mu.Lock()
	s.calls++
	conflict := s.conflicts < 0 || s.calls <= s.conflicts
	s.mu.Unlock()
	if conflict {
		return domain.Account{}, domain.ErrVersionConflict
	}
	return s.AccountStore.CompareAndUpdate(ctx, accountID, expectedVersion, newBalance)
}

func (s *conflictingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// racingStore 讓指定帳戶在成功寫入 skip 次之後，接下來 races 次 CompareAndUpdate
// 之前都先有一筆競爭的存款搶先寫入，呼叫端手上的版本因此過期
type racingStore struct {
	usecase.AccountStore

	mu        sync.Mutex
	accountID int64
	skip      int
	races     int
	writes    int
}

func (s *racingStore) Race(accountID int64, skip, races int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID, s.skip, s.races = accountID, skip, races
}

func (s *racingStore) CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error) {
	if accountID == s.accountID {
		s.mu.Lock()
		race := s.writes >= s.skip && s.races > 0
		if race {
			s.races--
		}
		s.mu.Unlock()
		if race {
			cur, err := s.AccountStore.Get(ctx, accountID)
			if err != nil {
				return domain.Account{}, err
			}
			if _, err := s.AccountStore.CompareAndUpdate(ctx, accountID, cur.Version, cur.Balance.Add(d(1))); err != nil {
				return domain.Account{}, err
			}
		}
	}

	acc, err := s.AccountStore.CompareAndUpdate(ctx, accountID, expectedVersion, newBalance)
	if err == nil && accountID == s.accountID {
		s.mu.Lock()
		s.writes++
		s.mu.Unlock()
	}
	return acc, err
}
