package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// entry 單一帳戶，各自持有一把鎖
type entry struct {
	mu      sync.Mutex
	account domain.Account
}

// MutexAccountStore 是一個使用 Mutex 實現的帳戶儲存
//
// 結構:
//
//	accounts: 帳戶資料 Map，由 mu 保護 (只在新增帳戶時寫鎖)
//	entry.mu: 每個帳戶一把鎖，CompareAndUpdate 只鎖住單一帳戶
//	wal: Write-Ahead Log 實例 (nil 表示純記憶體)
type MutexAccountStore struct {
	mu       sync.RWMutex
	accounts map[int64]*entry
	nextID   int64
	wal      *wal.WAL
	now      func() time.Time
}

// Option 定義記憶體 store 的配置選項函數
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock 替換時間來源 (測試用)
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewMutexAccountStore 建立一個新的 MutexAccountStore 實例
//
// 參數:
//
//	seed: 初始帳戶資料 (例如從 MySQL 載入)，可為 nil
//	w: Write-Ahead Log 實例，可為 nil
//	opts: 可選配置
//
// 回傳:
//
//	*MutexAccountStore: 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexAccountStore(seed []domain.Account, w *wal.WAL, opts ...Option) (*MutexAccountStore, error) {
	store := &MutexAccountStore{
		accounts: make(map[int64]*entry, len(seed)),
		wal:      w,
		now:      newOptions(opts).now,
	}
	for _, a := range seed {
		store.restore(a)
	}
	if w != nil {
		if err := store.recoverFromWAL(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳戶狀態
// 只有 NewMutexAccountStore 呼叫，無需 Lock (單執行緒)
func (s *MutexAccountStore) recoverFromWAL() error {
	return replayWAL(s.wal, s.restore)
}

// restore 套用一筆已提交的狀態 (不寫入 WAL)，舊版本會被忽略
func (s *MutexAccountStore) restore(a domain.Account) {
	if e, ok := s.accounts[a.ID]; ok && e.account.Version >= a.Version {
		return
	}
	s.accounts[a.ID] = &entry{account: a}
	if a.ID > s.nextID {
		s.nextID = a.ID
	}
}

// Create 建立帳戶
//
// 參數:
//
//	ctx: 上下文
//	ownerID: 客戶識別
//	initialBalance: 初始餘額 (不得為負)
//
// 回傳:
//
//	domain.Account: 新帳戶快照
//	error: ErrInvalidArgument / ErrWALWriteFailed
func (s *MutexAccountStore) Create(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error) {
	if err := domain.ValidateBalance(initialBalance); err != nil {
		return domain.Account{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account := domain.NewAccount(s.nextID+1, ownerID, initialBalance, s.now())
	if err := appendWAL(s.wal, account); err != nil {
		return domain.Account{}, err
	}
	s.accounts[account.ID] = &entry{account: account}
	s.nextID = account.ID
	return account, nil
}

// Get 取得帳戶快照
func (s *MutexAccountStore) Get(ctx context.Context, accountID int64) (domain.Account, error) {
	e, ok := s.lookup(accountID)
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account, nil
}

// CompareAndUpdate 條件寫入
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//	expectedVersion: 呼叫端讀到的版本
//	newBalance: 新餘額 (不得為負)
//
// 回傳:
//
//	domain.Account: 寫入後的快照
//	error: ErrNotFound / ErrVersionConflict / ErrInvalidArgument / ErrWALWriteFailed
func (s *MutexAccountStore) CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error) {
	if err := domain.ValidateBalance(newBalance); err != nil {
		return domain.Account{}, err
	}
	e, ok := s.lookup(accountID)
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.account.Version != expectedVersion {
		return domain.Account{}, domain.ErrVersionConflict
	}

	next := e.account.Advance(newBalance, s.now())
	// 1. 寫入 WAL (Critical Path)，落盤後才更新記憶體
	if err := appendWAL(s.wal, next); err != nil {
		return domain.Account{}, err
	}
	// 2. 更新記憶體
	e.account = next
	return next, nil
}

// LoadAllAccounts 回傳所有帳戶快照
func (s *MutexAccountStore) LoadAllAccounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]domain.Account, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.account)
		e.mu.Unlock()
	}
	return out, nil
}

func (s *MutexAccountStore) lookup(accountID int64) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.accounts[accountID]
	return e, ok
}

var _ usecase.AccountStore = (*MutexAccountStore)(nil)
