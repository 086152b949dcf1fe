package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

// ErrStoreClosed 事件迴圈已停止
var ErrStoreClosed = errors.New("account store closed")

type requestKind uint8

const (
	requestCreate requestKind = iota
	requestGet
	requestCompareAndUpdate
	requestSnapshot
)

type storeResult struct {
	account  domain.Account
	accounts []domain.Account
	err      error
}

// storeRequest 請求包裝 channel，讓呼叫端可以等待結果
type storeRequest struct {
	kind            requestKind
	accountID       int64
	expectedVersion uint64
	ownerID         string
	balance         decimal.Decimal
	result          chan storeResult
}

// LMAXAccountStore 單一寫入者的帳戶儲存
//
// 所有請求排進同一條輸送帶，由一個 goroutine 依序處理，帳戶 Map 不需要任何鎖。
// 處理順序即提交順序：先寫 WAL 再更新 Map，再回傳結果。
//
// PostRequest(等待) -> Channel -> Run Loop -> WAL -> Map Update -> Result Channel
type LMAXAccountStore struct {
	accounts map[int64]domain.Account
	nextID   int64
	// Write-Ahead Logging
	wal *wal.WAL
	now func() time.Time
	// 輸送帶 負責接收請求
	requests chan *storeRequest
	// Pool 減少 GC 壓力
	requestPool sync.Pool
	stopped     chan struct{}
}

// NewLMAXAccountStore 建立一個新的 LMAXAccountStore 實例，須呼叫 Start 後才能使用
//
// 參數:
//
//	seed: 初始帳戶資料，可為 nil
//	w: Write-Ahead Log 實例，可為 nil
//	opts: 可選配置 (與 MutexAccountStore 共用)
//
// 回傳:
//
//	*LMAXAccountStore: 實例
//	error: WAL 恢復失敗
func NewLMAXAccountStore(seed []domain.Account, w *wal.WAL, opts ...Option) (*LMAXAccountStore, error) {
	store := &LMAXAccountStore{
		accounts: make(map[int64]domain.Account, len(seed)),
		wal:      w,
		now:      newOptions(opts).now,
		requests: make(chan *storeRequest, 1024), // Buffer 1024
		requestPool: sync.Pool{
			New: func() any {
				return &storeRequest{result: make(chan storeResult, 1)}
			},
		},
		stopped: make(chan struct{}),
	}
	for _, a := range seed {
		store.restore(a)
	}
	// 在啟動前先恢復資料
	if w != nil {
		if err := replayWAL(w, store.restore); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// restore 只在 NewLMAXAccountStore 裡跑 (單執行緒)
func (l *LMAXAccountStore) restore(a domain.Account) {
	if cur, ok := l.accounts[a.ID]; ok && cur.Version >= a.Version {
		return
	}
	l.accounts[a.ID] = a
	if a.ID > l.nextID {
		l.nextID = a.ID
	}
}

// Start 啟動核心引擎 (非同步)，ctx 結束時處理完輸送帶上剩下的請求後停止
func (l *LMAXAccountStore) Start(ctx context.Context) {
	go l.run(ctx)
}

// Done 事件迴圈停止後關閉
func (l *LMAXAccountStore) Done() <-chan struct{} {
	return l.stopped
}

func (l *LMAXAccountStore) run(ctx context.Context) {
	defer close(l.stopped)
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的請求處理完
			l.drain()
			return
		case req := <-l.requests:
			l.process(req)
		}
	}
}

func (l *LMAXAccountStore) drain() {
	for {
		select {
		case req := <-l.requests:
			l.process(req)
		default:
			return
		}
	}
}

// process 處理單筆請求並回傳結果
func (l *LMAXAccountStore) process(req *storeRequest) {
	var res storeResult
	switch req.kind {
	case requestCreate:
		res.account, res.err = l.handleCreate(req.ownerID, req.balance)
	case requestGet:
		res.account, res.err = l.handleGet(req.accountID)
	case requestCompareAndUpdate:
		res.account, res.err = l.handleCompareAndUpdate(req.accountID, req.expectedVersion, req.balance)
	case requestSnapshot:
		res.accounts = make([]domain.Account, 0, len(l.accounts))
		for _, a := range l.accounts {
			res.accounts = append(res.accounts, a)
		}
	}
	req.result <- res
}

func (l *LMAXAccountStore) handleCreate(ownerID string, balance decimal.Decimal) (domain.Account, error) {
	account := domain.NewAccount(l.nextID+1, ownerID, balance, l.now())
	// 1. 寫入 WAL (Critical Path)
	if err := appendWAL(l.wal, account); err != nil {
		return domain.Account{}, err
	}
	// 2. 更新 Map
	l.accounts[account.ID] = account
	l.nextID = account.ID
	return account, nil
}

func (l *LMAXAccountStore) handleGet(accountID int64) (domain.Account, error) {
	account, ok := l.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

func (l *LMAXAccountStore) handleCompareAndUpdate(accountID int64, expectedVersion uint64, balance decimal.Decimal) (domain.Account, error) {
	account, ok := l.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	if account.Version != expectedVersion {
		return domain.Account{}, domain.ErrVersionConflict
	}
	next := account.Advance(balance, l.now())
	if err := appendWAL(l.wal, next); err != nil {
		return domain.Account{}, err
	}
	l.accounts[accountID] = next
	return next, nil
}

// post 放入輸送帶並等待結果
func (l *LMAXAccountStore) post(ctx context.Context, fill func(req *storeRequest)) storeResult {
	if err := ctx.Err(); err != nil {
		return storeResult{err: err}
	}
	// 1. 放入輸送帶 (使用 sync.Pool 減少 GC)
	req := l.requestPool.Get().(*storeRequest)
	fill(req)

	select {
	case l.requests <- req:
	case <-ctx.Done():
		l.requestPool.Put(req)
		return storeResult{err: ctx.Err()}
	case <-l.stopped:
		l.requestPool.Put(req)
		return storeResult{err: ErrStoreClosed}
	}

	// 2. 已進入輸送帶就一定要等到結果，避免呼叫端以為沒寫入但其實已提交
	select {
	case res := <-req.result:
		l.requestPool.Put(req)
		return res
	case <-l.stopped:
		select {
		case res := <-req.result:
			l.requestPool.Put(req)
			return res
		default:
			// 停止後才排進來的請求不會被處理，req 不放回 Pool
			return storeResult{err: ErrStoreClosed}
		}
	}
}

// Create 建立帳戶
func (l *LMAXAccountStore) Create(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error) {
	if err := domain.ValidateBalance(initialBalance); err != nil {
		return domain.Account{}, err
	}
	res := l.post(ctx, func(req *storeRequest) {
		req.kind = requestCreate
		req.ownerID = ownerID
		req.balance = initialBalance
	})
	return res.account, res.err
}

// Get 取得帳戶快照
func (l *LMAXAccountStore) Get(ctx context.Context, accountID int64) (domain.Account, error) {
	res := l.post(ctx, func(req *storeRequest) {
		req.kind = requestGet
		req.accountID = accountID
	})
	return res.account, res.err
}

// CompareAndUpdate 條件寫入
//
// 回傳:
//
//	domain.Account: 寫入後的快照
//	error: ErrNotFound / ErrVersionConflict / ErrInvalidArgument / ErrWALWriteFailed / ErrStoreClosed
func (l *LMAXAccountStore) CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error) {
	if err := domain.ValidateBalance(newBalance); err != nil {
		return domain.Account{}, err
	}
	res := l.post(ctx, func(req *storeRequest) {
		req.kind = requestCompareAndUpdate
		req.accountID = accountID
		req.expectedVersion = expectedVersion
		req.balance = newBalance
	})
	return res.account, res.err
}

// LoadAllAccounts 回傳所有帳戶快照
func (l *LMAXAccountStore) LoadAllAccounts(ctx context.Context) ([]domain.Account, error) {
	res := l.post(ctx, func(req *storeRequest) {
		req.kind = requestSnapshot
	})
	return res.accounts, res.err
}

var _ usecase.AccountStore = (*LMAXAccountStore)(nil)
