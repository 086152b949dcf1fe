package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	"github.com/JoeShih716/go-bank-ledger/pkg/metrics"
)

const (
	// DefaultMaxAttempts 存提款在版本衝突時的最大嘗試次數
	DefaultMaxAttempts = 5

	// DefaultRefundAttempts 轉帳補償 (退款) 的最大嘗試次數
	// 退款失敗會讓資金卡在中間，因此上限遠大於一般存提款
	DefaultRefundAttempts = 1000

	// PreconditionResolution 以時間戳比對前置條件時的精度 (HTTP 日期只到秒)
	PreconditionResolution = time.Second
)

// AccountService 單一帳戶的業務操作
//
// 存提款是建立在 AccountStore.CompareAndUpdate 之上的「讀取-計算-條件寫入」迴圈，
// 版本衝突時以新快照重試，次數有上限。
type AccountService struct {
	store          AccountStore
	maxAttempts    int
	refundAttempts int
	logger         *zap.Logger
	metrics        metrics.Collector
}

// ServiceOption 定義 AccountService 的配置選項函數
type ServiceOption func(*AccountService)

// WithMaxAttempts 設定版本衝突時的最大嘗試次數 (<= 0 時忽略)
func WithMaxAttempts(n int) ServiceOption {
	return func(s *AccountService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithRefundAttempts 設定退款在版本衝突時的最大嘗試次數 (<= 0 時忽略)
func WithRefundAttempts(n int) ServiceOption {
	return func(s *AccountService) {
		if n > 0 {
			s.refundAttempts = n
		}
	}
}

// WithLogger 設定 logger
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *AccountService) {
		s.logger = logger.OrNop(l)
	}
}

// WithMetrics 設定 metrics collector
func WithMetrics(m metrics.Collector) ServiceOption {
	return func(s *AccountService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewAccountService 建立 AccountService
//
// 參數:
//
//	store: 帳戶儲存
//	opts: 可選配置
//
// 回傳:
//
//	*AccountService: 實例
func NewAccountService(store AccountStore, opts ...ServiceOption) *AccountService {
	s := &AccountService{
		store:          store,
		maxAttempts:    DefaultMaxAttempts,
		refundAttempts: DefaultRefundAttempts,
		logger:         zap.NewNop(),
		metrics:        metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("account")
	return s
}

// CreateAccount 建立帳戶
func (s *AccountService) CreateAccount(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error) {
	start := time.Now()
	var acc domain.Account
	err := domain.ValidateBalance(initialBalance)
	if err == nil {
		acc, err = s.store.Create(ctx, ownerID, initialBalance)
	}
	s.finish("create", acc.ID, initialBalance, start, acc, err, zap.String("owner_id", ownerID))
	return acc, err
}

// GetAccount 取得帳戶快照
func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (domain.Account, error) {
	return s.store.Get(ctx, accountID)
}

// GetBalance 取得餘額與最後異動時間
//
// 回傳:
//
//	decimal.Decimal: 餘額
//	time.Time: 最後異動時間
//	error: 帳戶不存在時回傳 domain.ErrNotFound
func (s *AccountService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, time.Time, error) {
	acc, err := s.store.Get(ctx, accountID)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return acc.Balance, acc.LastModified, nil
}

// Deposit 存款
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//	amount: 金額 (必須 > 0)
//
// 回傳:
//
//	domain.Account: 存款後的快照
//	error: ErrInvalidArgument / ErrNotFound / ErrContention
func (s *AccountService) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	start := time.Now()
	var acc domain.Account
	err := domain.ValidateAmount(amount)
	if err == nil {
		acc, err = s.mutate(ctx, "deposit", accountID, s.maxAttempts, func(cur domain.Account) (decimal.Decimal, error) {
			return cur.Balance.Add(amount), nil
		})
	}
	s.finish("deposit", accountID, amount, start, acc, err)
	return acc, err
}

// Withdraw 提款
//
// 餘額檢查一律以本次嘗試讀到的最新快照為準，競爭下也不會透支。
//
// 回傳:
//
//	domain.Account: 提款後的快照
//	error: ErrInvalidArgument / ErrNotFound / ErrInsufficientFunds / ErrContention
func (s *AccountService) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	start := time.Now()
	var acc domain.Account
	err := domain.ValidateAmount(amount)
	if err == nil {
		acc, err = s.mutate(ctx, "withdraw", accountID, s.maxAttempts, func(cur domain.Account) (decimal.Decimal, error) {
			next := cur.Balance.Sub(amount)
			if next.IsNegative() {
				return decimal.Zero, domain.ErrInsufficientFunds
			}
			return next, nil
		})
	}
	s.finish("withdraw", accountID, amount, start, acc, err)
	return acc, err
}

// Refund 補償用的存款
//
// 與 Deposit 相同，但版本衝突的重試上限是 refundAttempts，
// 只有非暫時性的錯誤 (或上限用盡) 才會讓補償失敗。
func (s *AccountService) Refund(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	start := time.Now()
	var acc domain.Account
	err := domain.ValidateAmount(amount)
	if err == nil {
		acc, err = s.mutate(ctx, "refund", accountID, s.refundAttempts, func(cur domain.Account) (decimal.Decimal, error) {
			return cur.Balance.Add(amount), nil
		})
	}
	s.finish("refund", accountID, amount, start, acc, err)
	return acc, err
}

// SetBalance 以「最後異動時間」為前置條件直接設定餘額
//
// 呼叫端的意圖是基於它看過的某個狀態計算出來的，所以衝突時不在內部重試，
// 直接回傳 ErrPreconditionFailed 讓呼叫端重新讀取。
//
// 參數:
//
//	ifUnmodifiedSince: 呼叫端上次看到的最後異動時間 (以秒為精度比較)
func (s *AccountService) SetBalance(ctx context.Context, accountID int64, amount decimal.Decimal, ifUnmodifiedSince time.Time) (domain.Account, error) {
	start := time.Now()
	acc, err := s.setBalance(ctx, accountID, amount, func(cur domain.Account) bool {
		stored := cur.LastModified.Truncate(PreconditionResolution)
		return !stored.After(ifUnmodifiedSince.Truncate(PreconditionResolution))
	})
	s.finish("set_balance", accountID, amount, start, acc, err)
	return acc, err
}

// SetBalanceAtVersion 以版本號為前置條件直接設定餘額
// 版本號沒有時間精度的問題，不符一律回傳 ErrPreconditionFailed
func (s *AccountService) SetBalanceAtVersion(ctx context.Context, accountID int64, amount decimal.Decimal, version uint64) (domain.Account, error) {
	start := time.Now()
	acc, err := s.setBalance(ctx, accountID, amount, func(cur domain.Account) bool {
		return cur.Version == version
	})
	s.finish("set_balance", accountID, amount, start, acc, err)
	return acc, err
}

func (s *AccountService) setBalance(ctx context.Context, accountID int64, amount decimal.Decimal, precondition func(domain.Account) bool) (domain.Account, error) {
	if err := domain.ValidateBalance(amount); err != nil {
		return domain.Account{}, err
	}
	cur, err := s.store.Get(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if !precondition(cur) {
		return domain.Account{}, domain.ErrPreconditionFailed
	}
	// 以 store 自己的版本做條件寫入，檢查與寫入之間若有其他寫入則視為前置條件失敗
	updated, err := s.store.CompareAndUpdate(ctx, accountID, cur.Version, amount)
	if errors.Is(err, domain.ErrVersionConflict) {
		s.metrics.RecordVersionConflict("set_balance")
		return domain.Account{}, domain.ErrPreconditionFailed
	}
	return updated, err
}

// mutate 讀取-計算-條件寫入，版本衝突時重試
func (s *AccountService) mutate(ctx context.Context, op string, accountID int64, maxAttempts int, apply func(cur domain.Account) (decimal.Decimal, error)) (domain.Account, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		cur, err := s.store.Get(ctx, accountID)
		if err != nil {
			return domain.Account{}, err
		}
		next, err := apply(cur)
		if err != nil {
			return domain.Account{}, err
		}
		updated, err := s.store.CompareAndUpdate(ctx, accountID, cur.Version, next)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) {
			return domain.Account{}, err
		}
		s.metrics.RecordVersionConflict(op)
		s.logger.Debug("version conflict, retrying",
			zap.String("op", op),
			zap.Int64("account_id", accountID),
			zap.Uint64("expected_version", cur.Version),
			zap.Int("attempt", attempt),
		)
	}
	return domain.Account{}, fmt.Errorf("%s account %d after %d attempts: %w", op, accountID, maxAttempts, domain.ErrContention)
}

// finish 記錄 metrics 與日誌
func (s *AccountService) finish(op string, accountID int64, amount decimal.Decimal, start time.Time, acc domain.Account, err error, extra ...zap.Field) {
	outcome := Outcome(err)
	s.metrics.RecordOperation(op, outcome, time.Since(start))

	fields := append([]zap.Field{
		zap.String("op", op),
		zap.Int64("account_id", accountID),
		zap.Stringer("amount", amount),
		zap.String("outcome", outcome),
	}, extra...)
	switch {
	case err == nil:
		s.logger.Info("account updated", append(fields,
			zap.Stringer("balance", acc.Balance),
			zap.Uint64("version", acc.Version),
		)...)
	case outcome == OutcomeError:
		s.logger.Error("account operation failed", append(fields, zap.Error(err))...)
	default:
		s.logger.Warn("account operation rejected", append(fields, zap.Error(err))...)
	}
}
