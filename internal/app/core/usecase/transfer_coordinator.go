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

// TransferCoordinator 協調兩個帳戶之間的轉帳
//
// 轉帳由兩段獨立提交的操作組成 (來源提款、目的存款)，
// store 沒有跨帳戶的 rollback，因此第二段失敗時以補償 (存回來源) 還原。
// 補償失敗代表資金卡在中間，回傳 ErrInconsistent 並呼叫 Alerter。
type TransferCoordinator struct {
	accounts *AccountService
	alerter  Alerter
	logger   *zap.Logger
	metrics  metrics.Collector
}

// CoordinatorOption 定義 TransferCoordinator 的配置選項函數
type CoordinatorOption func(*TransferCoordinator)

// WithAlerter 設定告警方式 (預設為 LogAlerter)
func WithAlerter(a Alerter) CoordinatorOption {
	return func(c *TransferCoordinator) {
		if a != nil {
			c.alerter = a
		}
	}
}

// WithCoordinatorLogger 設定 logger
func WithCoordinatorLogger(l *zap.Logger) CoordinatorOption {
	return func(c *TransferCoordinator) {
		c.logger = logger.OrNop(l)
	}
}

// WithCoordinatorMetrics 設定 metrics collector
func WithCoordinatorMetrics(m metrics.Collector) CoordinatorOption {
	return func(c *TransferCoordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewTransferCoordinator 建立 TransferCoordinator
func NewTransferCoordinator(accounts *AccountService, opts ...CoordinatorOption) *TransferCoordinator {
	c := &TransferCoordinator{
		accounts: accounts,
		logger:   zap.NewNop(),
		metrics:  metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.alerter == nil {
		c.alerter = NewLogAlerter(c.logger, c.metrics)
	}
	c.logger = c.logger.Named("transfer")
	return c
}

// Transfer 從 sourceID 轉 amount 到 destinationID，全部成功或全部不生效
//
// 參數:
//
//	ctx: 上下文
//	sourceID: 來源帳戶
//	destinationID: 目的帳戶
//	amount: 金額 (必須 > 0)
//
// 回傳:
//
//	*domain.Transfer: 轉帳紀錄 (參數錯誤時為 nil)，State 為終止狀態
//	error: ErrInvalidArgument / ErrNotFound / ErrInsufficientFunds / ErrContention / ErrInconsistent
func (c *TransferCoordinator) Transfer(ctx context.Context, sourceID, destinationID int64, amount decimal.Decimal) (tran *domain.Transfer, err error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if sourceID == destinationID {
		return nil, fmt.Errorf("transfer from account %d to itself: %w", sourceID, domain.ErrInvalidArgument)
	}

	start := time.Now()
	tran = domain.NewTransfer(sourceID, destinationID, amount, start)
	log := c.logger.With(
		zap.Stringer("transfer_id", tran.ID),
		zap.Int64("from", sourceID),
		zap.Int64("to", destinationID),
		zap.Stringer("amount", amount),
	)

	scope := BeginScope(log)
	defer func() {
		if rbErr := scope.Rollback(ctx); rbErr != nil {
			c.advance(log, tran, domain.TransferInconsistent)
			err = errors.Join(err, rbErr)
			c.alerter.Alert(ctx, Incident{Transfer: *tran, Cause: err})
		} else if tran.State == domain.TransferCompensating {
			c.advance(log, tran, domain.TransferRolledBack)
		}
		c.metrics.RecordTransfer(tran.State.String(), time.Since(start))
		if err != nil {
			log.Warn("transfer not committed", zap.Stringer("state", tran.State), zap.Error(err))
			return
		}
		log.Info("transfer committed")
	}()

	// 1. 來源提款
	c.advance(log, tran, domain.TransferWithdrawPending)
	if _, err = c.accounts.Withdraw(ctx, sourceID, amount); err != nil {
		c.advance(log, tran, domain.TransferWithdrawFailed)
		return tran, err
	}
	c.advance(log, tran, domain.TransferWithdrawOK)
	scope.OnRollback("refund source", func(ctx context.Context) error {
		_, err := c.accounts.Refund(ctx, sourceID, amount)
		return err
	})

	// 2. 目的存款
	c.advance(log, tran, domain.TransferDepositPending)
	if _, err = c.accounts.Deposit(ctx, destinationID, amount); err != nil {
		c.advance(log, tran, domain.TransferDepositFailed)
		c.advance(log, tran, domain.TransferCompensating)
		return tran, err
	}
	c.advance(log, tran, domain.TransferDepositOK)

	// 3. 提交
	if err = scope.Commit(); err != nil {
		return tran, err
	}
	c.advance(log, tran, domain.TransferCommitted)
	return tran, nil
}

// advance 推進狀態；不合法的轉移只記錄日誌，不影響資金處理
func (c *TransferCoordinator) advance(log *zap.Logger, tran *domain.Transfer, next domain.TransferState) {
	if err := tran.Advance(next); err != nil {
		log.Error("transfer state machine violated", zap.Error(err))
	}
}
