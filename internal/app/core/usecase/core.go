package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Ledger 是核心對外 (gRPC / HTTP adapter) 暴露的操作
type Ledger interface {
	CreateAccount(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error)
	GetAccount(ctx context.Context, accountID int64) (domain.Account, error)
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, time.Time, error)
	Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)
	Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error)
	SetBalance(ctx context.Context, accountID int64, amount decimal.Decimal, ifUnmodifiedSince time.Time) (domain.Account, error)
	SetBalanceAtVersion(ctx context.Context, accountID int64, amount decimal.Decimal, version uint64) (domain.Account, error)
	Transfer(ctx context.Context, sourceID, destinationID int64, amount decimal.Decimal) (*domain.Transfer, error)
}

// CoreUseCase 是核心業務邏輯層
// 單一帳戶操作交給 AccountService，跨帳戶操作交給 TransferCoordinator
type CoreUseCase struct {
	*AccountService
	transfers *TransferCoordinator
}

func NewCoreUseCase(accounts *AccountService, transfers *TransferCoordinator) *CoreUseCase {
	return &CoreUseCase{
		AccountService: accounts,
		transfers:      transfers,
	}
}

// Transfer 轉帳
func (c *CoreUseCase) Transfer(ctx context.Context, sourceID, destinationID int64, amount decimal.Decimal) (*domain.Transfer, error) {
	return c.transfers.Transfer(ctx, sourceID, destinationID, amount)
}

var _ Ledger = (*CoreUseCase)(nil)

// 操作結果標籤 (metrics / log)
const (
	OutcomeOK                 = "ok"
	OutcomeInvalidArgument    = "invalid_argument"
	OutcomeNotFound           = "not_found"
	OutcomeInsufficientFunds  = "insufficient_funds"
	OutcomePreconditionFailed = "precondition_failed"
	OutcomeContention         = "contention"
	OutcomeInconsistent       = "inconsistent"
	OutcomeError              = "error"
)

// Outcome 將錯誤歸類為結果標籤，ErrInconsistent 優先
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrInconsistent):
		return OutcomeInconsistent
	case errors.Is(err, domain.ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return OutcomeInsufficientFunds
	case errors.Is(err, domain.ErrPreconditionFailed):
		return OutcomePreconditionFailed
	case errors.Is(err, domain.ErrContention):
		return OutcomeContention
	default:
		return OutcomeError
	}
}
