package usecase

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// AccountStore 是帳戶儲存的介面
//
// 所有餘額異動都必須經過 CompareAndUpdate，這是唯一的原子操作，
// 也是整個系統的並發邊界。回傳的 Account 一律是值拷貝。
type AccountStore interface {
	// Create 建立帳戶，初始餘額為負時回傳 domain.ErrInvalidArgument
	Create(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error)
	// Get 取得帳戶快照，不存在時回傳 domain.ErrNotFound
	Get(ctx context.Context, accountID int64) (domain.Account, error)
	// CompareAndUpdate 只有在目前版本等於 expectedVersion 時才寫入新餘額並推進版本
	// 版本不符回傳 domain.ErrVersionConflict，且沒有任何副作用
	CompareAndUpdate(ctx context.Context, accountID int64, expectedVersion uint64, newBalance decimal.Decimal) (domain.Account, error)
}
