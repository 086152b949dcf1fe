package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account 帳戶快照
//
// 由 AccountStore 持有權威副本，對外一律回傳值拷貝。
// Version 是樂觀鎖的版本號 (每次成功異動 +1)，
// LastModified 保留給以時間戳做前置條件的舊客戶端。
type Account struct {
	ID           int64
	OwnerID      string
	Balance      decimal.Decimal
	Version      uint64
	LastModified time.Time
}

// NewAccount 建立一個新帳戶快照 (Version 從 1 開始)
func NewAccount(id int64, ownerID string, balance decimal.Decimal, now time.Time) Account {
	return Account{
		ID:           id,
		OwnerID:      ownerID,
		Balance:      balance,
		Version:      1,
		LastModified: now,
	}
}

// Advance 回傳套用新餘額後的下一個版本
// LastModified 只會前進，時鐘回撥時沿用舊值
func (a Account) Advance(balance decimal.Decimal, now time.Time) Account {
	next := a
	next.Balance = balance
	next.Version = a.Version + 1
	if now.After(a.LastModified) {
		next.LastModified = now
	}
	return next
}

// MaxScale 金額最多的小數位數 (與 accounts.balance 欄位 decimal(20,4) 一致)
const MaxScale = 4

// ValidateAmount 交易金額必須 > 0，小數不超過 MaxScale 位
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !withinScale(amount) {
		return ErrInvalidArgument
	}
	return nil
}

// ValidateBalance 餘額不得為負，小數不超過 MaxScale 位
func ValidateBalance(balance decimal.Decimal) error {
	if balance.IsNegative() || !withinScale(balance) {
		return ErrInvalidArgument
	}
	return nil
}

// withinScale 以數值判斷，"1.50000" 這類尾端補零仍視為合法
func withinScale(v decimal.Decimal) bool {
	return v.Equal(v.Truncate(MaxScale))
}
