package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferState 轉帳狀態
// 為了節省記憶體，使用 uint8
type TransferState uint8

const (
	TransferStarted TransferState = iota
	TransferWithdrawPending
	TransferWithdrawFailed
	TransferWithdrawOK
	TransferDepositPending
	TransferDepositOK
	TransferCommitted
	TransferDepositFailed
	TransferCompensating
	TransferRolledBack
	TransferInconsistent
)

var transferStateNames = [...]string{
	TransferStarted:         "started",
	TransferWithdrawPending: "withdraw_pending",
	TransferWithdrawFailed:  "withdraw_failed",
	TransferWithdrawOK:      "withdraw_ok",
	TransferDepositPending:  "deposit_pending",
	TransferDepositOK:       "deposit_ok",
	TransferCommitted:       "committed",
	TransferDepositFailed:   "deposit_failed",
	TransferCompensating:    "compensating",
	TransferRolledBack:      "rolled_back",
	TransferInconsistent:    "inconsistent",
}

func (s TransferState) String() string {
	if int(s) < len(transferStateNames) {
		return transferStateNames[s]
	}
	return fmt.Sprintf("TransferState(%d)", s)
}

// Terminal 是否為終止狀態
func (s TransferState) Terminal() bool {
	switch s {
	case TransferWithdrawFailed, TransferCommitted, TransferRolledBack, TransferInconsistent:
		return true
	}
	return false
}

// transferTransitions 合法的狀態轉移
var transferTransitions = map[TransferState][]TransferState{
	TransferStarted:         {TransferWithdrawPending},
	TransferWithdrawPending: {TransferWithdrawFailed, TransferWithdrawOK},
	TransferWithdrawOK:      {TransferDepositPending},
	TransferDepositPending:  {TransferDepositOK, TransferDepositFailed},
	TransferDepositOK:       {TransferCommitted},
	TransferDepositFailed:   {TransferCompensating},
	TransferCompensating:    {TransferRolledBack, TransferInconsistent},
}

// Transfer 一筆轉帳 注意欄位排序以避免 Padding
type Transfer struct {
	// From, To: 帳戶 ID
	From int64
	To   int64
	// Amount: 金額
	Amount decimal.Decimal
	// CreatedAt: 建立時間
	CreatedAt time.Time
	// ID: 外部追蹤號 (UUID)
	ID uuid.UUID
	// State: 目前狀態
	State TransferState
}

// NewTransfer 建立一筆 Started 狀態的轉帳
func NewTransfer(from, to int64, amount decimal.Decimal, now time.Time) *Transfer {
	return &Transfer{
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: now,
		ID:        uuid.New(),
		State:     TransferStarted,
	}
}

// Advance 推進狀態，不合法的轉移回傳錯誤且狀態不變
func (t *Transfer) Advance(next TransferState) error {
	for _, allowed := range transferTransitions[t.State] {
		if allowed == next {
			t.State = next
			return nil
		}
	}
	return fmt.Errorf("transfer %s: illegal transition %s -> %s", t.ID, t.State, next)
}
