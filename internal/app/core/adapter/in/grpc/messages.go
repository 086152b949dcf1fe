package grpc

import (
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// 金額一律以字串傳輸 (decimal.Decimal 的 JSON 格式)，避免浮點誤差

type CreateAccountRequest struct {
	OwnerID        string          `json:"owner_id"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type GetBalanceRequest struct {
	AccountID int64 `json:"account_id"`
}

// AmountRequest 存款與提款共用
type AmountRequest struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// SetBalanceRequest 直接設定餘額
// IfMatchVersion 非 0 時以版本號為前置條件，否則使用 IfUnmodifiedSince；兩者都沒有時拒絕
type SetBalanceRequest struct {
	AccountID         int64                  `json:"account_id"`
	Amount            decimal.Decimal        `json:"amount"`
	IfMatchVersion    uint64                 `json:"if_match_version,omitempty"`
	IfUnmodifiedSince *timestamppb.Timestamp `json:"if_unmodified_since,omitempty"`
}

type TransferRequest struct {
	SourceID      int64           `json:"source_id"`
	DestinationID int64           `json:"destination_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// AccountReply 帳戶快照
type AccountReply struct {
	AccountID    int64                  `json:"account_id"`
	OwnerID      string                 `json:"owner_id"`
	Balance      decimal.Decimal        `json:"balance"`
	Version      uint64                 `json:"version"`
	LastModified *timestamppb.Timestamp `json:"last_modified"`
}

func newAccountReply(a domain.Account) *AccountReply {
	return &AccountReply{
		AccountID:    a.ID,
		OwnerID:      a.OwnerID,
		Balance:      a.Balance,
		Version:      a.Version,
		LastModified: timestamppb.New(a.LastModified),
	}
}

// Account 轉回 domain.Account
func (r *AccountReply) Account() domain.Account {
	return domain.Account{
		ID:           r.AccountID,
		OwnerID:      r.OwnerID,
		Balance:      r.Balance,
		Version:      r.Version,
		LastModified: r.LastModified.AsTime(),
	}
}

type TransferReply struct {
	TransferID string `json:"transfer_id"`
	State      string `json:"state"`
}
