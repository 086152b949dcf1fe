package grpc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// Client ledger.v1.LedgerService 的客戶端
// 回傳的錯誤已經還原成 domain 錯誤，可直接用 errors.Is 判斷
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient 以既有連線建立客戶端 (通常來自 pkg/grpc.Pool)
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) CreateAccount(ctx context.Context, ownerID string, initialBalance decimal.Decimal) (domain.Account, error) {
	return c.account(ctx, "CreateAccount", &CreateAccountRequest{OwnerID: ownerID, InitialBalance: initialBalance})
}

func (c *Client) GetAccount(ctx context.Context, accountID int64) (domain.Account, error) {
	return c.account(ctx, "GetBalance", &GetBalanceRequest{AccountID: accountID})
}

func (c *Client) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	return c.account(ctx, "Deposit", &AmountRequest{AccountID: accountID, Amount: amount})
}

func (c *Client) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (domain.Account, error) {
	return c.account(ctx, "Withdraw", &AmountRequest{AccountID: accountID, Amount: amount})
}

func (c *Client) SetBalance(ctx context.Context, accountID int64, amount decimal.Decimal, ifUnmodifiedSince time.Time) (domain.Account, error) {
	return c.account(ctx, "SetBalance", &SetBalanceRequest{
		AccountID:         accountID,
		Amount:            amount,
		IfUnmodifiedSince: timestamppb.New(ifUnmodifiedSince),
	})
}

func (c *Client) SetBalanceAtVersion(ctx context.Context, accountID int64, amount decimal.Decimal, version uint64) (domain.Account, error) {
	return c.account(ctx, "SetBalance", &SetBalanceRequest{
		AccountID:      accountID,
		Amount:         amount,
		IfMatchVersion: version,
	})
}

func (c *Client) Transfer(ctx context.Context, sourceID, destinationID int64, amount decimal.Decimal) (*TransferReply, error) {
	out := new(TransferReply)
	req := &TransferRequest{SourceID: sourceID, DestinationID: destinationID, Amount: amount}
	if err := c.invoke(ctx, "Transfer", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) account(ctx context.Context, method string, req any) (domain.Account, error) {
	out := new(AccountReply)
	if err := c.invoke(ctx, method, req, out); err != nil {
		return domain.Account{}, err
	}
	return out.Account(), nil
}

func (c *Client) invoke(ctx context.Context, method string, req, out any) error {
	err := c.cc.Invoke(ctx, fullMethod(method), req, out, grpc.CallContentSubtype(CodecName))
	return FromStatus(err)
}
