package grpc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
)

// GrpcServer 將 ledger.v1.LedgerService 轉接到核心用例
type GrpcServer struct {
	core usecase.Ledger
}

func NewGrpcServer(core usecase.Ledger) *GrpcServer {
	return &GrpcServer{
		core: core,
	}
}

func (s *GrpcServer) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*AccountReply, error) {
	acc, err := s.core.CreateAccount(ctx, req.OwnerID, req.InitialBalance)
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(acc), nil
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*AccountReply, error) {
	acc, err := s.core.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(acc), nil
}

func (s *GrpcServer) Deposit(ctx context.Context, req *AmountRequest) (*AccountReply, error) {
	acc, err := s.core.Deposit(ctx, req.AccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(acc), nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *AmountRequest) (*AccountReply, error) {
	acc, err := s.core.Withdraw(ctx, req.AccountID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(acc), nil
}

func (s *GrpcServer) SetBalance(ctx context.Context, req *SetBalanceRequest) (*AccountReply, error) {
	var (
		acc domain.Account
		err error
	)
	switch {
	case req.IfMatchVersion != 0:
		acc, err = s.core.SetBalanceAtVersion(ctx, req.AccountID, req.Amount, req.IfMatchVersion)
	case req.IfUnmodifiedSince != nil:
		if err := req.IfUnmodifiedSince.CheckValid(); err != nil {
			return nil, toStatus(fmt.Errorf("if_unmodified_since: %v: %w", err, domain.ErrInvalidArgument))
		}
		acc, err = s.core.SetBalance(ctx, req.AccountID, req.Amount, req.IfUnmodifiedSince.AsTime())
	default:
		err = fmt.Errorf("set balance requires if_match_version or if_unmodified_since: %w", domain.ErrInvalidArgument)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return newAccountReply(acc), nil
}

func (s *GrpcServer) Transfer(ctx context.Context, req *TransferRequest) (*TransferReply, error) {
	tran, err := s.core.Transfer(ctx, req.SourceID, req.DestinationID, req.Amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TransferReply{
		TransferID: tran.ID.String(),
		State:      tran.State.String(),
	}, nil
}

var _ LedgerServiceServer = (*GrpcServer)(nil)

// LoggingInterceptor 記錄每個 RPC 的方法、狀態碼與耗時
func LoggingInterceptor(l *zap.Logger) grpc.UnaryServerInterceptor {
	l = logger.OrNop(l).Named("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		l.Info("rpc",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
