package grpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
)

// ErrorDomain 放在 ErrorInfo.Domain，客戶端以此辨識是帳本的業務錯誤
const ErrorDomain = "ledger.bank"

type errorMapping struct {
	err    error
	code   codes.Code
	reason string
}

// 順序即優先順序，ErrInconsistent 必須在最前面
var errorMappings = []errorMapping{
	{domain.ErrInconsistent, codes.Internal, "INCONSISTENT"},
	{domain.ErrInvalidArgument, codes.InvalidArgument, "INVALID_ARGUMENT"},
	{domain.ErrNotFound, codes.NotFound, "ACCOUNT_NOT_FOUND"},
	{domain.ErrInsufficientFunds, codes.FailedPrecondition, "INSUFFICIENT_FUNDS"},
	{domain.ErrPreconditionFailed, codes.Aborted, "PRECONDITION_FAILED"},
	{domain.ErrContention, codes.Unavailable, "CONTENTION"},
}

// toStatus 將 domain 錯誤轉為 gRPC status (附上 ErrorInfo)
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	// 補償失敗時錯誤裡可能同時帶著 ctx 的錯誤，仍以 INCONSISTENT 回報
	switch {
	case errors.Is(err, domain.ErrInconsistent):
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		st, detailErr := status.New(m.code, err.Error()).WithDetails(&errdetails.ErrorInfo{
			Reason: m.reason,
			Domain: ErrorDomain,
		})
		if detailErr != nil {
			return status.Error(m.code, err.Error())
		}
		return st.Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus 將伺服端回傳的 status 還原成可用 errors.Is 判斷的 domain 錯誤
// 不是帳本業務錯誤時原樣回傳
func FromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}
	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		for _, m := range errorMappings {
			if m.reason == info.GetReason() {
				return fmt.Errorf("%w (remote: %s)", m.err, st.Message())
			}
		}
	}
	return err
}
