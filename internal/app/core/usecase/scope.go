package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
)

type scopeState uint8

const (
	scopeOpen scopeState = iota
	scopeCommitted
	scopeRolledBack
)

// ErrScopeClosed Scope 已經 Commit 或 Rollback
var ErrScopeClosed = errors.New("scope already closed")

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// Scope 明確的交易範圍
//
// 已提交的步驟透過 OnRollback 註冊補償動作；
// Rollback 以相反順序執行所有補償，Commit 之後的 Rollback 不做任何事。
// 典型用法是 Begin 之後立刻 defer Rollback，確保每一條離開路徑都會收尾。
// 非 goroutine-safe，一個 Scope 只屬於一個操作。
type Scope struct {
	compensations []compensation
	state         scopeState
	logger        *zap.Logger
}

// BeginScope 開啟新的交易範圍
func BeginScope(l *zap.Logger) *Scope {
	return &Scope{logger: logger.OrNop(l)}
}

// OnRollback 註冊補償動作
func (s *Scope) OnRollback(name string, fn func(ctx context.Context) error) {
	s.compensations = append(s.compensations, compensation{name: name, fn: fn})
}

// Commit 提交，之後的 Rollback 成為 no-op
func (s *Scope) Commit() error {
	if s.state != scopeOpen {
		return ErrScopeClosed
	}
	s.state = scopeCommitted
	s.compensations = nil
	return nil
}

// Rollback 依相反順序執行補償
//
// 補償不受呼叫端取消影響 (context.WithoutCancel)：請求逾時不能讓轉帳停在一半。
// 任一補償失敗時回傳包住 domain.ErrInconsistent 的錯誤，其餘補償仍會繼續執行。
//
// 回傳:
//
//	error: nil 表示沒有需要補償的步驟或全部補償成功
func (s *Scope) Rollback(ctx context.Context) error {
	if s.state != scopeOpen {
		return nil
	}
	s.state = scopeRolledBack

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.fn(ctx); err != nil {
			s.logger.Error("compensation failed", zap.String("step", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		s.logger.Info("compensation applied", zap.String("step", c.name))
	}
	s.compensations = nil
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInconsistent, errors.Join(errs...))
	}
	return nil
}
