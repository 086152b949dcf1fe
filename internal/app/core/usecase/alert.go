package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	"github.com/JoeShih716/go-bank-ledger/pkg/metrics"
)

// Incident 一筆補償失敗的轉帳
type Incident struct {
	Transfer domain.Transfer
	Cause    error
}

// Alerter 將不一致狀態升級給維運人員
type Alerter interface {
	Alert(ctx context.Context, incident Incident)
}

// AlerterFunc 讓一般函式實作 Alerter
type AlerterFunc func(ctx context.Context, incident Incident)

func (f AlerterFunc) Alert(ctx context.Context, incident Incident) {
	f(ctx, incident)
}

// LogAlerter 以 Error 等級日誌與 metrics 計數告警
type LogAlerter struct {
	logger  *zap.Logger
	metrics metrics.Collector
}

// NewLogAlerter 建立 LogAlerter
func NewLogAlerter(l *zap.Logger, m metrics.Collector) *LogAlerter {
	if m == nil {
		m = metrics.NoOpCollector{}
	}
	return &LogAlerter{logger: logger.OrNop(l).Named("alert"), metrics: m}
}

func (a *LogAlerter) Alert(ctx context.Context, incident Incident) {
	a.metrics.RecordInconsistent()
	a.logger.Error("TRANSFER INCONSISTENT: operator action required",
		zap.Stringer("transfer_id", incident.Transfer.ID),
		zap.Int64("from", incident.Transfer.From),
		zap.Int64("to", incident.Transfer.To),
		zap.Stringer("amount", incident.Transfer.Amount),
		zap.Time("created_at", incident.Transfer.CreatedAt),
		zap.Error(incident.Cause),
	)
}

var _ Alerter = (*LogAlerter)(nil)
