package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor 客戶端攔截器，失敗的呼叫以 Warn 記錄，其餘為 Debug
func LoggingInterceptor(l *zap.Logger) grpc.UnaryClientInterceptor {
	if l == nil {
		l = zap.NewNop()
	}
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("target", cc.Target()),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			l.Warn("rpc failed", append(fields, zap.Error(err))...)
			return err
		}
		l.Debug("rpc", fields...)
		return nil
	}
}
