package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	http_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/internal/config"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	prom_metrics "github.com/JoeShih716/go-bank-ledger/pkg/metrics/prometheus"
	"github.com/JoeShih716/go-bank-ledger/pkg/mysql"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

func main() {
	configPath := flag.String("config", "", "設定檔路徑 (預設讀取 $LEDGER_CONFIG 或 config/config.yaml)")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. 初始化 Logger
	l, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	if err := run(cfg, l); err != nil {
		l.Fatal("ledger exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, l *zap.Logger) error {
	ctx := context.Background()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := prom_metrics.NewCollector("ledger")
	if err := collector.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	// 4. 帳戶儲存
	store, closeStore, err := openStore(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer closeStore()

	// 5. 初始化 UseCase
	accounts := usecase.NewAccountService(store,
		usecase.WithMaxAttempts(cfg.Ledger.MaxAttempts),
		usecase.WithRefundAttempts(cfg.Ledger.RefundAttempts),
		usecase.WithLogger(l),
		usecase.WithMetrics(collector),
	)
	transfers := usecase.NewTransferCoordinator(accounts,
		usecase.WithCoordinatorLogger(l),
		usecase.WithCoordinatorMetrics(collector),
	)
	core := usecase.NewCoreUseCase(accounts, transfers)

	// 6. 啟動 gRPC Server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc_adapter.LoggingInterceptor(l)))
	grpc_adapter.RegisterLedgerServiceServer(grpcServer, grpc_adapter.NewGrpcServer(core))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpc_adapter.ServiceName, healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		l.Info("starting grpc server", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	// 7. 啟動 HTTP Server
	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:         cfg.Server.HTTPAddr,
			Handler:      http_adapter.NewRouter(core, http_adapter.WithLogger(l), http_adapter.WithRegistry(registry)),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			l.Info("starting http server", zap.String("addr", cfg.Server.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http serve: %w", err)
			}
		}()
	}

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var serveErr error
	select {
	case sig := <-quit:
		l.Info("shutting down", zap.Stringer("signal", sig))
	case serveErr = <-errCh:
		l.Error("server failed, shutting down", zap.Error(serveErr))
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			l.Error("http shutdown", zap.Error(err))
		}
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
	l.Info("server exited")
	return serveErr
}

// openStore 依設定建立 AccountStore，回傳的 close 負責釋放 WAL 與資料庫連線
func openStore(ctx context.Context, cfg config.Config, l *zap.Logger) (usecase.AccountStore, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var sqlStore *mysql_adapter.MySQLAccountStore
	if cfg.Store.Driver == config.StoreMySQL || cfg.Store.SeedFromMySQL {
		dbClient, err := mysql.NewClient(cfg.MySQL, l.Named("mysql"))
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = dbClient.Close() })
		l.Info("connected to mysql", zap.String("host", cfg.MySQL.Host), zap.String("db", cfg.MySQL.DBName))

		sqlStore = mysql_adapter.NewMySQLAccountStore(dbClient.DB())
		if err := sqlStore.Migrate(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate accounts: %w", err)
		}
	}

	if cfg.Store.Driver == config.StoreMySQL {
		l.Info("using mysql account store")
		return sqlStore, closeAll, nil
	}

	var seed []domain.Account
	if sqlStore != nil {
		var err error
		if seed, err = sqlStore.LoadAllAccounts(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		l.Info("loaded accounts from mysql", zap.Int("count", len(seed)))
	}

	var w *wal.WAL
	if cfg.Store.WALPath != "" {
		var err error
		if w, err = wal.NewWAL(cfg.Store.WALPath); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("init wal: %w", err)
		}
		closers = append(closers, func() { _ = w.Close() })
	}

	if cfg.Store.Driver == config.StoreLMAX {
		store, err := memory_adapter.NewLMAXAccountStore(seed, w)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("init lmax store: %w", err)
		}
		loopCtx, stop := context.WithCancel(ctx)
		store.Start(loopCtx)
		closers = append(closers, func() {
			stop()
			<-store.Done()
		})
		all, _ := store.LoadAllAccounts(ctx)
		l.Info("using lmax account store", zap.String("wal", cfg.Store.WALPath), zap.Int("accounts", len(all)))
		return store, closeAll, nil
	}

	store, err := memory_adapter.NewMutexAccountStore(seed, w)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("init memory store: %w", err)
	}
	all, _ := store.LoadAllAccounts(ctx)
	l.Info("using memory account store", zap.String("wal", cfg.Store.WALPath), zap.Int("accounts", len(all)))
	return store, closeAll, nil
}
