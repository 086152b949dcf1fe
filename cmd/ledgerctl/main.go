package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-bank-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
	grpc_pool "github.com/JoeShih716/go-bank-ledger/pkg/grpc"
)

// ledgerctl 壓測工具：建立一批帳戶後以隨機轉帳打滿服務，最後驗證總額守恆
func main() {
	var (
		addr        = flag.String("addr", "localhost:50051", "ledger gRPC 位址")
		accounts    = flag.Int("accounts", 10, "建立的帳戶數")
		balance     = flag.Int64("balance", 1000, "每個帳戶的初始餘額")
		totalCount  = flag.Int("count", 10000, "轉帳總筆數")
		concurrency = flag.Int("concurrency", 100, "同時進行的請求數")
		maxAmount   = flag.Int64("max-amount", 100, "單筆轉帳金額上限")
		timeout     = flag.Duration("timeout", 120*time.Second, "整體逾時")
		verbose     = flag.Bool("v", false, "記錄每個 RPC")
	)
	flag.Parse()
	if *accounts < 2 || *concurrency < 1 || *maxAmount < 1 {
		log.Fatal("need -accounts >= 2, -concurrency >= 1 and -max-amount >= 1")
	}

	logCfg := logger.DefaultConfig()
	logCfg.Format = "console"
	logCfg.Development = true
	if *verbose {
		logCfg.Level = "debug"
	}
	l, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = l.Sync() }()

	pool := grpc_pool.NewPool(
		grpc_pool.WithInterceptor(grpc_pool.LoggingInterceptor(l)),
		grpc_pool.WithDialOptions(grpc.WithDefaultCallOptions(grpc.CallContentSubtype(grpc_adapter.CodecName))),
	)
	defer pool.Close()
	conn, err := pool.GetConnection(*addr)
	if err != nil {
		l.Fatal("did not connect", zap.Error(err))
	}
	c := grpc_adapter.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runID := uuid.New()
	ids, err := createAccounts(ctx, c, runID, *accounts, decimal.NewFromInt(*balance))
	if err != nil {
		l.Fatal("create accounts", zap.Error(err))
	}
	l.Info("accounts ready", zap.Stringer("run_id", runID), zap.Int64s("ids", ids))

	outcomes := runTransfers(ctx, c, l, ids, *totalCount, *concurrency, *maxAmount)

	want := decimal.NewFromInt(*balance).Mul(decimal.NewFromInt(int64(len(ids))))
	got, err := totalBalance(ctx, c, ids)
	if err != nil {
		l.Fatal("read balances", zap.Error(err))
	}
	for outcome, n := range outcomes {
		fmt.Printf("  %-20s %d\n", outcome, n)
	}
	if !got.Equal(want) {
		fmt.Printf("TOTAL MISMATCH: want %s, got %s\n", want, got)
		os.Exit(1)
	}
	fmt.Printf("Total conserved: %s\n", got)
}

func createAccounts(ctx context.Context, c *grpc_adapter.Client, runID uuid.UUID, n int, balance decimal.Decimal) ([]int64, error) {
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		acc, err := c.CreateAccount(ctx, fmt.Sprintf("ledgerctl-%s-%d", runID, i), balance)
		if err != nil {
			return nil, err
		}
		ids = append(ids, acc.ID)
	}
	return ids, nil
}

func runTransfers(ctx context.Context, c *grpc_adapter.Client, l *zap.Logger, ids []int64, totalCount, concurrency int, maxAmount int64) map[string]int64 {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[string]int64)
		failed   atomic.Int64
	)
	wg.Add(totalCount)
	sem := make(chan struct{}, concurrency)
	startTime := time.Now()

	for i := 0; i < totalCount; i++ {
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			r := rand.New(rand.NewSource(int64(idx)))
			from := r.Intn(len(ids))
			to := (from + 1 + r.Intn(len(ids)-1)) % len(ids)
			amount := decimal.NewFromInt(r.Int63n(maxAmount) + 1)

			_, err := c.Transfer(ctx, ids[from], ids[to], amount)
			outcome := usecase.Outcome(err)
			if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
				if failed.Add(1)%1000 == 1 {
					l.Warn("transfer failed", zap.Int("idx", idx), zap.Error(err))
				}
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}(i)
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v\n", totalCount, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(totalCount)/elapsed.Seconds())
	return outcomes
}

func totalBalance(ctx context.Context, c *grpc_adapter.Client, ids []int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, id := range ids {
		acc, err := c.GetAccount(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(acc.Balance)
	}
	return total, nil
}
