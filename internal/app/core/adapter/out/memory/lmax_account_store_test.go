package memory

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/pkg/wal"
)

func startLMAX(t *testing.T, seed []domain.Account, w *wal.WAL, opts ...Option) *LMAXAccountStore {
	t.Helper()
	s, err := NewLMAXAccountStore(seed, w, opts...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func TestLMAXCreateGetCompareAndUpdate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := startLMAX(t, nil, nil, WithClock(func() time.Time { return base }))

	a, err := s.Create(ctx, "RSSMRA80A01H501U", d(100))
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, base, a.LastModified)

	updated, err := s.CompareAndUpdate(ctx, a.ID, a.Version, d(70))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)

	_, err = s.CompareAndUpdate(ctx, a.ID, a.Version, d(1))
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	_, err = s.Get(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.CompareAndUpdate(ctx, 42, 1, d(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Create(ctx, "x", d(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	all, err := s.LoadAllAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLMAXConcurrentCompareAndUpdateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := startLMAX(t, nil, nil)
	a, err := s.Create(ctx, "cf", d(100))
	require.NoError(t, err)

	const workers = 50
	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			if _, err := s.CompareAndUpdate(ctx, a.ID, a.Version, d(int64(i))); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLMAXRecoverFromWALAndSeed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.log")
	seed := []domain.Account{domain.NewAccount(5, "seeded", d(500), time.Now())}

	w, err := wal.NewWAL(path)
	require.NoError(t, err)
	s, err := NewLMAXAccountStore(seed, w)
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	s.Start(runCtx)

	_, err = s.CompareAndUpdate(ctx, 5, 1, d(450))
	require.NoError(t, err)
	b, err := s.Create(ctx, "B", d(1))
	require.NoError(t, err)
	assert.Equal(t, int64(6), b.ID)

	cancel()
	<-s.Done()
	require.NoError(t, w.Close())

	w2, err := wal.NewWAL(path)
	require.NoError(t, err)
	defer w2.Close()
	recovered := startLMAX(t, seed, w2)

	got, err := recovered.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d(450)))
	assert.Equal(t, uint64(2), got.Version)
	got, err = recovered.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", got.OwnerID)
}

func TestLMAXStopped(t *testing.T) {
	s, err := NewLMAXAccountStore(nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	<-s.Done()

	_, err = s.Get(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestLMAXCanceledContext(t *testing.T) {
	s := startLMAX(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, "x", d(1))
	assert.ErrorIs(t, err, context.Canceled)
}
