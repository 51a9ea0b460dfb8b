package lock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.lock")

	l, err := Acquire(context.Background(), path, Options{})
	require.NoError(t, err)
	require.FileExists(t, path)

	require.NoError(t, l.Release())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestAcquireBlocksConcurrentHolder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.lock")

	l1, err := Acquire(context.Background(), path, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = Acquire(ctx, path, Options{AcquireTimeout: 80 * time.Millisecond})
	require.Error(t, err)

	require.NoError(t, l1.Release())
}

func TestAcquireBreaksStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.lock")

	_, err := Acquire(context.Background(), path, Options{})
	require.NoError(t, err)

	l2, err := Acquire(context.Background(), path, Options{StaleAfter: 1 * time.Millisecond, AcquireTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestWithLockSerializesCriticalSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.lock")

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = WithLock(context.Background(), path, Options{AcquireTimeout: 2 * time.Second}, func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	require.Len(t, order, 5)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
