package usecase

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunPoolHandlesEveryItem(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
	)
	err := runPool(context.Background(), 3, []int{1, 2, 3, 4, 5}, zap.NewNop(),
		func(_ context.Context, item int, _ *zap.Logger) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, item)
		}, nil)
	require.NoError(t, err)
	sort.Ints(seen)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestRunPoolRecoversPanickingItem(t *testing.T) {
	var (
		mu     sync.Mutex
		done   []string
		failed = map[string]string{}
	)
	items := []string{"a", "bad", "c", "d"}
	err := runPool(context.Background(), 2, items, zap.NewNop(),
		func(_ context.Context, item string, _ *zap.Logger) {
			if item == "bad" {
				panic("corrupt item")
			}
			mu.Lock()
			defer mu.Unlock()
			done = append(done, item)
		},
		func(item string, err error, _ *zap.Logger) {
			mu.Lock()
			defer mu.Unlock()
			failed[item] = err.Error()
		})
	require.NoError(t, err)

	sort.Strings(done)
	assert.Equal(t, []string{"a", "c", "d"}, done)
	require.Contains(t, failed, "bad")
	assert.Contains(t, failed["bad"], "panic")
}

func TestRunPoolStopsFeedingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := runPool(ctx, 2, []int{1, 2, 3}, zap.NewNop(),
		func(context.Context, int, *zap.Logger) { calls++ }, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
