package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/childlens/bmnprep/internal/infra/metrics"
)

// runPool hands items to workerCount workers and blocks until every worker
// has returned. Feeding stops as soon as ctx is cancelled; items already taken
// by a worker run to completion. A panic while handling an item is recovered
// and passed to fail for that item only.
func runPool[T any](
	ctx context.Context,
	workerCount int,
	items []T,
	logger *zap.Logger,
	handle func(ctx context.Context, item T, log *zap.Logger),
	fail func(item T, err error, log *zap.Logger),
) error {
	if workerCount < 1 {
		workerCount = 1
	}
	jobs := make(chan T)
	var wg sync.WaitGroup

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := logger.With(zap.Int("worker_id", id))
			for item := range jobs {
				runItem(ctx, item, log, handle, fail)
			}
		}(i)
	}

	var err error
feed:
	for _, item := range items {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- item:
		}
	}
	close(jobs)
	if err != nil {
		logger.Info("context cancelled, waiting for workers to finish")
	}
	wg.Wait()
	return err
}

func runItem[T any](
	ctx context.Context,
	item T,
	log *zap.Logger,
	handle func(ctx context.Context, item T, log *zap.Logger),
	fail func(item T, err error, log *zap.Logger),
) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
			if fail != nil {
				fail(item, fmt.Errorf("panic: %v", r), log)
			}
		}
	}()
	handle(ctx, item, log)
}
