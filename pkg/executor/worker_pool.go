package executor

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the async execution pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent executions (default: 8)
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxConcurrent: 8,
	}
}

// WorkerPool bounds the number of executions running in the background.
// Submitted work waits for a free slot on its own goroutine, so submitting
// never blocks the caller.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new execution worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("executor-worker-pool"),
		sem:    make(chan struct{}, config.MaxConcurrent),
	}
}

// Go runs fn once a slot is free.
func (p *WorkerPool) Go(id string, fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		p.logger.Debug("Worker slot acquired", zap.String("id", id))
		fn()
	}()
}

// Wait blocks until all submitted work has returned.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// WorkItem represents a unit of work to be processed.
type WorkItem[T any] struct {
	ID      string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// WorkResult represents the result of a work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all work items with the pool's parallelism bound.
// Returns results in completion order (not submission order).
// Continues processing all items even if some fail.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], 0, len(items))
	resultsChan := make(chan WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup

	for _, item := range items {
		wg.Add(1)
		go func(item WorkItem[T]) {
			defer wg.Done()

			// Acquire semaphore slot (blocks if at max concurrency)
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				var zero T
				resultsChan <- WorkResult[T]{ID: item.ID, Result: zero, Err: ctx.Err()}
				return
			}

			result, err := item.Execute(ctx)
			resultsChan <- WorkResult[T]{
				ID:     item.ID,
				Result: result,
				Err:    err,
			}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	completed := 0
	for result := range resultsChan {
		results = append(results, result)
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}
