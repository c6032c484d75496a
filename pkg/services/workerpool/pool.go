// Package workerpool provides bounded parallel execution for candidate
// analysis. The number of in-flight checks is capped so the backing store
// is not saturated when candidate counts scale with tables × columns × tables.
package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config configures the worker pool.
type Config struct {
	MaxConcurrent int // Maximum concurrent checks (default: 4)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
	}
}

// Pool manages concurrent execution with bounded parallelism. A semaphore
// limits outstanding work items; results are collected as they complete.
type Pool struct {
	config Config
	logger *zap.Logger
}

// New creates a worker pool.
func New(config Config, logger *zap.Logger) *Pool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 4
	}
	return &Pool{
		config: config,
		logger: logger.Named("worker-pool"),
	}
}

// Item is a unit of work to be processed.
type Item[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one work item.
type Result[T any] struct {
	ID    string
	Value T
	Err   error
}

// Process executes all items with bounded parallelism. Results come back
// in completion order, not submission order. Processing continues through
// individual failures; items not yet started when ctx is cancelled return
// ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *Pool,
	items []Item[T],
	onProgress func(completed, total int),
) []Result[T] {
	if len(items) == 0 {
		return nil
	}

	resultsChan := make(chan Result[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item Item[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				var zero T
				resultsChan <- Result[T]{ID: item.ID, Value: zero, Err: ctx.Err()}
				return
			}

			value, err := item.Execute(ctx)
			resultsChan <- Result[T]{ID: item.ID, Value: value, Err: err}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]Result[T], 0, len(items))
	completed := 0
	for r := range resultsChan {
		results = append(results, r)
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}

	return results
}
