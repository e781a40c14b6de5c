// Package concurrent runs per-item work over a bounded worker pool with a
// per-item timeout and collects outcomes and metrics.
package concurrent

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"
)

// Result is the outcome of processing one item
type Result[T any] struct {
	Index int
	Item  T
	Error error
}

// Pool processes items concurrently
type Pool struct {
	workers     int
	timeout     time.Duration
	maxRetries  int
	shouldRetry ErrorHandler

	mu      sync.Mutex
	metrics Metrics
}

// Config holds configuration for the pool
type Config struct {
	Workers      int           // Number of concurrent workers
	Timeout      time.Duration // Timeout per item
	MaxRetries   int           // Attempts per item, default 1
	ErrorHandler ErrorHandler  // Decides whether a failed attempt is retried
}

// ErrorHandler returns true to retry the item after err
type ErrorHandler func(err error, attempt int) bool

// Metrics tracks pool throughput
type Metrics struct {
	Total     int
	Succeeded int
	Failed    int
	Retries   int
	Latency   time.Duration
	StartTime time.Time
	EndTime   time.Time
}

// NewPool creates a worker pool
func NewPool(config Config) *Pool {
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 4 {
			workers = 4
		}
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	retries := config.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	return &Pool{
		workers:     workers,
		timeout:     timeout,
		maxRetries:  retries,
		shouldRetry: config.ErrorHandler,
	}
}

// Run calls fn for every item and returns results in input order. Items not
// started before ctx is done are reported with ctx.Err().
func Run[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) []Result[T] {
	results := make([]Result[T], len(items))
	for i, item := range items {
		results[i] = Result[T]{Index: i, Item: item}
	}
	if len(items) == 0 {
		return results
	}

	p.mu.Lock()
	p.metrics.Total += len(items)
	p.metrics.StartTime = time.Now()
	p.mu.Unlock()

	jobs := make(chan int)
	started := make([]bool, len(items))

	var wg sync.WaitGroup
	for w := 0; w < p.workers && w < len(items); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i].Error = process(ctx, p, items[i], fn)
			}
		}()
	}

send:
	for i := range items {
		select {
		case jobs <- i:
			started[i] = true
		case <-ctx.Done():
			break send
		}
	}
	close(jobs)
	wg.Wait()

	for i := range results {
		if !started[i] {
			results[i].Error = ctx.Err()
			p.record(results[i].Error, 0)
		}
	}

	p.mu.Lock()
	p.metrics.EndTime = time.Now()
	p.mu.Unlock()
	return results
}

// process runs fn with a per-item timeout and retry logic
func process[T any](ctx context.Context, p *Pool, item T, fn func(ctx context.Context, item T) error) error {
	itemCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		attempts++
		lastErr = fn(itemCtx, item)
		if lastErr == nil {
			break
		}
		if p.shouldRetry == nil || attempt == p.maxRetries-1 || !p.shouldRetry(lastErr, attempt) {
			break
		}

		p.mu.Lock()
		p.metrics.Retries++
		p.mu.Unlock()

		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-itemCtx.Done():
			lastErr = itemCtx.Err()
			attempt = p.maxRetries
		}
	}

	if lastErr != nil {
		lastErr = attemptError(attempts, lastErr)
	}
	p.record(lastErr, time.Since(start))
	return lastErr
}

// GetMetrics returns a snapshot of the pool metrics
func (p *Pool) GetMetrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// AverageLatency is the mean time spent per processed item
func (m Metrics) AverageLatency() time.Duration {
	done := m.Succeeded + m.Failed
	if done == 0 {
		return 0
	}
	return m.Latency / time.Duration(done)
}

func (p *Pool) record(err error, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.metrics.Failed++
	} else {
		p.metrics.Succeeded++
	}
	p.metrics.Latency += latency
}

// Errors returns the failed results
func Errors[T any](results []Result[T]) []Result[T] {
	var failed []Result[T]
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

func attemptError(attempts int, err error) error {
	if attempts <= 1 {
		return err
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
