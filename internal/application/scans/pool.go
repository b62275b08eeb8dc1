package scans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Job is one unit of background work.
type Job func(ctx context.Context)

// Pool runs jobs on a fixed number of workers behind a bounded queue.
type Pool struct {
	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts workers goroutines reading from a queue of size queue.
func NewPool(workers, queue int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queue < 0 {
		queue = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:   make(chan Job, queue),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(n, job)
	}
}

func (p *Pool) run(n int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", "worker", n, "panic", r)
		}
	}()
	job(p.ctx)
}

// Submit enqueues job without blocking. It fails with ErrQueueFull when the
// queue is full or the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrQueueFull
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Check reports the pool unready once it stops taking jobs or the queue is
// full.
func (p *Pool) Check(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("scan pool shut down")
	}
	if cap(p.jobs) > 0 && len(p.jobs) == cap(p.jobs) {
		return fmt.Errorf("scan queue saturated (%d queued)", len(p.jobs))
	}
	return nil
}

// Shutdown stops intake and waits for queued jobs. When ctx expires first the
// jobs' context is cancelled and ctx.Err() is returned after they return.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
