package broker

import (
	"context"
	"errors"
	"sync"
)

// Job is a unit of work submitted to the WorkerPool.
type Job func(ctx context.Context) error

// ErrPoolClosed is returned if a Submit is attempted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool runs jobs using a fixed number of goroutines.
type WorkerPool struct {
	jobs    chan Job
	done    chan struct{}
	wg      sync.WaitGroup
	workers int

	startOnce sync.Once
	closeOnce sync.Once

	// OnError receives every non-nil job error. Optional.
	OnError func(error)
}

// NewWorkerPool creates a pool with the given number of workers and job queue capacity.
func NewWorkerPool(workers, queue int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &WorkerPool{
		jobs:    make(chan Job, queue),
		done:    make(chan struct{}),
		workers: workers,
	}
}

// Start launches the workers. They run until ctx is done or Close is called;
// on Close, jobs already queued are drained first.
func (p *WorkerPool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.loop(ctx)
		}
	})
}

func (p *WorkerPool) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			p.run(ctx, job)
		case <-p.done:
			for {
				select {
				case job := <-p.jobs:
					p.run(ctx, job)
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, job Job) {
	if err := job(ctx); err != nil && p.OnError != nil {
		p.OnError(err)
	}
}

// Submit enqueues a job, blocking while the queue is full. It returns
// ErrPoolClosed after Close, or ctx's error if ctx ends first.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs and waits for workers to finish.
func (p *WorkerPool) Close() {
	p.closeOnce.Do(func() { close(p.done) })
	p.wg.Wait()
}
