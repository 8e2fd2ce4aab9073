// Package parallel runs command recording jobs on a fixed set of goroutines.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("submit: worker pool closed")

// Job records one batch of GPU work. A non-nil error marks the job failed.
type Job func(ctx context.Context) error

// WorkerPool is a pool of goroutines that act as command producers.
//
// Each worker has its own queue. A worker whose queue is empty steals from
// the others, which keeps long recording jobs (a heavy render pass) from
// stalling short ones queued behind them on the same worker.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// queues holds per-worker job queues.
	queues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool

	// mu is held shared while Run enqueues and exclusively while Close
	// stops the workers, so no job is enqueued after the workers drain.
	mu sync.RWMutex

	// next is the round-robin cursor for job distribution.
	next atomic.Uint32
}

// NewWorkerPool creates a worker pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := workers * 4
	if queueSize < 8 {
		queueSize = 8
	}

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			drain(own)
			return
		case fn := <-own:
			fn()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				drain(own)
				return
			case fn := <-own:
				fn()
			}
		}
	}
}

// drain runs everything left in a queue.
func drain(queue chan func()) {
	for {
		select {
		case fn := <-queue:
			fn()
		default:
			return
		}
	}
}

// steal takes one job from another worker's queue, or returns nil.
func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// Run executes jobs across the workers and waits for all of them. Jobs
// that are still queued when ctx is cancelled are skipped and report
// ctx.Err(). The returned error joins every job error.
func (p *WorkerPool) Run(ctx context.Context, jobs []Job) error {
	if len(jobs) == 0 {
		return nil
	}

	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		return ErrClosed
	}

	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	wg.Add(len(jobs))

	for i, job := range jobs {
		run := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = job(ctx)
		}

		w := int(p.next.Add(1)) % p.workers
		p.queues[w] <- run
	}
	p.mu.RUnlock()

	wg.Wait()
	return errors.Join(errs...)
}

// Close stops accepting work, finishes queued jobs and stops all workers.
// A Run that has started enqueueing completes; later ones fail with
// ErrClosed. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
