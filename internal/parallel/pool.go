// Package parallel provides the worker pool used for band-parallel
// rasterization.
package parallel

import (
	"runtime"
	"sync"
)

// Pool is a fixed set of worker goroutines fed from a shared queue.
//
// The execution driver partitions a primitive's pixel rows into bands and
// runs the bands through ExecuteAll, which joins before returning; that
// join is the only synchronization point the driver needs.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	// workers is the number of worker goroutines.
	workers int

	// queue carries queued work to the workers.
	queue chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to exit.
	wg sync.WaitGroup

	// mu orders enqueues against Close: Close takes the write lock before
	// stopping the workers, so every item enqueued under the read lock is
	// drained by a worker before it exits.
	mu sync.RWMutex

	// running indicates whether the pool accepts work. Guarded by mu.
	running bool
}

// NewPool creates a pool with the given number of workers and starts them.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		queue:   make(chan func(), workers*4),
		done:    make(chan struct{}),
		running: true,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// worker is the main loop of each worker goroutine.
func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			// Drain remaining work before exiting.
			for {
				select {
				case work := <-p.queue:
					work()
				default:
					return
				}
			}
		case work := <-p.queue:
			work()
		}
	}
}

// ExecuteAll runs every work item on the pool and waits for all of them to
// complete. If the pool is closed, the items run on the calling goroutine
// instead so no work is lost.
func (p *Pool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	p.mu.RLock()
	if !p.running {
		p.mu.RUnlock()
		for _, fn := range work {
			fn()
		}
		return
	}

	var join sync.WaitGroup
	join.Add(len(work))
	for _, fn := range work {
		fn := fn
		p.queue <- func() {
			defer join.Done()
			fn()
		}
	}
	p.mu.RUnlock()
	join.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int { return p.workers }

// Close stops the workers after the queued work finishes.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()
	close(p.done)
	p.wg.Wait()
}
