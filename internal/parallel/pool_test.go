package parallel

import (
	"sync/atomic"
	"testing"
)

func TestPoolExecuteAll(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	p.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("executed %d items, want 100", counter.Load())
	}
}

func TestPoolExecuteAllWaits(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	results := make([]int, 64)
	work := make([]func(), len(results))
	for i := range work {
		i := i
		work[i] = func() { results[i] = i + 1 }
	}
	p.ExecuteAll(work)

	// ExecuteAll must not return before every item ran.
	for i, v := range results {
		if v != i+1 {
			t.Fatalf("item %d not completed before ExecuteAll returned", i)
		}
	}
}

func TestPoolExecuteAllEmpty(t *testing.T) {
	p := NewPool(2)
	defer p.Close()
	p.ExecuteAll(nil)
}

func TestPoolDefaultWorkers(t *testing.T) {
	p := NewPool(0)
	defer p.Close()
	if p.Workers() < 1 {
		t.Errorf("Workers() = %d, want >= 1", p.Workers())
	}
}

func TestPoolCloseIdempotent(t *testing.T) {
	p := NewPool(2)
	p.Close()
	p.Close()
}

func TestPoolRunsInlineAfterClose(t *testing.T) {
	p := NewPool(2)
	p.Close()

	var counter atomic.Int64
	work := make([]func(), 10)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	p.ExecuteAll(work)

	if counter.Load() != 10 {
		t.Errorf("executed %d items after Close, want 10", counter.Load())
	}
}

func TestPoolCloseDuringExecuteAll(t *testing.T) {
	// Closing while another goroutine submits must never strand an item:
	// every batch completes, either on the workers or inline.
	for iter := 0; iter < 200; iter++ {
		p := NewPool(2)

		var counter atomic.Int64
		work := make([]func(), 16)
		for i := range work {
			work[i] = func() { counter.Add(1) }
		}

		done := make(chan struct{})
		go func() {
			p.ExecuteAll(work)
			close(done)
		}()
		p.Close()
		<-done

		if counter.Load() != 16 {
			t.Fatalf("iteration %d: executed %d items, want 16", iter, counter.Load())
		}
	}
}

func TestPoolConcurrentExecuteAll(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var counter atomic.Int64
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			work := make([]func(), 50)
			for i := range work {
				work[i] = func() { counter.Add(1) }
			}
			p.ExecuteAll(work)
		}()
	}
	for g := 0; g < 4; g++ {
		<-done
	}
	if counter.Load() != 200 {
		t.Errorf("executed %d items, want 200", counter.Load())
	}
}
