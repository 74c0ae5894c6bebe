package kvs

import (
	"sync"

	"github.com/hyp3rd/ewrap"
)

// JobFunc is a function that can be enqueued in a worker pool.
type JobFunc func() error

// WorkerPool runs jobs on a fixed number of goroutines and collects their errors.
// A pool is single-use: enqueue the jobs, then call Wait once.
type WorkerPool struct {
	jobs chan JobFunc
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs *ewrap.ErrorGroup
}

// NewWorkerPool creates a new worker pool with the given number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	pool := &WorkerPool{
		jobs: make(chan JobFunc, workers),
		errs: ewrap.NewErrorGroup(),
	}

	pool.wg.Add(workers)

	for range workers {
		go pool.worker()
	}

	return pool
}

// Enqueue adds a job to the worker pool. It blocks while every worker is busy and the queue is full.
func (pool *WorkerPool) Enqueue(job JobFunc) {
	pool.jobs <- job
}

// Wait closes the queue, waits for every enqueued job to finish and returns their
// errors combined, or nil.
func (pool *WorkerPool) Wait() error {
	close(pool.jobs)
	pool.wg.Wait()

	return pool.errs.ErrorOrNil()
}

// worker is the main loop executed by each worker goroutine.
func (pool *WorkerPool) worker() {
	defer pool.wg.Done()

	for job := range pool.jobs {
		err := job()
		if err != nil {
			pool.mu.Lock()
			pool.errs.Add(err)
			pool.mu.Unlock()
		}
	}
}
