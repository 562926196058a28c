package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/metrics"
)

// Job is a unit of work run by the pool.
type Job func()

// WorkerPool runs submitted jobs on a fixed number of goroutines.
type WorkerPool struct {
	name string
	jobs chan Job

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	workers int
	running bool
}

func NewWorkerPool(name string, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		name:    name,
		jobs:    make(chan Job),
		workers: workerCount,
	}
}

func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.startLocked()
}

func (wp *WorkerPool) startLocked() {
	if wp.running {
		return
	}
	log.Debug().Str("pool", wp.name).Int("workers", wp.workers).Msg("Starting worker pool")

	wp.stopCh = make(chan struct{})
	wp.running = true
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.run(wp.stopCh)
	}
}

func (wp *WorkerPool) run(stopCh <-chan struct{}) {
	defer wp.wg.Done()

	metrics.WorkerActive.WithLabelValues(wp.name).Inc()
	defer metrics.WorkerActive.WithLabelValues(wp.name).Dec()

	for {
		select {
		case <-stopCh:
			return
		case job := <-wp.jobs:
			job()
		}
	}
}

// Submit hands job to an idle worker, blocking until one is free or ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	select {
	case wp.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals all workers and waits for running jobs to finish.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.stopLocked()
}

func (wp *WorkerPool) stopLocked() {
	if !wp.running {
		return
	}
	close(wp.stopCh)
	wp.wg.Wait()
	wp.running = false
	log.Debug().Str("pool", wp.name).Msg("Stopped worker pool")
}

// SetWorkerCount updates the worker pool to use a new concurrency level
func (wp *WorkerPool) SetWorkerCount(n int) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if n <= 0 || n == wp.workers {
		return
	}

	log.Info().Str("pool", wp.name).Int("from", wp.workers).Int("to", n).Msg("Rescaling worker pool")

	wasRunning := wp.running
	wp.stopLocked()
	wp.workers = n
	if wasRunning {
		wp.startLocked()
	}
}

func (wp *WorkerPool) Workers() int {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.workers
}
