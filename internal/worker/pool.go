// Package worker runs slow jobs (rescans, asynchronous actions) off the
// interactive loop and reports their completion back onto it.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"quarry/internal/errors"
	"quarry/internal/log"

	"github.com/google/uuid"
)

const defaultQueueSize = 256

var (
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned when the backlog is at capacity.
	ErrQueueFull = errors.New("worker queue full")
)

// Poster hands a function to the interactive domain.
type Poster interface {
	Post(fn func()) bool
}

// Job is one unit of background work.
type Job struct {
	// ID is assigned by Submit when empty.
	ID   string
	Name string
	Run  func(ctx context.Context) error
	// Cleanup always runs on the worker, after Run or instead of it when the
	// pool shuts down first.
	Cleanup func()
	// Done is posted to the interactive domain with the outcome.
	Done func(id string, err error)
}

// Stats reports pool activity.
type Stats struct {
	Queued    int
	Running   int
	Completed int64
	Failed    int64
}

// Pool is a fixed set of worker goroutines.
type Pool struct {
	size   int
	poster Poster
	logger log.Logging

	jobs     chan *Job
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc

	running   atomic.Int32
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a pool of size workers. poster may be nil, in which case Done
// callbacks run on the worker goroutine.
func New(size int, poster Poster, logger log.Logging) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:     size,
		poster:   poster,
		logger:   logger,
		jobs:     make(chan *Job, defaultQueueSize),
		stopChan: make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("worker pool is already running")
	}
	if p.stopped {
		return ErrPoolStopped
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.logger.With(log.F("workers", p.size)).Debug("Worker pool started")
	return nil
}

// Submit queues job and returns its ID.
func (p *Pool) Submit(job Job) (string, error) {
	if job.Run == nil {
		return "", fmt.Errorf("job %q has no run function", job.Name)
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return "", ErrPoolStopped
	}
	select {
	case p.jobs <- &job:
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Stop cancels running jobs and waits for the workers to exit. Queued jobs
// are not run, but their Cleanup and Done still are.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stopChan)
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	p.wg.Wait()
	for {
		select {
		case job := <-p.jobs:
			p.finish(job, context.Canceled)
		default:
			p.logger.Debug("Worker pool stopped")
			return
		}
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	return Stats{
		Queued:    len(p.jobs),
		Running:   int(p.running.Load()),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) work(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopChan:
			return
		case job := <-p.jobs:
			p.running.Add(1)
			err := p.execute(ctx, job)
			p.running.Add(-1)
			p.finish(job, err)
		}
	}
}

// execute runs the job, turning a panic into an error.
func (p *Pool) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return job.Run(ctx)
}

func (p *Pool) finish(job *Job, err error) {
	if job.Cleanup != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.With(log.F("job", job.Name), log.F("panic", r)).Error("Recovered panic in job cleanup")
				}
			}()
			job.Cleanup()
		}()
	}

	if err != nil {
		p.failed.Add(1)
		p.logger.With(log.F("job", job.Name), log.F("id", job.ID), log.F("error", err)).Warn("Background job failed")
	} else {
		p.completed.Add(1)
	}

	if job.Done == nil {
		return
	}
	done := func() { job.Done(job.ID, err) }
	if p.poster == nil || !p.poster.Post(done) {
		done()
	}
}
