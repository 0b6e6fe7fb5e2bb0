// Package loop implements the interactive scheduling domain: a single
// goroutine that runs posted functions one at a time, in posting order.
//
// Everything that touches pane state or publishes results runs on the loop.
// Background workers hand their results back with Post.
package loop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"quarry/internal/errors"
	"quarry/internal/log"
)

// ErrStopped is returned when work is handed to a loop that has finished.
var ErrStopped = errors.New("loop stopped")

// Loop is a FIFO of functions drained by one goroutine.
type Loop struct {
	logger log.Logging

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool
}

// New creates an idle loop. Call Run to start draining it.
func New(logger log.Logging) *Loop {
	return &Loop{
		logger:   logger,
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Post queues fn and returns immediately. It never blocks, so workers can
// call it freely. It reports false once the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopChan:
		return false
	default:
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopChan:
		return ErrStopped
	}
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("loop is already running")
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		case <-l.wake:
			l.Drain()
		}
	}
}

// Drain runs everything queued so far on the calling goroutine. Used by Run,
// and by one-shot callers that never start a loop goroutine.
func (l *Loop) Drain() int {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.run(fn)
	}
	return len(batch)
}

// Pending is the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Stop makes Run return. Functions still queued are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.With(log.F("panic", r)).Error("Recovered panic in loop task")
		}
	}()
	fn()
}
