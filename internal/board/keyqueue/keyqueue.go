// Package keyqueue runs jobs serially per key and concurrently across keys.
//
// The reconciler keys persistence requests by entity ("card:12", "list:3")
// so that two moves of the same card reach the backend in dispatch order,
// while moves of unrelated cards proceed in parallel.
package keyqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/common/logger"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("keyqueue: closed")

// Job is one unit of work. ctx is cancelled when the queue is closed.
type Job func(ctx context.Context)

// Queue is a per-key FIFO executor. A key has at most one worker goroutine,
// which exits as soon as the key has no queued jobs.
type Queue struct {
	mu       sync.Mutex
	jobs     map[string][]Job // present while a worker runs for the key
	counts   map[string]int   // queued + running, per key
	inflight int
	waiters  []chan struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	logger *logger.Logger
}

// New creates an empty queue.
func New(log *logger.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		jobs:   make(map[string][]Job),
		counts: make(map[string]int),
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithComponent("keyqueue"),
	}
}

// Enqueue appends job to key's queue and starts a worker if none is running.
func (q *Queue) Enqueue(key string, job Job) error {
	if job == nil {
		return fmt.Errorf("keyqueue: nil job for key %q", key)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.inflight++
	q.counts[key]++

	if queued, running := q.jobs[key]; running {
		q.jobs[key] = append(queued, job)
		return nil
	}

	q.jobs[key] = []Job{job}
	go q.work(key)
	return nil
}

func (q *Queue) work(key string) {
	for {
		q.mu.Lock()
		queued := q.jobs[key]
		if len(queued) == 0 {
			delete(q.jobs, key)
			q.mu.Unlock()
			return
		}
		job := queued[0]
		queued[0] = nil
		q.jobs[key] = queued[1:]
		q.mu.Unlock()

		q.run(key, job)

		q.mu.Lock()
		q.counts[key]--
		if q.counts[key] == 0 {
			delete(q.counts, key)
		}
		q.inflight--
		if q.inflight == 0 {
			for _, ch := range q.waiters {
				close(ch)
			}
			q.waiters = nil
		}
		q.mu.Unlock()
	}
}

func (q *Queue) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()
	job(q.ctx)
}

// Pending returns the number of queued and running jobs for key.
func (q *Queue) Pending(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[key]
}

// Wait blocks until every job enqueued so far has finished, or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.inflight == 0 {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new jobs and cancels the context handed to jobs. Jobs that
// are still queued run with the cancelled context so their owners observe
// the failure. Close does not wait; call Wait for that.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
}
