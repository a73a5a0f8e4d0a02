package batch

import (
	"fmt"
	"sync"
)

// Job is a unit of work admitted by a Limiter.
type Job func() (any, error)

// Future is the pending outcome of a submitted Job. It settles exactly once,
// with whatever value and error the job returned.
type Future struct {
	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(value any, err error) {
	f.value = value
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed once the job has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Settled reports whether the job has finished without blocking.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job settles and returns its outcome.
func (f *Future) Wait() (any, error) {
	<-f.done
	return f.value, f.err
}

type pendingJob struct {
	job Job
	fut *Future
}

// Limiter admits at most maxConcurrent jobs at a time from an unbounded
// FIFO submission queue. It has no notion of task identity: a job's failure
// is propagated to its own Future and neither cancels nor blocks other jobs.
type Limiter struct {
	mu      sync.Mutex
	max     int
	running int
	queue   []pendingJob
}

// NewLimiter creates a Limiter that runs at most maxConcurrent jobs at a
// time. A zero or negative maxConcurrent is a configuration error, not a
// request for zero parallelism.
func NewLimiter(maxConcurrent int) (*Limiter, error) {
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadConcurrency, maxConcurrent)
	}
	return &Limiter{max: maxConcurrent}, nil
}

// Submit enqueues job and returns its Future. The oldest queued job is
// started whenever fewer than maxConcurrent jobs are running, so jobs start
// in strict submission order.
func (l *Limiter) Submit(job Job) *Future {
	fut := newFuture()
	l.mu.Lock()
	l.queue = append(l.queue, pendingJob{job: job, fut: fut})
	l.admit()
	l.mu.Unlock()
	return fut
}

// admit starts queued jobs while capacity remains. Callers must hold mu.
func (l *Limiter) admit() {
	for l.running < l.max && len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.running++
		go l.run(next)
	}
}

func (l *Limiter) run(p pendingJob) {
	value, err := p.job()
	p.fut.settle(value, err)

	l.mu.Lock()
	l.running--
	l.admit()
	l.mu.Unlock()
}

// InFlight returns the number of currently running jobs.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Queued returns the number of jobs waiting for admission.
func (l *Limiter) Queued() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}
