// Package scheduler serializes every remote call under a shared rate budget.
// A token bucket refills continuously up to a burst ceiling; a single drain
// loop dispatches the highest-priority queued operation one at a time, backing
// off exponentially while the remote side is throttling. Routing every remote
// call through one Scheduler instance is what enforces the external quota: a
// call issued outside it is invisible to the budget.
package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/ehwaz/internal/apperr"
)

// Operation is a single remote call.
type Operation func(ctx context.Context) (any, error)

// Options tunes the scheduler. Zero values pick the defaults.
type Options struct {
	Rate              float64       // tokens added per second
	Burst             float64       // token ceiling
	BaseInterval      time.Duration // sleep quantum while out of tokens
	InterRequestDelay time.Duration // courtesy delay after each success
	BackoffBase       time.Duration // first backoff window after a throttle
	BackoffCap        time.Duration // backoff window ceiling
	MaxRetries        int           // per-entry requeue ceiling
	Logger            *slog.Logger
}

const (
	defaultRate         = 3.0
	defaultBurst        = 3.0
	defaultBaseInterval = 250 * time.Millisecond
	defaultInterDelay   = 200 * time.Millisecond
	defaultBackoffBase  = time.Second
	defaultBackoffCap   = 15 * time.Second
	defaultMaxRetries   = 6

	// throttleShiftCap bounds the 2^consecutiveThrottles scaling of the
	// out-of-tokens wait.
	throttleShiftCap = 5
)

type outcome struct {
	value any
	err   error
}

type entry struct {
	ctx      context.Context
	op       Operation
	priority int
	seq      int64
	retries  int
	result   chan outcome
}

// Status is a read-only snapshot of scheduler state for operational tooling.
type Status struct {
	QueueLength          int     `json:"queue_length"`
	Tokens               float64 `json:"tokens"`
	ConsecutiveThrottles int     `json:"consecutive_throttles"`
}

// Scheduler owns the queue and token budget. All mutable state is owned by
// the drain loop goroutine; public methods communicate through channels, so
// no mutexes are required.
type Scheduler struct {
	opts Options
	log  *slog.Logger

	submitCh chan *entry
	statusCh chan chan Status
	stopCh   chan struct{}
	stopped  chan struct{}
}

// New creates a scheduler and starts its drain loop.
func New(opts Options) *Scheduler {
	if opts.Rate <= 0 {
		opts.Rate = defaultRate
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = defaultBaseInterval
	}
	if opts.InterRequestDelay < 0 {
		opts.InterRequestDelay = 0
	} else if opts.InterRequestDelay == 0 {
		opts.InterRequestDelay = defaultInterDelay
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Scheduler{
		opts:     opts,
		log:      opts.Logger,
		submitCh: make(chan *entry, 64),
		statusCh: make(chan chan Status),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit queues op at the given priority (higher dispatches sooner; ties in
// submission order) and blocks until the operation completes, the caller's
// context is cancelled, or the scheduler stops.
func (s *Scheduler) Submit(ctx context.Context, priority int, op Operation) (any, error) {
	e := &entry{
		ctx:      ctx,
		op:       op,
		priority: priority,
		result:   make(chan outcome, 1),
	}
	select {
	case s.submitCh <- e:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, fmt.Errorf("scheduler: stopped")
	}

	select {
	case out := <-e.result:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, fmt.Errorf("scheduler: stopped")
	}
}

// Status returns a snapshot of queue length, token count, and the
// consecutive-throttle counter.
func (s *Scheduler) Status() Status {
	reply := make(chan Status, 1)
	select {
	case s.statusCh <- reply:
		return <-reply
	case <-s.stopped:
		return Status{}
	}
}

// Stop tears the scheduler down. Queued and in-flight callers are released
// with an error; the budget is dropped, not persisted.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.stopped
}

// loopState is the drain loop's private state.
type loopState struct {
	queue      entryQueue
	seq        int64
	frontSeq   int64 // decreasing, so requeued entries sort before peers
	tokens     float64
	lastRefill time.Time
	throttles  int // consecutive throttled dispatches
}

func (s *Scheduler) run() {
	defer close(s.stopped)

	st := &loopState{
		tokens:     s.opts.Burst,
		lastRefill: time.Now(),
	}
	heap.Init(&st.queue)

	for {
		if st.queue.Len() == 0 {
			select {
			case e := <-s.submitCh:
				s.push(st, e)
			case reply := <-s.statusCh:
				reply <- s.snapshot(st)
			case <-s.stopCh:
				return
			}
			continue
		}

		s.refill(st)
		if st.tokens < 1 {
			shift := st.throttles
			if shift > throttleShiftCap {
				shift = throttleShiftCap
			}
			if !s.pause(st, s.opts.BaseInterval<<shift) {
				return
			}
			continue
		}

		e := heap.Pop(&st.queue).(*entry)
		st.tokens--
		s.dispatch(st, e)
	}
}

func (s *Scheduler) dispatch(st *loopState, e *entry) {
	value, err := e.op(e.ctx)
	switch {
	case err == nil:
		st.throttles = 0
		e.result <- outcome{value: value}
		if !s.pause(st, s.opts.InterRequestDelay) {
			return
		}

	case apperr.Retriable(err):
		st.throttles++
		e.retries++
		if e.retries >= s.opts.MaxRetries {
			e.result <- outcome{err: fmt.Errorf("%w after %d attempts: %w", apperr.ErrRetriesExhausted, e.retries, err)}
			return
		}
		s.log.Warn("scheduler: throttled, requeueing",
			slog.Int("retries", e.retries),
			slog.Int("consecutive_throttles", st.throttles))
		// Requeue at the head of its (reduced) priority band.
		e.priority--
		st.frontSeq--
		e.seq = st.frontSeq
		heap.Push(&st.queue, e)

		backoff := s.opts.BackoffBase << (st.throttles - 1)
		if backoff > s.opts.BackoffCap {
			backoff = s.opts.BackoffCap
		}
		if !s.pause(st, backoff) {
			return
		}

	default:
		e.result <- outcome{err: err}
	}
}

func (s *Scheduler) push(st *loopState, e *entry) {
	st.seq++
	e.seq = st.seq
	heap.Push(&st.queue, e)
}

func (s *Scheduler) refill(st *loopState) {
	now := time.Now()
	elapsed := now.Sub(st.lastRefill).Seconds()
	st.lastRefill = now
	st.tokens += elapsed * s.opts.Rate
	if st.tokens > s.opts.Burst {
		st.tokens = s.opts.Burst
	}
}

func (s *Scheduler) snapshot(st *loopState) Status {
	return Status{
		QueueLength:          st.queue.Len(),
		Tokens:               st.tokens,
		ConsecutiveThrottles: st.throttles,
	}
}

// pause sleeps for d while still accepting submissions and status requests.
// Returns false when the scheduler is stopping.
func (s *Scheduler) pause(st *loopState, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case e := <-s.submitCh:
			s.push(st, e)
		case reply := <-s.statusCh:
			reply <- s.snapshot(st)
		case <-s.stopCh:
			return false
		case <-timer.C:
			return true
		}
	}
}

// entryQueue is a max-heap ordered by priority, ties broken by ascending
// sequence number (stable submission order).
type entryQueue []*entry

func (q entryQueue) Len() int { return len(q) }

func (q entryQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q entryQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *entryQueue) Push(x any) { *q = append(*q, x.(*entry)) }

func (q *entryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
