package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/livebid/auction-engine/utils"

	"github.com/google/btree"
)

// Task names understood by the engine.
const (
	TaskStartAuction = "auction:start"
	TaskEndAuction   = "auction:end"
)

// StartKey is the idempotency key of an auction's start timer.
func StartKey(auctionID string) string {
	return TaskStartAuction + ":" + auctionID
}

// EndKey is the idempotency key of an auction's end timer.
func EndKey(auctionID string) string {
	return TaskEndAuction + ":" + auctionID
}

// Scheduler is a delayed-task queue keyed by idempotency key.
// Scheduling a key that is already queued replaces the stale task.
type Scheduler interface {
	Schedule(ctx context.Context, name, auctionID string, delay time.Duration, key string) error
	Cancel(ctx context.Context, key string) error
}

// Task is a unit of delayed work.
type Task struct {
	Name      string
	AuctionID string
	Key       string
	RunAt     time.Time
	Attempt   int

	seq uint64
}

// HandlerFunc executes a task. A non-nil error requeues it until MaxAttempts.
type HandlerFunc func(ctx context.Context, task Task) error

// Options tunes the MemoryQueue worker pool.
type Options struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
}

// DefaultOptions mirrors the production queue: 5 workers, 3 attempts.
func DefaultOptions() Options {
	return Options{
		Concurrency:  5,
		PollInterval: time.Second,
		MaxAttempts:  3,
		RetryBackoff: 2 * time.Second,
	}
}

// MemoryQueue is an in-process Scheduler. Pending tasks are kept in a
// B-tree ordered by due time and dispatched to a bounded worker pool.
type MemoryQueue struct {
	mu       sync.Mutex
	tree     *btree.BTreeG[*Task]
	byKey    map[string]*Task
	handlers map[string]HandlerFunc
	seq      uint64
	wake     chan struct{}
	opts     Options
	now      func() time.Time
}

var _ Scheduler = (*MemoryQueue)(nil)

func taskLess(a, b *Task) bool {
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	return a.seq < b.seq
}

// NewMemoryQueue creates an idle queue; call Run to start dispatching.
func NewMemoryQueue(opts Options) *MemoryQueue {
	def := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	return &MemoryQueue{
		tree:     btree.NewG[*Task](16, taskLess),
		byKey:    make(map[string]*Task),
		handlers: make(map[string]HandlerFunc),
		wake:     make(chan struct{}, 1),
		opts:     opts,
		now:      time.Now,
	}
}

// Handle registers the handler for a task name.
func (q *MemoryQueue) Handle(name string, h HandlerFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

// Schedule enqueues a task to run after delay, replacing any task queued under key.
func (q *MemoryQueue) Schedule(_ context.Context, name, auctionID string, delay time.Duration, key string) error {
	if name == "" || key == "" {
		return fmt.Errorf("schedule %q: task name and key are required", key)
	}
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	q.enqueueLocked(&Task{
		Name:      name,
		AuctionID: auctionID,
		Key:       key,
		RunAt:     q.now().Add(delay),
	})
	q.mu.Unlock()

	q.signal()
	return nil
}

// Cancel removes the task queued under key. Unknown keys are ignored.
func (q *MemoryQueue) Cancel(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.byKey[key]; ok {
		q.tree.Delete(t)
		delete(q.byKey, key)
	}
	return nil
}

// Pending returns the task queued under key, if any.
func (q *MemoryQueue) Pending(key string) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.byKey[key]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Len returns the number of queued tasks.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Len()
}

func (q *MemoryQueue) enqueueLocked(t *Task) {
	if stale, ok := q.byKey[t.Key]; ok {
		q.tree.Delete(stale)
	}
	q.seq++
	t.seq = q.seq
	q.tree.ReplaceOrInsert(t)
	q.byKey[t.Key] = t
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// popDue removes and returns every task whose RunAt has passed.
func (q *MemoryQueue) popDue() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due []Task
	for {
		t, ok := q.tree.Min()
		if !ok || t.RunAt.After(now) {
			break
		}
		q.tree.DeleteMin()
		if q.byKey[t.Key] == t {
			delete(q.byKey, t.Key)
		}
		due = append(due, *t)
	}
	return due
}

// nextWait is the time until the earliest task, capped at PollInterval.
func (q *MemoryQueue) nextWait() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()

	wait := q.opts.PollInterval
	if t, ok := q.tree.Min(); ok {
		if d := t.RunAt.Sub(q.now()); d < wait {
			wait = d
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}

// Run dispatches due tasks until ctx is cancelled, then waits for in-flight tasks.
func (q *MemoryQueue) Run(ctx context.Context) {
	jobs := make(chan Task)
	var wg sync.WaitGroup
	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobs {
				q.execute(ctx, t)
			}
		}()
	}
	defer func() {
		close(jobs)
		wg.Wait()
	}()

	timer := time.NewTimer(q.opts.PollInterval)
	defer timer.Stop()

	for {
		for _, t := range q.popDue() {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}

		timer.Reset(q.nextWait())
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-q.wake:
		}
	}
}

func (q *MemoryQueue) execute(ctx context.Context, t Task) {
	q.mu.Lock()
	h, ok := q.handlers[t.Name]
	q.mu.Unlock()
	if !ok {
		utils.Warn("scheduler: no handler registered", map[string]any{"task": t.Name, "key": t.Key})
		return
	}

	t.Attempt++
	err := runHandler(ctx, h, t)
	if err == nil {
		utils.Debug("scheduler: task completed", map[string]any{"task": t.Name, "auction_id": t.AuctionID, "attempt": t.Attempt})
		return
	}

	fields := map[string]any{
		"task":       t.Name,
		"auction_id": t.AuctionID,
		"attempt":    t.Attempt,
		"error":      err.Error(),
	}
	if t.Attempt >= q.opts.MaxAttempts {
		utils.Error("scheduler: task failed permanently", fields)
		return
	}
	utils.Warn("scheduler: task failed, retrying", fields)

	q.mu.Lock()
	if _, superseded := q.byKey[t.Key]; !superseded {
		t.RunAt = q.now().Add(q.opts.RetryBackoff * time.Duration(t.Attempt))
		q.enqueueLocked(&t)
	}
	q.mu.Unlock()
	q.signal()
}

func runHandler(ctx context.Context, h HandlerFunc, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Key, r)
		}
	}()
	return h(ctx, t)
}
