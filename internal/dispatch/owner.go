package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/stepwise/internal/metrics"
)

// DefaultQueueSize is the default owner queue capacity.
const DefaultQueueSize = 1024

type ownerKey struct{}

// ownerTask represents a task waiting for the owner goroutine.
type ownerTask struct {
	ctx  context.Context
	task Task
	done chan Result // nil for fire-and-forget
}

// Owner runs tasks on a single goroutine in FIFO order.
type Owner struct {
	// Configuration
	queueSize    int
	stallWarning time.Duration
	log          *slog.Logger
	metrics      *metrics.Metrics

	// State
	mu      sync.RWMutex // protects queue creation/closing against senders
	queue   chan ownerTask
	quit    chan struct{} // closed by Stop to release blocked senders
	stopped chan struct{}
	sending *sync.WaitGroup // senders between the running check and their send
	running atomic.Bool

	executor *Executor

	// Stats
	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
	skipped   atomic.Uint64
}

// Option configures an Owner.
type Option func(*Owner)

// WithQueueSize sets the task queue size. Producers block while it is full.
func WithQueueSize(size int) Option {
	return func(o *Owner) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// WithStallWarning logs a warning each time a blocking call has waited for
// d without completing. Zero disables the warning.
func WithStallWarning(d time.Duration) Option {
	return func(o *Owner) {
		o.stallWarning = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Owner) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Owner) {
		o.metrics = m
	}
}

// NewOwner creates a new owner dispatcher. Call Start before submitting
// tasks from other goroutines.
func NewOwner(opts ...Option) *Owner {
	o := &Owner{
		queueSize: DefaultQueueSize,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "owner")
	o.executor = NewExecutor(func(v any, stack []byte) {
		o.log.Error("owner task panicked", "err", fmt.Errorf("panic: %v", v), "stack", string(stack))
	})
	return o
}

// Start starts the owner goroutine.
func (o *Owner) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return ErrAlreadyRunning
	}

	o.queue = make(chan ownerTask, o.queueSize)
	o.quit = make(chan struct{})
	o.stopped = make(chan struct{})
	o.sending = &sync.WaitGroup{}
	o.running.Store(true)

	go o.loop(o.queue, o.stopped)
	return nil
}

// Stop stops accepting tasks and waits for queued tasks to finish or until
// ctx is done.
func (o *Owner) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running.Load() {
		o.mu.Unlock()
		return ErrNotRunning
	}
	o.running.Store(false)
	close(o.quit)
	queue, stopped, sending := o.queue, o.stopped, o.sending
	o.mu.Unlock()

	// No sender can start once running is false; wait out the ones
	// already selecting before closing the queue under them.
	sending.Wait()
	close(queue)

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the owner goroutine is running.
func (o *Owner) IsRunning() bool {
	return o.running.Load()
}

// IsOwner returns true if ctx belongs to a task running on this owner.
func (o *Owner) IsOwner(ctx context.Context) bool {
	v, _ := ctx.Value(ownerKey{}).(*Owner)
	return v != nil && v == o
}

// AssertOwner returns an error wrapping ErrOwnerViolation when ctx does not
// belong to a task running on this owner.
func (o *Owner) AssertOwner(ctx context.Context) error {
	if o.IsOwner(ctx) {
		return nil
	}
	o.metrics.Misused("owner")
	err := fmt.Errorf("%w: use RunOnOwner or Call", ErrOwnerViolation)
	o.log.Error("owner violation", "err", err)
	return err
}

// RunOnOwner runs task on the owner goroutine without waiting for it.
//
// Called from an owner task, the task runs inline and its error is
// returned. Otherwise it is queued behind previously queued tasks and its
// eventual error is only logged. ctx only bounds the wait for queue space:
// once accepted, the task runs even if ctx is cancelled afterwards.
func (o *Owner) RunOnOwner(ctx context.Context, task Task) error {
	if o.IsOwner(ctx) {
		return o.runInline(ctx, task)
	}
	return o.enqueue(ctx, ownerTask{ctx: context.WithoutCancel(ctx), task: task})
}

// RunOnOwnerAndWait runs task on the owner goroutine and blocks until it has
// completed. A panic in the task is returned as *PanicError.
//
// There is no timeout; if ctx is done first the call returns ctx.Err().
// A task whose caller has given up before it reaches the front of the
// queue is skipped.
func (o *Owner) RunOnOwnerAndWait(ctx context.Context, task Task) error {
	if o.IsOwner(ctx) {
		return o.runInline(ctx, task)
	}

	done := make(chan Result, 1)
	if err := o.enqueue(ctx, ownerTask{ctx: ctx, task: task, done: done}); err != nil {
		return err
	}
	return o.wait(ctx, done)
}

// Call runs fn on the owner goroutine and returns its result.
func Call[T any](ctx context.Context, o *Owner, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := o.RunOnOwnerAndWait(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (o *Owner) runInline(ctx context.Context, task Task) error {
	res := o.executor.Execute(ctx, task)
	o.record(res)
	return res.Err()
}

func (o *Owner) enqueue(ctx context.Context, t ownerTask) error {
	o.mu.RLock()
	if !o.running.Load() {
		o.mu.RUnlock()
		return ErrNotRunning
	}
	queue, quit, sending := o.queue, o.quit, o.sending
	sending.Add(1)
	o.mu.RUnlock()
	defer sending.Done()

	select {
	case queue <- t:
		o.enqueued.Add(1)
		o.metrics.Queued(len(queue))
		return nil
	case <-quit:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Owner) wait(ctx context.Context, done <-chan Result) error {
	var stall <-chan time.Time
	if o.stallWarning > 0 {
		ticker := time.NewTicker(o.stallWarning)
		defer ticker.Stop()
		stall = ticker.C
	}

	start := time.Now()
	for {
		select {
		case res := <-done:
			return res.Err()
		case <-stall:
			o.log.Warn("still waiting on owner goroutine",
				"waited", time.Since(start),
				"queue_depth", o.QueueDepth(),
			)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// loop processes tasks from the queue until it is closed.
func (o *Owner) loop(queue <-chan ownerTask, stopped chan<- struct{}) {
	defer close(stopped)

	for t := range queue {
		o.metrics.Queued(len(queue))

		ctx := context.WithValue(t.ctx, ownerKey{}, o)
		res := o.executor.Execute(ctx, t.task)
		o.record(res)

		if t.done != nil {
			t.done <- res
			continue
		}
		if res.Error != nil && !res.Skipped {
			o.log.Warn("owner task failed", "err", res.Error)
		}
	}
}

func (o *Owner) record(res Result) {
	o.processed.Add(1)
	switch {
	case res.Skipped:
		o.skipped.Add(1)
		return
	case res.Panicked:
		o.panicked.Add(1)
	case res.Error != nil:
		o.failed.Add(1)
	}
	o.metrics.TaskDone(res.Duration, res.Panicked)
}

// QueueDepth returns the current number of queued tasks.
// Returns 0 if the owner is not running.
func (o *Owner) QueueDepth() int {
	if !o.running.Load() {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.queue)
}

// Stats returns dispatcher statistics.
func (o *Owner) Stats() Stats {
	return Stats{
		Enqueued:   o.enqueued.Load(),
		Processed:  o.processed.Load(),
		Failed:     o.failed.Load(),
		Panicked:   o.panicked.Load(),
		Skipped:    o.skipped.Load(),
		QueueDepth: o.QueueDepth(),
	}
}

// Stats contains statistics for an owner dispatcher.
type Stats struct {
	// Enqueued is the total number of tasks added to the queue.
	Enqueued uint64

	// Processed is the number of tasks run, inline or queued.
	Processed uint64

	// Failed is the number of tasks that returned errors.
	Failed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// Skipped is the number of tasks whose context was done before they ran.
	Skipped uint64

	// QueueDepth is the current number of tasks waiting in the queue.
	QueueDepth int
}
