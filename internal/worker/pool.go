package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tradecoach-platform/tradecoach/internal/cache"
	"github.com/tradecoach-platform/tradecoach/internal/metrics"
	"github.com/tradecoach-platform/tradecoach/internal/provider"
)

var (
	// ErrDispatchTimeout is returned by Await when the bounded wait
	// elapses before the worker finishes. The task keeps running and
	// will still populate the cache on completion.
	ErrDispatchTimeout = errors.New("worker: dispatch timed out")

	// ErrQueueFull is returned by Submit when the task queue is at
	// capacity; callers are expected to fall back to the inline path.
	ErrQueueFull = errors.New("worker: task queue full")

	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker: pool stopped")
)

// Task is one AI completion job.
type Task struct {
	RequestID    string
	UserID       int64
	Fingerprint  string
	SystemPrompt string
	Messages     []provider.Message
}

// Result is the outcome of an executed task. FromCache reports that the
// worker's own cache check was satisfied, meaning a concurrent request for
// the same fingerprint completed first and this one must not be billed again.
type Result struct {
	Reply     string
	FromCache bool
}

// Handle lets the submitter wait for a task with a bound.
type Handle struct {
	done   chan struct{}
	result Result
	err    error
}

// Await blocks until the task completes, the timeout elapses, or ctx is
// cancelled. Neither timeout nor cancellation stops the underlying task.
func (h *Handle) Await(ctx context.Context, timeout time.Duration) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.result, h.err
	case <-timer.C:
		return Result{}, ErrDispatchTimeout
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type job struct {
	task   Task
	handle *Handle
}

// Pool executes AI completion tasks on a fixed set of goroutines, decoupled
// from request handling. Tasks run on the pool's own lifecycle context:
// a client disconnecting mid-wait never cancels an in-flight upstream call,
// so a completed expensive reply still lands in the cache.
type Pool struct {
	prov  provider.Provider
	store *cache.ResponseStore
	queue chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewPool creates a Pool with the given worker count and queue capacity.
func NewPool(prov provider.Provider, store *cache.ResponseStore, workers, queueSize int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		prov:   prov,
		store:  store,
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.workers(workers)
	return p
}

func (p *Pool) workers(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run()
	}
	slog.Info("worker pool started", "workers", n, "queue_size", cap(p.queue))
}

// Submit enqueues a task and returns a Handle for the bounded wait.
// It never blocks: a full queue is an immediate ErrQueueFull.
func (p *Pool) Submit(task Task) (*Handle, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolStopped
	}
	p.mu.Unlock()

	h := &Handle{done: make(chan struct{})}
	select {
	case p.queue <- job{task: task, handle: h}:
		metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		return h, nil
	default:
		return nil, ErrQueueFull
	}
}

// Healthy reports whether the pool is accepting tasks.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started && !p.stopped
}

// Stop rejects new submissions, cancels in-flight tasks, and waits for the
// workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.queue:
			metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
			p.execute(j)
		}
	}
}

// execute performs the worker's own cache check before calling upstream,
// absorbing duplicate concurrent submissions for the same fingerprint.
// Running the upstream call twice for one fingerprint wastes cost but is
// safe: cache writes are last-write-wins over equivalent content.
func (p *Pool) execute(j job) {
	defer close(j.handle.done)

	if reply, ok := p.store.Get(p.ctx, j.task.UserID, j.task.Fingerprint); ok {
		j.handle.result = Result{Reply: reply, FromCache: true}
		return
	}

	reply, err := p.prov.Complete(p.ctx, j.task.SystemPrompt, j.task.Messages)
	if err != nil {
		slog.Warn("worker: upstream call failed",
			"error", err,
			"request_id", j.task.RequestID,
			"user_id", j.task.UserID,
		)
		j.handle.err = err
		return
	}

	p.store.Put(p.ctx, j.task.UserID, j.task.Fingerprint, reply)
	j.handle.result = Result{Reply: reply}
}
