// Package worker follows transactions whose confirmation wait timed out and
// records their final outcome in the activity journal.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vnFuhung2903/rubyams/internal/adapters/mq/queue"
	"github.com/vnFuhung2903/rubyams/internal/domain/dedupe"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

const (
	defaultWorkerCount  = 4
	defaultWindow       = 10 * time.Minute
	poolShutdownTimeout = 30 * time.Second
)

// Awaiter waits for a transaction to confirm.
type Awaiter interface {
	Await(ctx context.Context, hash string, timeout time.Duration) error
}

// StatusUpdater records the outcome of a tracked transaction.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, txHash, status string) error
}

// Queue defines how workers receive pending transactions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Item
}

// Worker processes pending transactions.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)
	// Shutdown stops the worker after the item in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker tracks one pending transaction at a time.
type InMemoryWorker struct {
	queue   Queue
	awaiter Awaiter
	journal StatusUpdater
	seen    dedupe.Deduper
	name    string
	window  time.Duration
	now     func() time.Time

	shutdown chan struct{}
	stopOnce sync.Once
	runOnce  sync.Once
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, a Awaiter, j StatusUpdater, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		awaiter:  a,
		journal:  j,
		name:     "worker",
		window:   defaultWindow,
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("tracker")
	}
	if w.seen == nil {
		w.seen = dedupe.NewInMemoryDeduper()
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. A worker runs at most once.
func (w *InMemoryWorker) Run(ctx context.Context) {
	w.runOnce.Do(func() {
		defer close(w.done)
		w.loop(ctx)
	})
}

func (w *InMemoryWorker) loop(ctx context.Context) {

	items := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case p, ok := <-items:
			if !ok {
				return
			}
			if err := w.process(ctx, p); err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					w.logger.Debug(ctx, "tracking interrupted", logger.String("tx_hash", p.TxHash))
					return
				}
				metrics.RecordWorkerError()
				metrics.RecordErrorByComponent("tracker", "process_error")
				w.logger.Error(ctx, "error tracking transaction", logger.String("tx_hash", p.TxHash), logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) stop() {
	w.stopOnce.Do(func() { close(w.shutdown) })
}

func (w *InMemoryWorker) process(ctx context.Context, p model.PendingTx) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if w.seen.SeenAndRecord(ctx, p.TxHash) {
		metrics.RecordTrackedDuplicate()
		w.logger.Debug(ctx, "transaction already tracked", logger.String("tx_hash", p.TxHash))
		return nil
	}

	remaining := w.window
	if !p.Deadline.IsZero() {
		remaining = p.Deadline.Sub(w.now())
	}
	if remaining <= 0 {
		return w.abandon(ctx, p)
	}

	err := w.awaiter.Await(ctx, p.TxHash, remaining)
	switch {
	case err == nil:
		metrics.RecordLateConfirmation()
		w.logger.Info(ctx, "late confirmation",
			logger.String("tx_hash", p.TxHash),
			logger.String("action", p.Action),
			logger.String("logical_id", p.LogicalID))
		return w.record(ctx, p.TxHash, model.StatusConfirmed)
	case ctx.Err() != nil:
		// Stopped mid-wait; let a future offer of the same hash be tracked.
		w.seen.Unrecord(ctx, p.TxHash)
		return ctx.Err()
	case errors.Is(err, protocol.ErrConfirmationTimeout):
		return w.abandon(ctx, p)
	default:
		return err
	}
}

func (w *InMemoryWorker) abandon(ctx context.Context, p model.PendingTx) error {
	metrics.RecordAbandonedTransaction()
	w.logger.Warn(ctx, "transaction abandoned",
		logger.String("tx_hash", p.TxHash),
		logger.String("action", p.Action),
		logger.String("logical_id", p.LogicalID))
	return w.record(ctx, p.TxHash, model.StatusAbandoned)
}

func (w *InMemoryWorker) record(ctx context.Context, hash, status string) error {
	if w.journal == nil {
		return nil
	}
	if err := w.journal.UpdateStatus(ctx, hash, status); err != nil {
		return fmt.Errorf("journal %s as %s: %w", hash, status, err)
	}
	return nil
}

// Pool manages multiple workers sharing one queue and one seen-set.
// A pool is started once; after Shutdown it stays stopped.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewPool creates workerCount workers. opts apply to every worker.
func NewPool(workerCount int, q Queue, a Awaiter, j StatusUpdater, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	shared := append([]Option{WithDeduper(dedupe.NewInMemoryDeduper())}, opts...)

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
	}
	for i := range workerCount {
		p.workers[i] = NewInMemoryWorker(q, a, j, append(shared, WithName("worker-"+strconv.Itoa(i)))...)
	}
	p.logger = p.workers[0].logger
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// ErrPoolStopped is returned when a stopped pool is started again.
var ErrPoolStopped = errors.New("worker pool already shut down")

// Start starts all workers in the pool. Waits in progress end when ctx
// ends or the pool shuts down.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	return nil
}

// Shutdown closes the queue, interrupts in-flight waits and waits for the
// workers to stop. Interrupted transactions stay pending in the journal.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	if !p.started {
		metrics.UpdateWorkerActiveCount(0)
		return nil
	}

	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for _, w := range p.workers {
		w.stop()
	}
	p.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
