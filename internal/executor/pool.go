// Package executor provides the worker pool that runs capture callbacks.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/enriquebris/goconcurrentqueue"

	"github.com/jittakal/zslring/internal/errors"
	"github.com/jittakal/zslring/pkg/capture"
)

// Ensure implementation satisfies interface at compile time.
var _ capture.Executor = (*Pool)(nil)

// MetricsCollector defines metrics operations for the pool.
type MetricsCollector interface {
	IncExecutorRejections()
	SetExecutorQueueDepth(depth int)
}

// Config holds pool configuration.
type Config struct {
	Workers   int
	QueueSize int
}

// Pool runs tasks on a fixed set of workers fed by a bounded FIFO queue.
// Execute never blocks: a full queue rejects the task.
type Pool struct {
	queue   *goconcurrentqueue.FixedFIFO
	logger  *slog.Logger
	metrics MetricsCollector

	mu      sync.RWMutex
	closed  bool
	tasks   sync.WaitGroup
	workers sync.WaitGroup
	cancel  context.CancelFunc
}

// New starts a pool with cfg.Workers workers.
func New(cfg Config, logger *slog.Logger, metrics MetricsCollector) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:   goconcurrentqueue.NewFixedFIFO(cfg.QueueSize),
		logger:  logger,
		metrics: metrics,
		cancel:  cancel,
	}
	for i := range cfg.Workers {
		p.workers.Add(1)
		go p.work(ctx, i)
	}
	return p
}

// Execute queues task. It returns ErrExecutorRejected if the queue is full
// and ErrExecutorClosed once Close has been called.
func (p *Pool) Execute(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrExecutorClosed
	}

	p.tasks.Add(1)
	if err := p.queue.Enqueue(task); err != nil {
		p.tasks.Done()
		if p.metrics != nil {
			p.metrics.IncExecutorRejections()
		}
		return fmt.Errorf("%w: %v", errors.ErrExecutorRejected, err)
	}
	p.reportDepth()
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	defer p.workers.Done()

	for {
		item, err := p.queue.DequeueOrWaitForNextElementContext(ctx)
		if err != nil {
			return
		}
		p.reportDepth()
		p.run(id, item.(func()))
	}
}

func (p *Pool) run(id int, task func()) {
	defer p.tasks.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("capture task panicked",
				"worker", id,
				"panic", r,
			)
		}
	}()
	task()
}

// Close stops accepting tasks, waits for queued tasks to finish and stops
// the workers. If ctx ends first, Close returns ctx.Err() without waiting
// for running tasks, and queued tasks that have not started are abandoned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.tasks.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		p.logger.Warn("executor closed with tasks pending", "pending", p.queue.GetLen())
	}

	p.cancel()
	if err == nil {
		p.workers.Wait()
	}
	return err
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	return p.queue.GetLen()
}

func (p *Pool) reportDepth() {
	if p.metrics != nil {
		p.metrics.SetExecutorQueueDepth(p.queue.GetLen())
	}
}

// Inline runs tasks on the calling goroutine.
type Inline struct{}

// Execute runs task immediately.
func (Inline) Execute(task func()) error {
	task()
	return nil
}
