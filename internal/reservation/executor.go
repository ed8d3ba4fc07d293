package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

var ErrExecutorClosed = errors.New("executor closed")

// Adjuster applies stock changes durably
type Adjuster interface {
	Deduct(ctx context.Context, updates []domain.QuantityUpdate) error
	Restore(ctx context.Context, updates []domain.QuantityUpdate) error
}

type job struct {
	ctx  context.Context
	cmd  Command
	done func(error)
}

// Executor runs Commands against the Adjuster on a pool of workers
type Executor struct {
	adjuster Adjuster
	logger   *zap.Logger
	jobs     chan job
	workers  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewExecutor starts an Executor with the given number of workers
func NewExecutor(adjuster Adjuster, workers int, logger *zap.Logger) *Executor {
	if workers < 1 {
		workers = 1
	}

	e := &Executor{
		adjuster: adjuster,
		logger:   logger.Named("executor"),
		jobs:     make(chan job, workers*16),
	}

	for i := 0; i < workers; i++ {
		e.workers.Add(1)
		go e.work()
	}

	return e
}

// Execute applies cmd and waits for the result
func (e *Executor) Execute(ctx context.Context, cmd Command) error {
	if cmd.Empty() {
		return nil
	}

	switch cmd.Kind {
	case CommandDeduct:
		return e.adjuster.Deduct(ctx, cmd.Updates)
	case CommandRestore:
		return e.adjuster.Restore(ctx, cmd.Updates)
	default:
		return fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
}

// Submit queues cmd and returns immediately. done is called with the result
// from a worker goroutine. The job outlives cancellation of ctx.
func (e *Executor) Submit(ctx context.Context, cmd Command, done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		go done(ErrExecutorClosed)
		return
	}

	e.jobs <- job{ctx: context.WithoutCancel(ctx), cmd: cmd, done: done}
}

// Close stops accepting commands and waits for queued ones to finish
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.jobs)
	e.mu.Unlock()

	e.workers.Wait()
	e.logger.Info("Executor drained")
}

func (e *Executor) work() {
	defer e.workers.Done()

	for j := range e.jobs {
		err := e.Execute(j.ctx, j.cmd)
		if err != nil {
			e.logger.Error("Stock adjustment failed",
				zap.String("kind", string(j.cmd.Kind)),
				zap.String("channel", string(j.cmd.Channel)),
				zap.Any("updates", j.cmd.Updates),
				zap.Error(err),
			)
		}
		j.done(err)
	}
}
