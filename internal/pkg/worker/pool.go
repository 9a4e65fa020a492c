// Package worker provides goroutine pool management.
//
// Naked goroutines are forbidden in this codebase; all concurrency goes
// through a Pool with context propagation.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"changegate.io/changegate/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the worker pool collection. General carries short fire-and-forget
// work (notification fan-out, cache warmup); Bulk carries batch submission
// fan-out, which holds database transactions and runs longer.
type Pools struct {
	General *Pool
	Bulk    *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains worker pool configuration.
type PoolConfig struct {
	GeneralPoolSize int
	BulkPoolSize    int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize: 100,
		BulkPoolSize:    25,
	}
}

// NewPools creates the worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	// Unified panic recovery
	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	bulkAnts, err := ants.NewPool(cfg.BulkPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second), // bulk tasks hold transactions
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Bulk:          &Pool{pool: bulkAnts, name: "bulk"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task. The task receives the caller's context
// and SHOULD check ctx.Done() at blocking points. If the context is already
// cancelled, Submit returns ctx.Err() without submitting. Once accepted the
// task always runs, even when the context is cancelled while queued: callers
// track completion through the task itself, so dropping it here would strand
// them. A cancelled context reaches the task, which bails out on its own.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	return p.pool.Submit(func() {
		if err := ctx.Err(); err != nil {
			logger.Debug("Task context cancelled while queued",
				zap.String("pool", p.name),
				zap.Error(err),
			)
		}
		task(ctx)
	})
}

// SubmitDetached submits a detached background task. Detached tasks use the
// service lifecycle context instead of a request context: they survive request
// cancellation but still respect graceful shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	var pool *Pool
	switch poolName {
	case "bulk":
		pool = p.Bulk
	default:
		pool = p.General
	}

	return pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", poolName),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
}

// Shutdown gracefully shuts down all pools. Cancels the service context
// first, then waits for running tasks (max 30s per pool).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Bulk.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Bulk pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general": map[string]int{
			"running": p.General.pool.Running(),
			"free":    p.General.pool.Free(),
			"cap":     p.General.pool.Cap(),
		},
		"bulk": map[string]int{
			"running": p.Bulk.pool.Running(),
			"free":    p.Bulk.pool.Free(),
			"cap":     p.Bulk.pool.Cap(),
		},
	}
}
