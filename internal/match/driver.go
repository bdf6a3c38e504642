package match

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CycleRunner is implemented by the Engine.
type CycleRunner interface {
	RunMatchCycle(ctx context.Context) error
}

// Driver owns the periodic match loop: an immediate cycle on start, then
// one per interval, all executed on a single goroutine so cycles never
// overlap. A cycle that outlives the interval simply coalesces the missed
// ticks. Kick requests an extra cycle without blocking the caller.
//
// Driver implements the server.Service start/stop contract.
type Driver struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

// NewDriver creates a stopped Driver.
//
// Precondition: runner and logger must be non-nil; interval must be > 0.
func NewDriver(runner CycleRunner, interval time.Duration, logger *zap.Logger) *Driver {
	return &Driver{
		runner:   runner,
		interval: interval,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start runs the match loop until Stop is called. It blocks, per the
// Service contract. An in-flight cycle is never interrupted by Stop.
func (d *Driver) Start() error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info("matchmaker started", zap.Duration("interval", d.interval))
	d.runCycle()

	for {
		select {
		case <-d.done:
			return nil
		case <-ticker.C:
			d.runCycle()
		case <-d.kick:
			d.runCycle()
		}
	}
}

// Stop ends the loop. Idempotent.
func (d *Driver) Stop() {
	d.once.Do(func() { close(d.done) })
}

// Kick requests an extra cycle as soon as the loop is free. Never blocks;
// a request while one is already pending is collapsed into it.
func (d *Driver) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Driver) runCycle() {
	if err := d.runner.RunMatchCycle(context.Background()); err != nil {
		d.logger.Error("match cycle aborted", zap.Error(err))
	}
}
