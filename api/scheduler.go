/*
scheduler.go - Periodic recomputation

PURPOSE:
  Reloads the calculation inputs on a fixed interval and stores a fresh run,
  so a server pointed at input files that are refreshed upstream (new
  baseline extracts, revised parameters) keeps serving current results.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Reloads inputs through Loader; a failed load keeps the previous inputs
  - Each tick stores a new run; old runs are never touched (append-only)

USAGE:
  scheduler := NewRunScheduler(handler, loader)
  scheduler.Interval = 6 * time.Hour
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Compute (the same path POST /api/runs takes)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loader produces fresh calculation inputs.
type Loader func() (*Inputs, error)

// RunScheduler recomputes runs on a ticker.
type RunScheduler struct {
	Handler  *Handler
	Load     Loader
	Interval time.Duration
	Region   string
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRunScheduler creates a new scheduler.
func NewRunScheduler(handler *Handler, load Loader) *RunScheduler {
	return &RunScheduler{
		Handler:  handler,
		Load:     load,
		Interval: 1 * time.Hour,
		Enabled:  true,
		logger:   slog.Default().With(slog.String("component", "scheduler")),
	}
}

// Start begins the scheduler. The first recomputation happens immediately.
func (rs *RunScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.Interval <= 0 {
		rs.logger.Info("scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	rs.logger.Info("scheduler started", slog.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for a running recomputation to end.
func (rs *RunScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.logger.Info("scheduler stopped")
	}
}

func (rs *RunScheduler) run() {
	defer rs.wg.Done()

	rs.tick()

	for {
		select {
		case <-rs.ticker.C:
			rs.tick()
		case <-rs.stop:
			return
		}
	}
}

// tick reloads inputs and stores a new run.
func (rs *RunScheduler) tick() {
	if rs.Load != nil {
		in, err := rs.Load()
		if err != nil {
			rs.logger.Error("reload inputs failed, keeping previous inputs", slog.Any("error", err))
		} else {
			rs.Handler.SetInputs(in)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-rs.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	run, err := rs.Handler.Compute(ctx, rs.Region)
	if err != nil {
		rs.logger.Error("scheduled run failed", slog.Any("error", err))
		return
	}
	rs.logger.Info("scheduled run stored", slog.String("run", string(run.ID)))
}
