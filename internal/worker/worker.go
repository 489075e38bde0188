// Package worker runs the background sweeper that expires abandoned
// payments.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Expirer fails Pending orders created before cutoff, at most limit per call.
type Expirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// Config holds worker configuration
type Config struct {
	// WorkerID uniquely identifies this worker instance
	WorkerID string

	// PollInterval is how often to sweep
	PollInterval time.Duration

	// StaleAfter is how long an order may stay Pending
	StaleAfter time.Duration

	// BatchSize caps the orders expired per sweep
	BatchSize int

	// MaxConcurrency is the maximum number of sweeps in flight
	MaxConcurrency int

	// SweepTimeout bounds one sweep
	SweepTimeout time.Duration
}

// Worker periodically expires stale Pending orders
type Worker struct {
	config  Config
	expirer Expirer
	logger  *slog.Logger
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewWorker creates a new sweeper
func NewWorker(expirer Expirer, config Config, logger *slog.Logger) *Worker {
	// Set defaults
	if config.WorkerID == "" {
		config.WorkerID = fmt.Sprintf("sweeper-%s", uuid.New().String()[:8])
	}
	if config.PollInterval == 0 {
		config.PollInterval = 10 * time.Minute
	}
	if config.StaleAfter == 0 {
		config.StaleAfter = 24 * time.Hour
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = 1
	}
	if config.SweepTimeout == 0 {
		config.SweepTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		config:  config,
		expirer: expirer,
		logger:  logger.With("worker_id", config.WorkerID),
		now:     time.Now,
	}
}

// Start sweeps once, then on every tick until the context is cancelled.
// It returns after in-flight sweeps have finished.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker starting",
		"poll_interval", w.config.PollInterval,
		"stale_after", w.config.StaleAfter,
		"batch_size", w.config.BatchSize,
		"max_concurrency", w.config.MaxConcurrency,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Semaphore for concurrency control
	sem := make(chan struct{}, w.config.MaxConcurrency)
	w.dispatch(ctx, sem)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			w.wg.Wait()
			return nil

		case <-ticker.C:
			w.dispatch(ctx, sem)
		}
	}
}

// dispatch starts a sweep unless MaxConcurrency sweeps are already running.
func (w *Worker) dispatch(ctx context.Context, sem chan struct{}) {
	select {
	case sem <- struct{}{}:
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-sem }()
			w.sweep(ctx)
		}()
	default:
		w.logger.Debug("sweep skipped, previous sweep still running")
	}
}

// sweep runs one expiry pass. Errors are logged; the next tick retries.
func (w *Worker) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.config.SweepTimeout)
	defer cancel()

	started := w.now()
	cutoff := started.Add(-w.config.StaleAfter)

	expired, err := w.expirer.ExpireStalePending(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.logger.Error("sweep failed", "error", err, "expired", expired)
		return
	}
	if expired > 0 {
		w.logger.Info("expired stale orders",
			"expired", expired,
			"cutoff", cutoff,
			"duration", time.Since(started),
		)
	}
}
