// Package consumer runs launch pipelines for messages pulled from the queue.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"launcher/internal/pipeline"
	"launcher/internal/queue"
	"launcher/internal/workload"
	"launcher/pkg/backoff"
)

// Queue is the message source.
type Queue interface {
	Reserve(ctx context.Context, timeout time.Duration) (*queue.Delivery, error)
	Ack(ctx context.Context, d *queue.Delivery) error
	Nack(ctx context.Context, d *queue.Delivery) error
	DeadLetter(ctx context.Context, d *queue.Delivery) error
	Depth(ctx context.Context) (int64, error)
}

// Launcher runs the launch pipeline for one message.
type Launcher interface {
	Run(ctx context.Context, msg workload.LaunchMessage) (*pipeline.Context, error)
}

// MetricsRecorder is an optional interface for recording consumer metrics.
type MetricsRecorder interface {
	RecordQueueMessage(ctx context.Context, outcome string)
	RecordQueueDepth(ctx context.Context, depth int64)
	RecordLaunchStarted(ctx context.Context)
	RecordLaunchFinished(ctx context.Context)
}

// Message outcomes.
const (
	OutcomeAcked        = "acked"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
)

// Stats holds consumer statistics.
type Stats struct {
	InFlight     int64 `json:"inFlight"`     // pipelines currently running
	Launched     int64 `json:"launched"`     // pipelines that finished without error
	Skipped      int64 `json:"skipped"`      // finished without error but ended early
	Failed       int64 `json:"failed"`       // pipelines that returned an error
	Requeued     int64 `json:"requeued"`     // deliveries returned to the queue
	DeadLettered int64 `json:"deadLettered"` // deliveries that could not be decoded
}

// Consumer pulls launch messages and runs them through the pipeline on a
// fixed pool of workers.
//
// Settlement: a decode failure is dead-lettered. A claim failure is
// requeued because the workload's status was never touched. Any other
// outcome is acked; failures past the claim have already been reported to
// the control plane.
type Consumer struct {
	queue    Queue
	launcher Launcher
	config   Config
	logger   *slog.Logger
	metrics  MetricsRecorder

	inFlight     atomic.Int64
	launched     atomic.Int64
	skipped      atomic.Int64
	failed       atomic.Int64
	requeued     atomic.Int64
	deadLettered atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New starts a consumer. metrics may be nil.
func New(q Queue, launcher Launcher, cfg Config, metrics MetricsRecorder) *Consumer {
	cfg = cfg.withDefaults()

	c := &Consumer{
		queue:    q,
		launcher: launcher,
		config:   cfg,
		logger:   slog.With("component", "consumer"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	c.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go c.worker(i)
	}

	if metrics != nil {
		go c.reportDepth()
	}

	c.logger.Info("Consumer started", "workers", cfg.Workers)
	return c
}

// Stats returns current consumer statistics.
func (c *Consumer) Stats() Stats {
	return Stats{
		InFlight:     c.inFlight.Load(),
		Launched:     c.launched.Load(),
		Skipped:      c.skipped.Load(),
		Failed:       c.failed.Load(),
		Requeued:     c.requeued.Load(),
		DeadLettered: c.deadLettered.Load(),
	}
}

// Close stops reserving new messages and waits for in-flight pipelines.
// The context deadline controls how long to wait.
func (c *Consumer) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.logger.Info("Consumer shutting down", "in_flight", c.inFlight.Load())
	close(c.shutdown)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Consumer shutdown complete",
			"launched", c.launched.Load(),
			"failed", c.failed.Load(),
			"requeued", c.requeued.Load(),
		)
		return nil
	case <-ctx.Done():
		c.logger.Warn("Consumer shutdown timed out", "in_flight", c.inFlight.Load())
		return ctx.Err()
	}
}

func (c *Consumer) worker(id int) {
	defer c.wg.Done()
	logger := c.logger.With("worker", id)

	pauses := 0
	for {
		select {
		case <-c.shutdown:
			return
		default:
		}

		d, err := c.queue.Reserve(context.Background(), c.config.PollTimeout)
		if err != nil {
			pauses++
			logger.Warn("Failed to reserve message", "error", err)
			c.pause(pauses)
			continue
		}
		if d == nil {
			continue
		}

		if c.handle(d) == OutcomeRequeued {
			pauses++
			c.pause(pauses)
		} else {
			pauses = 0
		}
	}
}

// pause waits with exponential backoff, returning early on shutdown.
func (c *Consumer) pause(n int) {
	wait := backoff.Exponential(n, &backoff.Config{
		Initial: c.config.RequeueBackoff,
		Max:     30 * c.config.RequeueBackoff,
	})
	select {
	case <-c.shutdown:
	case <-time.After(wait):
	}
}

// handle runs one delivery and settles it. Returns the outcome.
func (c *Consumer) handle(d *queue.Delivery) string {
	ctx := context.Background()

	msg, err := d.Decode()
	if err != nil {
		c.deadLettered.Add(1)
		c.logger.Warn("Dead-lettering malformed message", "error", err)
		return c.settle(ctx, d, OutcomeDeadLettered, c.queue.DeadLetter)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.config.MessageTimeout)
	defer cancel()

	c.inFlight.Add(1)
	if c.metrics != nil {
		c.metrics.RecordLaunchStarted(ctx)
	}
	pc, err := c.run(runCtx, *msg)
	c.inFlight.Add(-1)
	if c.metrics != nil {
		c.metrics.RecordLaunchFinished(ctx)
	}

	logger := c.logger.With("workload_id", msg.WorkloadID)
	switch {
	case err == nil && pc.Skip:
		c.skipped.Add(1)
		logger.Info("Launch ended early")
	case err == nil:
		c.launched.Add(1)
		logger.Info("Workload launched")
	case isClaimFailure(err):
		c.failed.Add(1)
		c.requeued.Add(1)
		logger.Warn("Claim failed, requeueing", "error", err)
		return c.settle(ctx, d, OutcomeRequeued, c.queue.Nack)
	default:
		c.failed.Add(1)
		logger.Warn("Launch failed", "error", err)
	}
	return c.settle(ctx, d, OutcomeAcked, c.queue.Ack)
}

// run invokes the launcher, converting a panic outside the stages into an error.
func (c *Consumer) run(ctx context.Context, msg workload.LaunchMessage) (pc *pipeline.Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("launcher panic: %v", r)
		}
	}()
	return c.launcher.Run(ctx, msg)
}

func (c *Consumer) settle(ctx context.Context, d *queue.Delivery, outcome string, fn func(context.Context, *queue.Delivery) error) string {
	if err := fn(ctx, d); err != nil {
		c.logger.Error("Failed to settle message", "outcome", outcome, "error", err)
	}
	if c.metrics != nil {
		c.metrics.RecordQueueMessage(ctx, outcome)
	}
	return outcome
}

// reportDepth periodically reports the queue depth metric.
func (c *Consumer) reportDepth() {
	ticker := time.NewTicker(c.config.DepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			depth, err := c.queue.Depth(context.Background())
			if err != nil {
				c.logger.Debug("Failed to read queue depth", "error", err)
				continue
			}
			c.metrics.RecordQueueDepth(context.Background(), depth)
		}
	}
}

func isClaimFailure(err error) bool {
	var stageErr *pipeline.StageError
	return errors.As(err, &stageErr) && stageErr.Stage == pipeline.StageClaim
}
