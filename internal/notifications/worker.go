package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	NumWorkers   int
	BatchSize    int
	PollInterval time.Duration
	SendTimeout  time.Duration
	Retry        RetryPolicy
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		NumWorkers:   2,
		BatchSize:    50,
		PollInterval: 5 * time.Second,
		SendTimeout:  30 * time.Second,
		Retry:        DefaultRetryPolicy(),
	}
}

type deliveryOutcome string

const (
	outcomeSent    deliveryOutcome = "success"
	outcomeRetry   deliveryOutcome = "retry"
	outcomeFailed  deliveryOutcome = "failed"
	outcomeSkipped deliveryOutcome = "skipped"
)

// Worker drains the notification queue. Each goroutine claims its own batch,
// so items are never delivered twice.
type Worker struct {
	config     WorkerConfig
	repo       Repository
	dispatcher *Dispatcher
	now        func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a notification worker.
func NewWorker(config WorkerConfig, repo Repository, dispatcher *Dispatcher) *Worker {
	def := DefaultWorkerConfig()
	if config.NumWorkers <= 0 {
		config.NumWorkers = def.NumWorkers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = def.SendTimeout
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = def.Retry
	}

	return &Worker{
		config:     config,
		repo:       repo,
		dispatcher: dispatcher,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the worker goroutines. They run until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"workers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	w.wg.Add(w.config.NumWorkers)
	for id := range w.config.NumWorkers {
		go w.loop(ctx, id)
	}
}

// Stop signals all goroutines and waits for in-flight batches to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	slog.Info("notification worker stopped")
}

func (w *Worker) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	logger := slog.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}

		// Keep draining while batches come back full.
		for w.processBatch(ctx, logger) == w.config.BatchSize {
			if ctx.Err() != nil || w.stopping() {
				break
			}
		}
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// processBatch claims and delivers one batch. It returns the batch size.
func (w *Worker) processBatch(ctx context.Context, logger *slog.Logger) int {
	items, err := w.repo.FetchPendingNotifications(ctx, w.config.BatchSize)
	if err != nil {
		logger.Error("failed to fetch pending notifications", "error", err)
		return 0
	}
	if len(items) == 0 {
		return 0
	}

	logger.Debug("processing notifications", "count", len(items))
	queueClaimed.Add(float64(len(items)))

	for _, item := range items {
		outcome, elapsed := w.deliver(ctx, logger, item)
		observeDelivery(item.Channel, outcome, elapsed)
	}
	return len(items)
}

// deliver sends one claimed item and settles its queue status.
func (w *Worker) deliver(ctx context.Context, logger *slog.Logger, item *QueueItem) (deliveryOutcome, time.Duration) {
	logger = logger.With("item_id", item.ID, "channel", item.Channel)

	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	start := w.now()
	err := w.dispatcher.Deliver(sendCtx, item.UserID, Message{Subject: item.Subject, Body: item.Body}, item.Channel)
	elapsed := w.now().Sub(start)
	cancel()

	switch {
	case err == nil:
		if markErr := w.repo.MarkAsSent(ctx, item.ID); markErr != nil {
			logger.Error("failed to mark as sent", "error", markErr)
		}
		logger.Debug("notification sent", "duration", elapsed)
		return outcomeSent, elapsed

	case isDeliveryError(err):
		// Preference turned off or target removed after the item was queued.
		logger.Debug("notification undeliverable", "reason", err)
		w.fail(ctx, logger, item, err)
		return outcomeSkipped, elapsed

	case !isRetryable(err):
		logger.Warn("notification failed permanently", "error", err)
		w.fail(ctx, logger, item, err)
		return outcomeFailed, elapsed

	case w.config.Retry.Exhausted(item.Attempts+1, item.MaxAttempts):
		logger.Warn("notification failed, attempts exhausted", "attempts", item.Attempts+1, "error", err)
		w.fail(ctx, logger, item, fmt.Errorf("max attempts exceeded: %w", err))
		return outcomeFailed, elapsed
	}

	next := w.now().Add(w.config.Retry.Backoff(item.Attempts + 1))
	if markErr := w.repo.MarkForRetry(ctx, item.ID, err, next); markErr != nil {
		logger.Error("failed to mark for retry", "error", markErr)
	}
	logger.Info("notification scheduled for retry",
		"attempt", item.Attempts+1,
		"next_attempt", next,
		"error", err,
	)
	return outcomeRetry, elapsed
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, item *QueueItem, err error) {
	if markErr := w.repo.MarkAsFailed(ctx, item.ID, err); markErr != nil {
		logger.Error("failed to mark as failed", "error", markErr)
	}
}
