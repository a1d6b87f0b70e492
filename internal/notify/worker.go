package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mwestberg/physiobook/internal/observability/metrics"
	"github.com/mwestberg/physiobook/pkg/logging"
)

const (
	receiveBatchSize   = 10
	receiveWaitSeconds = 20
	receiveErrorDelay  = 5 * time.Second
)

// Worker drains the email queue and delivers through the configured
// sender. Failed sends are not deleted, so the queue redelivers them.
type Worker struct {
	queue   Queue
	sender  EmailSender
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
	count   int
	wg      sync.WaitGroup
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*Worker)

// WithWorkerCount sets how many consumers poll the queue concurrently.
func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.count = n
		}
	}
}

// NewWorker creates an email delivery worker.
func NewWorker(queue Queue, sender EmailSender, m *metrics.BookingMetrics, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if queue == nil {
		panic("notify: worker queue cannot be nil")
	}
	if sender == nil {
		panic("notify: worker sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		queue:   queue,
		sender:  sender,
		metrics: m,
		logger:  logger,
		count:   1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the consumers. It returns immediately; use Wait for
// shutdown.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.count; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consume(ctx)
		}()
	}
}

// Wait blocks until all consumers have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("email queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveErrorDelay):
			}
			continue
		}

		for _, msg := range msgs {
			w.process(ctx, msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg QueueMessage) {
	var job EmailJob
	if err := json.Unmarshal([]byte(msg.Body), &job); err != nil {
		// A malformed payload will never succeed; drop it.
		w.logger.Error("dropping malformed email job", "error", err, "message_id", msg.ID)
		w.metrics.ObserveEmail("unknown", "malformed")
		if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			w.logger.Error("failed to delete malformed email job", "error", err)
		}
		return
	}

	if err := w.sender.Send(ctx, job.Message); err != nil {
		w.logger.Error("email delivery failed, leaving for redelivery",
			"error", err,
			"template", job.Template,
			"message_id", msg.ID,
		)
		w.metrics.ObserveEmail(job.Template, "error")
		return
	}
	w.metrics.ObserveEmail(job.Template, "sent")

	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		w.logger.Error("failed to delete delivered email job", "error", err, "message_id", msg.ID)
	}
}
