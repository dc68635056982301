package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/akiraliebert/event-driven-notification-system/internal/config"
	"github.com/akiraliebert/event-driven-notification-system/internal/queue"
)

// pollInterval is how long an idle worker sleeps when every ready queue
// is empty.
const pollInterval = 500 * time.Millisecond

// promoteInterval is how often due delayed items move to ready queues.
const promoteInterval = time.Second

// requeueDelay defers a work item whose attempt could not run at all,
// typically because the store was briefly unreachable.
const requeueDelay = 10 * time.Second

// Worker drains the work queue with a pool of goroutines and runs the
// promote loop that makes delayed items visible.
type Worker struct {
	engine *Engine
	queue  queue.Queue
	cfg    config.Delivery
	logger *logrus.Entry
}

// NewWorker creates a delivery worker pool.
func NewWorker(engine *Engine, q queue.Queue, cfg config.Delivery, logger *logrus.Entry) *Worker {
	return &Worker{engine: engine, queue: q, cfg: cfg, logger: logger}
}

// Run starts the pool and blocks until ctx is cancelled and every
// in-flight attempt has finished.
func (w *Worker) Run(ctx context.Context) {
	w.logger.WithField("concurrency", w.cfg.Concurrency).Info("Delivery worker started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promoteLoop(ctx)
	}()

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.deliverLoop(ctx, id)
		}(i)
	}

	wg.Wait()
	w.logger.Info("Delivery worker stopped")
}

func (w *Worker) deliverLoop(ctx context.Context, id int) {
	logger := w.logger.WithField("worker_id", id)
	for {
		if ctx.Err() != nil {
			return
		}

		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Error("Failed to dequeue work item")
			sleep(ctx, pollInterval)
			continue
		}
		if item == nil {
			sleep(ctx, pollInterval)
			continue
		}

		if err := w.engine.Deliver(ctx, *item); err != nil {
			logger.WithError(err).WithField("notification_id", item.NotificationID).
				Error("Delivery attempt could not run, requeueing")
			eta := time.Now().UTC().Add(requeueDelay)
			if err := w.queue.Enqueue(ctx, *item, &eta); err != nil {
				// The sweeper recovers rows whose work item is lost.
				logger.WithError(err).WithField("notification_id", item.NotificationID).
					Error("Failed to requeue work item, leaving for sweeper")
			}
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			promoted, err := w.queue.PromoteDelayed(ctx, now)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.WithError(err).Error("Failed to promote delayed work items")
				}
				continue
			}
			if promoted > 0 {
				w.logger.WithField("promoted", promoted).Debug("Promoted delayed work items")
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
