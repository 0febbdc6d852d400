package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/service"
)

// Reaper periodically returns stale queue claims (crashed or restarted
// workers) to the queue.
type Reaper struct {
	queue      service.Queue
	interval   time.Duration
	staleAfter time.Duration
	log        logrus.FieldLogger
}

func NewReaper(queue service.Queue, interval, staleAfter time.Duration, log logrus.FieldLogger) *Reaper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reaper{queue: queue, interval: interval, staleAfter: staleAfter, log: log}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Reaper) Tick(ctx context.Context) {
	n, err := r.queue.RequeueStale(ctx, r.staleAfter)
	if err != nil {
		r.log.WithError(err).Warn("requeue stale claims")
		return
	}
	if n > 0 {
		r.log.WithField("requeued", n).Info("requeued stale jobs")
	}
}
