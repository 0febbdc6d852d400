package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"place-discovery-service/internal/service"
)

// JobProcessor runs a single job by id.
type JobProcessor interface {
	Process(ctx context.Context, jobID string) error
}

// Pool runs at most `workers` jobs at a time.
type Pool struct {
	queue      service.Queue
	processor  JobProcessor
	workers    int
	claimDelay time.Duration
	errBackoff time.Duration
	log        logrus.FieldLogger
}

func NewPool(queue service.Queue, processor JobProcessor, workers int, log logrus.FieldLogger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{
		queue:      queue,
		processor:  processor,
		workers:    workers,
		claimDelay: 5 * time.Second,
		errBackoff: time.Second,
		log:        log,
	}
}

// Run claims job ids until ctx is cancelled, then waits for in-flight jobs.
// Jobs run on a context detached from ctx so that shutdown does not fail
// them halfway.
func (p *Pool) Run(ctx context.Context) {
	p.log.WithField("workers", p.workers).Info("worker pool started")

	jobCh := make(chan string)
	jobCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			log := p.log.WithField("worker", n)
			for jobID := range jobCh {
				if err := p.processor.Process(jobCtx, jobID); err != nil {
					if errors.Is(err, ErrNotStarted) {
						// still queued: leave the claim for the reaper to hand out again
						log.WithField("job_id", jobID).WithError(err).Warn("job not started, left for redelivery")
						continue
					}
					log.WithField("job_id", jobID).WithError(err).Warn("process job")
				}

				// Past this point the job is terminal, was skipped, or can
				// never run (unknown or malformed id).
				if err := p.queue.Ack(jobCtx, jobID); err != nil {
					log.WithField("job_id", jobID).WithError(err).Error("ack job")
				}
			}
		}(i + 1)
	}

	defer func() {
		close(jobCh)
		wg.Wait()
		p.log.Info("worker pool stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		jobID, err := p.queue.ClaimBlocking(ctx, p.claimDelay)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.log.WithError(err).Warn("claim job")
			select {
			case <-ctx.Done():
			case <-time.After(p.errBackoff):
			}
			continue
		}

		select {
		case jobCh <- jobID:
		case <-ctx.Done():
			// claimed but not started: the reaper hands it out again
			return
		}
	}
}
