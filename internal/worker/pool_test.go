package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"place-discovery-service/internal/worker"
)

type chanQueue struct {
	ids chan string

	mu     sync.Mutex
	acked  []string
	reaped int
}

func (q *chanQueue) Enqueue(_ context.Context, jobID string) error {
	q.ids <- jobID
	return nil
}

func (q *chanQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	select {
	case id := <-q.ids:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return "", redis.Nil
	}
}

func (q *chanQueue) Ack(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, jobID)
	return nil
}

func (q *chanQueue) RequeueStale(context.Context, time.Duration) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reaped++
	return 0, nil
}

func (q *chanQueue) ackedIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.acked...)
}

type countingProcessor struct {
	mu      sync.Mutex
	seen    map[string]int
	active  int
	maxSeen int
	fail    map[string]error
}

func (p *countingProcessor) Process(_ context.Context, jobID string) error {
	p.mu.Lock()
	p.seen[jobID]++
	if err := p.fail[jobID]; err != nil {
		p.mu.Unlock()
		return err
	}
	p.active++
	if p.active > p.maxSeen {
		p.maxSeen = p.active
	}
	p.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	return nil
}

func TestPool_ProcessesAndAcksEveryJob(t *testing.T) {
	q := &chanQueue{ids: make(chan string, 16)}
	proc := &countingProcessor{seen: map[string]int{}}
	ids := []string{"a", "b", "c", "d", "e", "f"}
	for _, id := range ids {
		_ = q.Enqueue(context.Background(), id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.NewPool(q, proc, 2, quietLogger()).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(q.ackedIDs()) == len(ids) }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, ids, q.ackedIDs())
	proc.mu.Lock()
	defer proc.mu.Unlock()
	for _, id := range ids {
		assert.Equal(t, 1, proc.seen[id], id)
	}
	assert.LessOrEqual(t, proc.maxSeen, 2)
}

func TestPool_LeavesNotStartedJobClaimed(t *testing.T) {
	q := &chanQueue{ids: make(chan string, 4)}
	proc := &countingProcessor{
		seen: map[string]int{},
		fail: map[string]error{
			"db-down": fmt.Errorf("%w: load job: connection refused", worker.ErrNotStarted),
			"broken":  errors.New("place search failed"),
		},
	}
	for _, id := range []string{"db-down", "broken", "ok"} {
		_ = q.Enqueue(context.Background(), id)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.NewPool(q, proc, 1, quietLogger()).Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(q.ackedIDs()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, []string{"broken", "ok"}, q.ackedIDs())
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 1, proc.seen["db-down"])
}

func TestReaper_Tick(t *testing.T) {
	q := &chanQueue{ids: make(chan string, 1)}
	worker.NewReaper(q, time.Minute, time.Minute, quietLogger()).Tick(context.Background())

	assert.Equal(t, 1, q.reaped)
}
