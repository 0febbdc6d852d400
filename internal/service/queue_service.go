package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, staleAfter time.Duration) (int64, error)
}

type QueueKeys struct {
	Queue      string
	Processing string
	// Claims is a hash of job id -> unix time of the claim.
	Claims string
}

// redisQueue is a reliable run queue on Redis lists.
// Claim: BRPOPLPUSH queue -> processing, then record the claim time.
// Ack:   LREM from processing and drop the claim.
// Reap:  claims older than staleAfter go back to the queue.
type redisQueue struct {
	rdb  *redis.Client
	keys QueueKeys
	now  func() time.Time
}

func NewRedisQueue(rdb *redis.Client, keys QueueKeys) Queue {
	return &redisQueue{rdb: rdb, keys: keys, now: time.Now}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.keys.Queue, jobID).Err()
}

// ClaimBlocking waits up to timeout for a job id; redis.Nil means none arrived.
// A timeout <= 0 blocks until an id arrives or ctx ends.
func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout < 0 {
		timeout = 0
	}
	id, err := q.rdb.BRPopLPush(ctx, q.keys.Queue, q.keys.Processing, timeout).Result()
	if err != nil {
		return "", err
	}
	if err := q.rdb.HSet(ctx, q.keys.Claims, id, q.now().Unix()).Err(); err != nil {
		// without a claim record the reaper treats the id as fresh, so it is not lost
		return "", err
	}
	return id, nil
}

func (q *redisQueue) Ack(ctx context.Context, jobID string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.keys.Processing, 1, jobID)
		p.HDel(ctx, q.keys.Claims, jobID)
		return nil
	})
	return err
}

// RequeueStale moves claims older than staleAfter back to the queue
// (at-least-once delivery). Ids found without a claim time are stamped now
// and left alone for one more period.
func (q *redisQueue) RequeueStale(ctx context.Context, staleAfter time.Duration) (int64, error) {
	ids, err := q.rdb.LRange(ctx, q.keys.Processing, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	cutoff := q.now().Add(-staleAfter)
	var moved int64
	for _, id := range ids {
		claimed, err := q.rdb.HGet(ctx, q.keys.Claims, id).Result()
		if errors.Is(err, redis.Nil) {
			if err := q.rdb.HSetNX(ctx, q.keys.Claims, id, q.now().Unix()).Err(); err != nil {
				return moved, fmt.Errorf("stamp claim %s: %w", id, err)
			}
			continue
		}
		if err != nil {
			return moved, err
		}
		if !claimStale(claimed, cutoff) {
			continue
		}

		_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.keys.Processing, 1, id)
			p.RPush(ctx, q.keys.Queue, id)
			p.HDel(ctx, q.keys.Claims, id)
			return nil
		})
		if err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func claimStale(claimedUnix string, cutoff time.Time) bool {
	sec, err := strconv.ParseInt(claimedUnix, 10, 64)
	if err != nil {
		return true
	}
	return time.Unix(sec, 0).Before(cutoff)
}
