// Package queue is the worker's connection to the shared work queue: a
// single long-lived Redis client doing a blocking left-pop against the
// submission_queue list. The worker never pushes.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kwant-dbg/codejudge/internal/constants"
	"github.com/redis/go-redis/v9"
)

// Queue wraps the worker's Redis connection. Construct once at startup
// with Dial; the worker holds it for its entire lifetime.
type Queue struct {
	client *redis.Client
}

// Dial connects to host:port, performs the AUTH exchange when password is
// non-empty, and verifies reachability with a PING. Any failure here is
// fatal per the bootstrap contract, including authentication failure.
func Dial(host string, port int, password string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect queue: %w", err)
	}
	return &Queue{client: client}, nil
}

// PopSubmission performs a blocking left-pop on submission_queue with no
// timeout and returns the dequeued submission id. It blocks until a
// value is available or ctx is cancelled.
func (q *Queue) PopSubmission(ctx context.Context) (string, error) {
	result, err := q.client.BLPop(ctx, 0, constants.SubmissionQueueKey).Result()
	if err != nil {
		return "", err
	}
	// BLPOP replies with [key, value]; any other shape is the caller's cue
	// to ignore this pop and loop, per the queue protocol's tolerance for
	// malformed replies.
	if len(result) != 2 {
		return "", fmt.Errorf("malformed blpop reply: %v", result)
	}
	return result[1], nil
}
