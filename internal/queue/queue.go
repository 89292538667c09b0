// Package queue is the durable job broker between the HTTP handlers and
// the worker runtime. Built directly on github.com/go-redis/redis, the
// client storj-storj's go.mod carries, using a plain list as a FIFO
// queue — the smallest primitive that gives each worker exactly one
// in-flight job at a time.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"go.uber.org/zap"

	"dupligone/internal/dgerr"
	"dupligone/internal/logging"
)

type JobType string

const (
	JobProcessImages JobType = "process_images"
	JobClusterImages JobType = "cluster_images"
)

type Job struct {
	JobID     string    `json:"job_id"`
	Type      JobType   `json:"type"`
	SessionID string    `json:"session_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Attempt   int       `json:"attempt"`
}

const queueKey = "dupligone:jobs"

type Broker struct {
	client *redis.Client
}

func New(url string) (*Broker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, dgerr.Storage("parse queue url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping().Err(); err != nil {
		return nil, dgerr.Storage("ping queue", err)
	}
	return &Broker{client: client}, nil
}

// Enqueue pushes a job onto the tail of the FIFO queue. Called from the
// upload path to queue processing, and by the worker to queue clustering
// once processing has finished.
func (b *Broker) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return dgerr.Storage("marshal job", err)
	}
	if err := b.client.WithContext(ctx).RPush(queueKey, payload).Err(); err != nil {
		return dgerr.Storage("enqueue job", err)
	}
	return nil
}

// Dequeue blocks up to timeout for one job: a worker holds at most one
// in-flight job at a time, pulled with a blocking pop rather than a
// long-poll loop.
func (b *Broker) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := b.client.WithContext(ctx).BLPop(timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, dgerr.Storage("dequeue job", err)
	}
	if len(res) < 2 {
		return nil, dgerr.Storage("dequeue job", fmt.Errorf("unexpected BLPOP reply shape"))
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, dgerr.Storage("decode job", err)
	}
	return &job, nil
}

// Requeue puts a job back at the tail with its attempt counter bumped. The
// worker retries failed jobs in-process and does not call it.
func (b *Broker) Requeue(ctx context.Context, job Job) error {
	job.Attempt++
	logging.Named("queue").Warn("requeueing job",
		zap.String("job_id", job.JobID),
		zap.Int("attempt", job.Attempt),
	)
	return b.Enqueue(ctx, job)
}

func (b *Broker) Close() error {
	return b.client.Close()
}
