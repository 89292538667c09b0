// Package worker is the long-lived process that pulls jobs from the
// broker and runs the orchestrator's background stages: one task slot
// per job, soft/hard timeouts, bounded retry with exponential backoff on
// storage/catalog errors (grounded on github.com/cenkalti/backoff/v4,
// which appears throughout the example corpus's retrieved manifests —
// see DESIGN.md — as the idiomatic replacement for the teacher's
// hand-rolled sleepRetry loop).
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"dupligone/internal/config"
	"dupligone/internal/dgerr"
	"dupligone/internal/logging"
	"dupligone/internal/pipeline"
	"dupligone/internal/queue"
)

// maxAttempts bounds the worker's own retry loop for a single job.
const maxAttempts = 3

type Runtime struct {
	cfg    config.Config
	broker *queue.Broker
	pipe   *pipeline.Orchestrator
	log    *zap.Logger
}

func New(cfg config.Config, broker *queue.Broker, pipe *pipeline.Orchestrator) *Runtime {
	return &Runtime{cfg: cfg, broker: broker, pipe: pipe, log: logging.Named("worker")}
}

// Run loops until ctx is cancelled, dequeuing and executing one job at a
// time.
func (r *Runtime) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := r.broker.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			r.log.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		r.runJob(ctx, *job)
	}
}

func (r *Runtime) runJob(ctx context.Context, job queue.Job) {
	log := r.log.With(zap.String("job_id", job.JobID), zap.String("session_id", job.SessionID), zap.String("type", string(job.Type)))

	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobHardTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.executeWithRetry(jobCtx, job)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error("job failed", zap.Error(err))
			_ = r.pipe.FailSession(context.Background(), job.SessionID, err.Error())
		} else {
			log.Info("job completed")
		}
	case <-time.After(r.cfg.JobSoftTimeout):
		log.Warn("job exceeded soft timeout, still running")
		select {
		case err := <-done:
			if err != nil {
				log.Error("job failed after soft-timeout warning", zap.Error(err))
				_ = r.pipe.FailSession(context.Background(), job.SessionID, err.Error())
			}
		case <-jobCtx.Done():
			log.Error("job exceeded hard timeout, aborting")
			_ = r.pipe.FailSession(context.Background(), job.SessionID, "job exceeded hard time limit")
		}
	case <-jobCtx.Done():
		log.Error("job exceeded hard timeout, aborting")
		_ = r.pipe.FailSession(context.Background(), job.SessionID, "job exceeded hard time limit")
	}
}

// executeWithRetry runs the job body, retrying storage/catalog errors with
// exponential backoff up to maxAttempts. ValidationError and
// ProcessingError are not retried — they are either caller-facing or
// already handled per-image inside the orchestrator.
func (r *Runtime) executeWithRetry(ctx context.Context, job queue.Job) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1)
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := r.execute(ctx, job)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (r *Runtime) execute(ctx context.Context, job queue.Job) error {
	switch job.Type {
	case queue.JobProcessImages:
		if err := r.pipe.ProcessImages(ctx, job.SessionID); err != nil {
			return err
		}
		return r.enqueueClustering(ctx, job.SessionID)
	case queue.JobClusterImages:
		return r.pipe.ClusterImages(ctx, job.SessionID)
	default:
		return dgerr.Validation("unknown job type %q", job.Type)
	}
}

func (r *Runtime) enqueueClustering(ctx context.Context, sessionID string) error {
	return r.broker.Enqueue(ctx, queue.Job{
		JobID:      sessionID + "-cluster",
		Type:       queue.JobClusterImages,
		SessionID:  sessionID,
		EnqueuedAt: time.Now().UTC(),
	})
}

func isRetryable(err error) bool {
	var storageErr *dgerr.StorageError
	var catalogErr *dgerr.CatalogError
	return errors.As(err, &storageErr) || errors.As(err, &catalogErr)
}
