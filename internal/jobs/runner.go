// Package jobs executes processing attempts in the background.
package jobs

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hpungsan/bundler/internal/db"
	"github.com/hpungsan/bundler/internal/llm"
	"github.com/hpungsan/bundler/internal/prompt"
)

// ErrQueueFull is returned by Enqueue when the queue has no room. The job stays
// pending and is picked up by the next sweep.
var ErrQueueFull = stderrors.New("job queue full")

// Config configures a Runner.
type Config struct {
	Workers       int           // default 2
	QueueSize     int           // default 100
	SweepInterval time.Duration // default 30s
	Logger        *slog.Logger
}

// Runner is a fixed pool of workers draining a queue of job ids.
type Runner struct {
	db     *sql.DB
	client llm.Client
	logger *slog.Logger

	workers       int
	sweepInterval time.Duration

	queue chan string
	wg    sync.WaitGroup
}

// NewRunner creates a runner. Call Start to begin processing.
func NewRunner(database *sql.DB, client llm.Client, cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = 30 * time.Second
	}

	return &Runner{
		db:            database,
		client:        client,
		logger:        logger.With("component", "jobs"),
		workers:       workers,
		sweepInterval: sweep,
		queue:         make(chan string, queueSize),
	}
}

// Enqueue adds a job id to the queue without blocking.
func (r *Runner) Enqueue(jobID string) error {
	select {
	case r.queue <- jobID:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, jobID)
	}
}

// QueueDepth returns the number of queued job ids.
func (r *Runner) QueueDepth() int {
	return len(r.queue)
}

// Start recovers jobs left in processing, starts the workers and the sweeper, and
// returns. Workers stop when ctx is cancelled; use Wait to block until they have.
func (r *Runner) Start(ctx context.Context) error {
	n, err := db.ResetProcessingJobs(ctx, r.db)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("recovered interrupted jobs", "count", n)
	}

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
	r.wg.Add(1)
	go r.sweepLoop(ctx)

	r.logger.Info("job runner started", "workers", r.workers, "queue_size", cap(r.queue))
	return nil
}

// Wait blocks until all workers and the sweeper have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) work(ctx context.Context, n int) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			if err := r.RunJob(ctx, id); err != nil {
				r.logger.Error("job run failed", "worker", n, "job_id", id, "error", err)
			}
		}
	}
}

func (r *Runner) sweepLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep re-queues pending jobs that missed the queue, up to its free capacity.
func (r *Runner) sweep(ctx context.Context) {
	room := cap(r.queue) - len(r.queue)
	if room <= 0 {
		return
	}
	ids, err := db.ListPendingJobIDs(ctx, r.db, room)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("sweep failed", "error", err)
		}
		return
	}
	for _, id := range ids {
		if r.Enqueue(id) != nil {
			return
		}
	}
	if len(ids) > 0 {
		r.logger.Debug("swept pending jobs", "count", len(ids))
	}
}

// RunJob claims and executes one job. A job that is no longer pending is skipped.
// Failures of the job itself are recorded on the job; the returned error is only set
// when the job's state could not be updated.
func (r *Runner) RunJob(ctx context.Context, jobID string) error {
	claimed, err := db.ClaimJob(ctx, r.db, jobID, time.Now().Unix())
	if err != nil {
		return err
	}
	if !claimed {
		r.logger.Debug("job already claimed", "job_id", jobID)
		return nil
	}

	start := time.Now()
	logger := r.logger.With("job_id", jobID)

	result, err := r.execute(ctx, jobID)
	// State updates must land even if ctx was cancelled mid-run.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("job interrupted, returning to pending")
			return db.ReleaseJob(bg, r.db, jobID)
		}
		logger.Warn("job failed", "error", err, "duration", time.Since(start))
		return db.FailJob(bg, r.db, jobID, err.Error(), time.Now().Unix())
	}

	logger.Info("job completed", "duration", time.Since(start), "result_chars", len(result))
	return db.CompleteJob(bg, r.db, jobID, result, time.Now().Unix())
}

// execute sends the attempt's frozen prompt to the model, with the extracted text
// of the bundle's items in place of the placeholder preview.
func (r *Runner) execute(ctx context.Context, jobID string) (string, error) {
	job, err := db.GetJob(ctx, r.db, jobID)
	if err != nil {
		return "", err
	}
	a, err := db.GetAttempt(ctx, r.db, job.AttemptID)
	if err != nil {
		return "", err
	}
	b, err := db.GetBundle(ctx, r.db, a.BundleID)
	if err != nil {
		return "", err
	}
	items, err := db.GetContentByIDs(ctx, r.db, b.ContentIDs)
	if err != nil {
		return "", err
	}
	texts, err := db.GetContentTexts(ctx, r.db, b.ContentIDs)
	if err != nil {
		return "", err
	}

	user, ok := prompt.Expand(a.FinalPrompt, items, texts)
	if !ok {
		r.logger.Warn("content preview not found in attempt prompt, sending it as recorded",
			"job_id", jobID, "attempt_id", a.ID)
	}
	return r.client.Complete(ctx, llm.Prompt{System: a.SystemPrompt, User: user})
}
