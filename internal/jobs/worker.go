package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// WorkerConfig contains configuration for a background worker
type WorkerConfig struct {
	Name                string
	PollInterval        time.Duration
	BatchSize           int
	StaleThreshold      time.Duration
	RecoverStaleOnStart bool
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults
func DefaultWorkerConfig(name string) WorkerConfig {
	return WorkerConfig{
		Name:                name,
		PollInterval:        5 * time.Second,
		BatchSize:           10,
		StaleThreshold:      10 * time.Minute,
		RecoverStaleOnStart: true,
	}
}

// Source is the part of Queue a Worker drives.
type Source interface {
	Dequeue(ctx context.Context, batchSize int) ([]Job, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, job Job, cause error) error
	RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int, error)
}

// Handler processes one job. A non-nil error schedules a retry.
type Handler func(ctx context.Context, job Job) error

// Worker polls a Source and runs Handler for every claimed job.
type Worker struct {
	config  WorkerConfig
	log     *slog.Logger
	source  Source
	handle  Handler
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new background worker
func NewWorker(config WorkerConfig, source Source, handle Handler, log *slog.Logger) *Worker {
	def := DefaultWorkerConfig(config.Name)
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.StaleThreshold <= 0 {
		config.StaleThreshold = def.StaleThreshold
	}

	return &Worker{
		config: config,
		log:    log.With(slog.String("worker", config.Name)),
		source: source,
		handle: handle,
	}
}

// Start launches the polling loop. It is a no-op when already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if w.config.RecoverStaleOnStart {
		if _, err := w.source.RecoverStaleJobs(ctx, w.config.StaleThreshold); err != nil {
			w.log.Warn("stale job recovery failed", slog.String("error", err.Error()))
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.log.Info("worker starting",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", w.config.BatchSize))

	go w.run(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current batch, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		w.log.Info("worker stopped gracefully")
	case <-ctx.Done():
		w.log.Warn("worker stop timeout, forcing shutdown")
	}
	return nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("process batch failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ProcessBatch claims and handles one batch, returning how many jobs it saw.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.source.Dequeue(ctx, w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		w.processed.Add(1)
		if herr := w.handle(ctx, job); herr != nil {
			w.failed.Add(1)
			if err := w.source.MarkFailed(ctx, job, herr); err != nil {
				w.log.Error("mark job failed", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
			}
			continue
		}
		w.succeeded.Add(1)
		if err := w.source.MarkCompleted(ctx, job.ID); err != nil {
			w.log.Error("mark job completed", slog.String("job_id", job.ID.String()), slog.String("error", err.Error()))
		}
	}
	return len(jobs), nil
}

// Metrics returns current worker metrics
func (w *Worker) Metrics() WorkerMetrics {
	return WorkerMetrics{
		Processed: w.processed.Load(),
		Succeeded: w.succeeded.Load(),
		Failed:    w.failed.Load(),
	}
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WorkerMetrics contains worker metrics
type WorkerMetrics struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
