package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/internal/observability"
	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/repositories"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/datalogs"
)

// JobRunner executes one claimed job
type JobRunner interface {
	Run(ctx context.Context, job *models.RetrievalJob) ([]*datalogs.Result, error)
}

// PoolConfig holds configuration for the Pool
type PoolConfig struct {
	Concurrency  int           // Number of concurrent workers
	PollInterval time.Duration // Sleep between polls when the queue is empty
	MaxAttempts  int           // Attempts before a job is marked failed
	StaleAfter   time.Duration // Processing time after which a job is presumed lost
}

// DefaultPoolConfig returns the default configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:  2,
		PollInterval: time.Second,
		MaxAttempts:  3,
		StaleAfter:   30 * time.Minute,
	}
}

// Pool runs retrieval jobs from the queue on a fixed set of workers.
// Delivery is at least once: a job is acked only after every log type
// succeeded and is otherwise nacked for another attempt.
type Pool struct {
	queue   repositories.RetrievalJobQueue
	runner  JobRunner
	metrics observability.Metrics
	logger  *zap.Logger
	cfg     PoolConfig

	wg      sync.WaitGroup
	quit    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewPool creates a new worker pool
func NewPool(queue repositories.RetrievalJobQueue, runner JobRunner, metrics observability.Metrics, logger *zap.Logger, cfg PoolConfig) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		queue:   queue,
		runner:  runner,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		quit:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the background workers and the stale job reaper
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("retrieval pool already started")
	}

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	if p.cfg.StaleAfter > 0 {
		p.wg.Add(1)
		go p.reaper()
	}

	p.started = true
	p.logger.Info("started retrieval pool",
		zap.Int("worker_count", p.cfg.Concurrency),
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Int("max_attempts", p.cfg.MaxAttempts))

	return nil
}

// Stop stops polling and waits for in-flight jobs to finish. Jobs still
// running after timeout are cancelled; they stay in processing and are
// picked up again once stale.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("retrieval pool not started")
	}
	p.started = false
	p.mu.Unlock()

	p.logger.Info("stopping retrieval pool")
	close(p.quit)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("retrieval pool stopped gracefully")
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("retrieval pool stop timeout after %v", timeout)
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("retrieval worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-p.quit:
			p.logger.Debug("retrieval worker stopped", zap.Int("worker_id", id))
			return
		default:
		}

		claimed, err := p.ProcessNext(p.ctx)
		if err != nil {
			p.logger.Error("failed to process retrieval job", zap.Int("worker_id", id), zap.Error(err))
		}
		if claimed && err == nil {
			continue
		}

		select {
		case <-p.quit:
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// ProcessNext claims and runs one job. It reports whether a job was claimed;
// the returned error covers queue failures only, job failures are recorded
// on the job itself.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNoJobs) {
			return false, nil
		}
		return false, fmt.Errorf("dequeue: %w", err)
	}

	logger := p.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("member_id", job.MemberID.String()),
		zap.Int("attempt", job.Attempts))
	logger.Info("retrieval job started")

	runCtx, stopRun := context.WithCancel(observability.WithLogger(ctx, logger))
	heartbeatDone := p.keepClaim(runCtx, stopRun, job, logger)

	began := time.Now()
	_, runErr := p.runner.Run(runCtx, job)
	elapsed := time.Since(began)
	stopRun()
	<-heartbeatDone

	if runErr == nil {
		if err := p.queue.Ack(ctx, job.ID, job.Attempts); err != nil {
			if errors.Is(err, repositories.ErrJobNotFound) {
				logger.Warn("retrieval job claim lost before ack", zap.Duration("duration", elapsed))
				return true, nil
			}
			return true, fmt.Errorf("ack job %s: %w", job.ID, err)
		}
		p.metrics.RecordJob(string(models.JobStatusSucceeded), elapsed)
		logger.Info("retrieval job succeeded", zap.Duration("duration", elapsed))
		return true, nil
	}

	maxAttempts := p.cfg.MaxAttempts
	if isPermanent(runErr) {
		maxAttempts = job.Attempts
	}
	status, err := p.queue.Nack(ctx, job.ID, job.Attempts, runErr.Error(), maxAttempts)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			logger.Warn("retrieval job claim lost before nack", zap.Error(runErr))
			return true, nil
		}
		return true, fmt.Errorf("nack job %s: %w", job.ID, err)
	}
	p.metrics.RecordJob(string(status), elapsed)

	if status == models.JobStatusFailed {
		logger.Error("retrieval job failed", zap.Duration("duration", elapsed), zap.Error(runErr))
	} else {
		logger.Warn("retrieval job will be retried", zap.Duration("duration", elapsed), zap.Error(runErr))
	}
	return true, nil
}

// heartbeatInterval keeps several heartbeats inside one StaleAfter window
func (p *Pool) heartbeatInterval() time.Duration {
	if p.cfg.StaleAfter <= 0 {
		return 0
	}
	return p.cfg.StaleAfter / 3
}

// keepClaim refreshes the job's heartbeat until ctx ends. If the claim is
// lost the run is cancelled so two workers never upload for the same job.
// The returned channel closes when the heartbeat goroutine exits.
func (p *Pool) keepClaim(ctx context.Context, cancel context.CancelFunc, job *models.RetrievalJob, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	interval := p.heartbeatInterval()
	if interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := p.queue.Heartbeat(ctx, job.ID, job.Attempts)
			switch {
			case err == nil:
			case errors.Is(err, repositories.ErrJobNotFound):
				logger.Warn("retrieval job claim lost, cancelling run")
				cancel()
				return
			case ctx.Err() != nil:
				return
			default:
				logger.Warn("retrieval job heartbeat failed", zap.Error(err))
			}
		}
	}()
	return done
}

func (p *Pool) reaper() {
	defer p.wg.Done()

	interval := p.cfg.StaleAfter / 2
	if interval < p.cfg.PollInterval {
		interval = p.cfg.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.Reap(p.ctx)
		select {
		case <-p.quit:
			return
		case <-ticker.C:
		}
	}
}

// Reap releases jobs whose worker vanished and refreshes the queue depth gauge
func (p *Pool) Reap(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.cfg.StaleAfter)
	if _, err := p.queue.RecoverStale(ctx, cutoff, p.cfg.MaxAttempts); err != nil {
		p.logger.Error("failed to recover stale retrieval jobs", zap.Error(err))
	}

	n, err := p.queue.CountPending(ctx)
	if err != nil {
		p.logger.Error("failed to count pending retrieval jobs", zap.Error(err))
		return
	}
	p.metrics.SetQueueDepth(n)
}

// isPermanent reports failures that another attempt cannot fix
func isPermanent(err error) bool {
	return services.IsUnauthorizedError(err) ||
		services.IsNotFoundError(err) ||
		services.IsValidationError(err)
}
