package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/reelimport/internal/models"
	"github.com/raphaelgruber/reelimport/internal/provider"
	"golang.org/x/sync/errgroup"
)

// Store is the durable side of the queue.
type Store interface {
	Claim(ctx context.Context, kinds []models.JobKind, now time.Time) (*models.ImportJob, error)
	CompleteJob(ctx context.Context, id string) error
	RetryJobAt(ctx context.Context, id string, at time.Time, msg string) error
	DiscardJob(ctx context.Context, id, msg string) error
	CancelJob(ctx context.Context, id, msg string) error
	RequeueExecuting(ctx context.Context) (int, error)
}

// Handler executes one job attempt.
type Handler interface {
	Handle(ctx context.Context, job models.ImportJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job models.ImportJob) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job models.ImportJob) error { return f(ctx, job) }

// Discarder is implemented by handlers that need to react when a job of
// theirs is discarded.
type Discarder interface {
	OnDiscard(ctx context.Context, job models.ImportJob, err error)
}

// Recorder receives job timings and outcome counts.
type Recorder interface {
	RecordTiming(op string, d time.Duration)
	Incr(name string)
}

// Pool is a set of workers that claim jobs of the listed kinds.
type Pool struct {
	Name    string
	Kinds   []models.JobKind
	Workers int
}

// Runner owns the worker pools.
type Runner struct {
	store    Store
	backoff  BackoffFunc
	poll     time.Duration
	timeout  time.Duration
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[models.JobKind]Handler
	pools    []Pool
}

// Option customises a Runner.
type Option func(*Runner)

// WithPollInterval sets how long an idle worker sleeps between claims.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) { r.poll = d }
}

// WithJobTimeout bounds a single attempt.
func WithJobTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithBackoff sets the retry delay policy.
func WithBackoff(b BackoffFunc) Option {
	return func(r *Runner) { r.backoff = b }
}

// WithRecorder reports timings and counts to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner over store.
func NewRunner(store Store, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		backoff:  ExponentialBackoff(5*time.Second, 10*time.Minute),
		poll:     time.Second,
		timeout:  2 * time.Minute,
		now:      time.Now,
		logger:   slog.Default(),
		handlers: make(map[models.JobKind]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register sets the handler for kind.
func (r *Runner) Register(kind models.JobKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// AddPool adds a worker pool. Pools added after Run starts are ignored.
func (r *Runner) AddPool(p Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Workers <= 0 {
		p.Workers = 1
	}
	r.pools = append(r.pools, p)
}

// Run requeues jobs abandoned by a previous process, then runs every pool
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	n, err := r.store.RequeueExecuting(ctx)
	if err != nil {
		return fmt.Errorf("requeue executing: %w", err)
	}
	if n > 0 {
		r.logger.Info("requeued interrupted jobs", "count", n)
	}

	r.mu.RLock()
	pools := append([]Pool(nil), r.pools...)
	r.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		for i := range p.Workers {
			g.Go(func() error {
				r.work(gctx, p, i)
				return nil
			})
		}
		r.logger.Info("worker pool started", "pool", p.Name, "workers", p.Workers, "kinds", p.Kinds)
	}
	return g.Wait()
}

func (r *Runner) work(ctx context.Context, p Pool, worker int) {
	log := r.logger.With("pool", p.Name, "worker", worker)
	for ctx.Err() == nil {
		processed, err := r.RunOnce(ctx, p.Kinds)
		if err != nil && ctx.Err() == nil {
			log.Warn("claim failed", "error", err)
		}
		if processed {
			continue
		}
		timer := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RunOnce claims and processes at most one due job of kinds. It reports
// whether a job was processed.
func (r *Runner) RunOnce(ctx context.Context, kinds []models.JobKind) (bool, error) {
	job, err := r.store.Claim(ctx, kinds, r.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.process(ctx, *job)
	return true, nil
}

func (r *Runner) process(ctx context.Context, job models.ImportJob) {
	id := job.Key()
	log := r.logger.With("job_id", id, "kind", job.Kind, "attempt", job.Attempt)

	r.mu.RLock()
	h := r.handlers[job.Kind]
	r.mu.RUnlock()

	start := time.Now()
	var err error
	if h == nil {
		err = Permanent(fmt.Errorf("no handler for kind %s", job.Kind))
	} else {
		err = r.invoke(ctx, h, job)
	}
	if r.recorder != nil {
		r.recorder.RecordTiming("job_"+string(job.Kind), time.Since(start))
	}

	// Persist outcomes even while shutting down.
	pctx := context.WithoutCancel(ctx)

	if err != nil && ctx.Err() != nil {
		log.Info("job interrupted by shutdown, requeueing", "error", err)
		if serr := r.store.RetryJobAt(pctx, id, r.now(), "interrupted: "+err.Error()); serr != nil {
			log.Error("failed to requeue interrupted job", "error", serr)
		}
		return
	}

	d := Transition(job, err, r.now(), r.backoff)
	var serr error
	switch d.State {
	case models.JobStateCompleted:
		serr = r.store.CompleteJob(pctx, id)
		log.Debug("job completed", "duration_ms", time.Since(start).Milliseconds())
	case models.JobStateRetryable:
		serr = r.store.RetryJobAt(pctx, id, d.RunAt, d.Err.Error())
		log.Warn("job failed, will retry", "retry_at", d.RunAt, "provider_transient", provider.IsTransient(d.Err), "error", d.Err)
	case models.JobStateCancelled:
		serr = r.store.CancelJob(pctx, id, d.Err.Error())
		log.Info("job cancelled", "reason", d.Err)
	case models.JobStateDiscarded:
		serr = r.store.DiscardJob(pctx, id, d.Err.Error())
		log.Error("job discarded", "error", d.Err)
		if dh, ok := h.(Discarder); ok {
			dh.OnDiscard(pctx, job, d.Err)
		}
	}
	if r.recorder != nil {
		r.recorder.Incr("jobs_" + string(d.State))
	}
	if serr != nil {
		log.Error("failed to persist job outcome", "state", d.State, "error", serr)
	}
}

func (r *Runner) invoke(ctx context.Context, h Handler, job models.ImportJob) (err error) {
	jctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return h.Handle(jctx, job)
}
