// Package jobs owns the per-(owner, kind, resource) recurring jobs: live
// price graphs, auto-price broadcasts and daily digests. At most one live
// job exists per key; duplicate starts are rejected, never silently
// replaced, so orphaned timers are structurally impossible.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"cryptotracker/pkg/logx"
)

var (
	// ErrAlreadyRunning is returned synchronously to the caller of Start;
	// the existing job keeps its schedule untouched.
	ErrAlreadyRunning = errors.New("job already running")

	// ErrNotRunning is returned by Stop when no job exists for the key.
	ErrNotRunning = errors.New("job not running")

	// ErrLimitExceeded caps concurrently running jobs per owner.
	ErrLimitExceeded = errors.New("too many running jobs")
)

type Kind string

const (
	KindGraph     Kind = "graph"
	KindAutoPrice Kind = "autoprice"
	KindDigest    Kind = "digest"
)

// Key identifies a unique recurring job.
type Key struct {
	Owner    int64
	Kind     Kind
	Resource string
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", k.Owner, k.Kind, k.Resource)
}

// Action is one execution of a job. Errors are logged and never cancel the
// job; only an explicit Stop or registry shutdown ends it.
type Action func(ctx context.Context) error

type Config struct {
	// Timeout bounds a single action execution.
	Timeout time.Duration

	// MinInterval floors user-supplied intervals (0 = 30s).
	MinInterval time.Duration

	// MaxPerOwner caps running jobs per owner (0 = 10).
	MaxPerOwner int
}

type job struct {
	key      Key
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// Registry is the process-wide set of running jobs. Each job runs on its
// own goroutine with its own ticker; one job's next tick cannot start
// before its current action returns.
type Registry struct {
	cfg Config
	log logx.Logger

	mu   sync.Mutex
	jobs map[Key]*job
}

func NewRegistry(cfg Config, log logx.Logger) *Registry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 30 * time.Second
	}
	if cfg.MaxPerOwner <= 0 {
		cfg.MaxPerOwner = 10
	}
	return &Registry{cfg: cfg, log: log, jobs: map[Key]*job{}}
}

// Start atomically check-and-inserts a job for key and begins its cadence;
// the first execution fires after one interval. A second Start for the same
// key returns ErrAlreadyRunning and schedules nothing.
func (r *Registry) Start(key Key, interval time.Duration, action Action) error {
	if interval < r.cfg.MinInterval {
		interval = r.cfg.MinInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{key: key, interval: interval, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if _, ok := r.jobs[key]; ok {
		r.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	owned := 0
	for k := range r.jobs {
		if k.Owner == key.Owner {
			owned++
		}
	}
	if owned >= r.cfg.MaxPerOwner {
		r.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: at most %d per user", ErrLimitExceeded, r.cfg.MaxPerOwner)
	}
	r.jobs[key] = j
	r.mu.Unlock()

	r.log.Info("job started", logx.String("key", key.String()), logx.Duration("interval", interval))
	go r.run(ctx, j, action)
	return nil
}

// Stop removes the job and cancels its timer. An execution in flight at
// the moment of cancellation completes; no further execution is scheduled.
func (r *Registry) Stop(key Key) error {
	r.mu.Lock()
	j, ok := r.jobs[key]
	if ok {
		delete(r.jobs, key)
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotRunning
	}
	j.cancel()
	r.log.Info("job stopped", logx.String("key", key.String()))
	return nil
}

func (r *Registry) IsRunning(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[key]
	return ok
}

// RunningByOwner returns a sorted snapshot of the owner's job keys.
func (r *Registry) RunningByOwner(owner int64) []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Key
	for k := range r.jobs {
		if k.Owner == owner {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Len reports the number of running jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// StopAll cancels every job and waits (bounded by ctx) for in-flight
// executions to finish. This is the single shutdown path.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	stopped := make([]*job, 0, len(r.jobs))
	for k, j := range r.jobs {
		delete(r.jobs, k)
		stopped = append(stopped, j)
	}
	r.mu.Unlock()

	for _, j := range stopped {
		j.cancel()
	}
	for _, j := range stopped {
		select {
		case <-j.done:
		case <-ctx.Done():
			return
		}
	}
	if len(stopped) > 0 {
		r.log.Info("all jobs stopped", logx.Int("count", len(stopped)))
	}
}

func (r *Registry) run(ctx context.Context, j *job, action Action) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case <-ctx.Done():
				return
			default:
			}
			r.execute(j, action)
		}
	}
}

// execute runs one action with its own timeout. The timeout context is not
// derived from the job context: a Stop only prevents the next fire, it
// never interrupts the in-flight execution.
func (r *Registry) execute(j *job, action Action) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in job action",
				logx.String("key", j.key.String()),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	runCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := action(runCtx); err != nil {
		r.log.Warn("job run failed", logx.String("key", j.key.String()), logx.Duration("dur", time.Since(start)), logx.Err(err))
		return
	}
	r.log.Debug("job run completed", logx.String("key", j.key.String()), logx.Duration("dur", time.Since(start)))
}
