// Package scheduler coordinates the two timing domains of the bot: the
// fixed-cadence alert sweep and the per-job cadences owned by the jobs
// registry. It is the only component that retires alerts and the single
// shutdown path for all background work.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/jobs"
	"cryptotracker/internal/prices"
	"cryptotracker/pkg/logx"
)

// Sink is the outbound notification surface used by the sweep.
type Sink interface {
	Text(ctx context.Context, userID int64, text string) error
}

type Config struct {
	// SweepInterval is the alert evaluation cadence (0 = 60s).
	SweepInterval time.Duration

	// PriceTimeout bounds one price fetch so a slow upstream cannot stall
	// the whole sweep (0 = 5s).
	PriceTimeout time.Duration

	// SendTimeout bounds one alert delivery; a stalled chat platform must
	// not hold the sweep past it (0 = 5s).
	SendTimeout time.Duration
}

type Service struct {
	cfg    Config
	log    logx.Logger
	alerts *alerts.Registry
	jobs   *jobs.Registry
	source prices.Source
	sink   Sink

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, reg *alerts.Registry, jr *jobs.Registry, source prices.Source, sink Sink, log logx.Logger) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 60 * time.Second
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	return &Service{cfg: cfg, log: log, alerts: reg, jobs: jr, source: source, sink: sink}
}

// Start registers the sweep timer. Recurring jobs are driven by the jobs
// registry as they are started by commands; nothing to do for them here.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	// A slow sweep must not stack on itself; overlapping runs are skipped.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: s.log})))
	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	_, err := c.AddFunc(spec, func() { s.Sweep(ctx) })
	if err != nil {
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("scheduler started", logx.Duration("sweep_interval", s.cfg.SweepInterval))
	return nil
}

// Stop is the single shutdown path: it halts the sweep timer, then cancels
// every recurring job and waits (bounded by ctx) for in-flight work.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.jobs.StopAll(ctx)
	s.log.Info("scheduler stopped")
}

// firing is one retired alert plus the price that satisfied it.
type firing struct {
	alert alerts.Alert
	price decimal.Decimal
}

// Sweep runs one alert evaluation cycle. For every pending alert it fetches
// the current price (per-symbol, once per sweep), evaluates, and on a match
// removes the alert from the registry before notifying. The remove is the
// claim that guarantees at-most-once delivery even if the owner removes the
// alert concurrently.
func (s *Service) Sweep(ctx context.Context) {
	start := time.Now()
	fired := s.drainFired(ctx)
	for _, f := range fired {
		msg := renderFiring(f.alert, f.price)
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
		err := s.sink.Text(sendCtx, f.alert.Owner, msg)
		cancel()
		if err != nil {
			// The alert is already retired; a failed delivery is a
			// documented accepted loss, not a retry case.
			s.log.Warn("alert notification lost",
				logx.Int64("owner", f.alert.Owner),
				logx.String("symbol", f.alert.Symbol),
				logx.Err(err))
		}
	}
	if n := len(fired); n > 0 {
		s.log.Info("sweep completed", logx.Int("fired", n), logx.Duration("dur", time.Since(start)))
	} else {
		s.log.Debug("sweep completed", logx.Duration("dur", time.Since(start)))
	}
}

func (s *Service) drainFired(ctx context.Context) []firing {
	pending := s.alerts.Snapshot()
	if len(pending) == 0 {
		return nil
	}

	// Per-sweep memoization: many alerts usually watch the same symbol.
	type quote struct {
		price decimal.Decimal
		err   error
	}
	seen := map[string]quote{}

	var fired []firing
	for _, a := range pending {
		if ctx.Err() != nil {
			return fired
		}

		q, ok := seen[a.Symbol]
		if !ok {
			fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.PriceTimeout)
			p, err := s.source.Spot(fetchCtx, a.Symbol)
			cancel()
			q = quote{price: p, err: err}
			seen[a.Symbol] = q
		}
		if q.err != nil {
			// Transient or bad symbol: the alert stays pending and is
			// re-checked next cycle. One symbol's failure never affects
			// another owner's sweep outcome.
			s.log.Warn("price unavailable, alert kept pending",
				logx.String("symbol", a.Symbol),
				logx.Int64("owner", a.Owner),
				logx.Err(q.err))
			continue
		}

		if !alerts.Evaluate(a.Direction, a.Threshold, q.price) {
			continue
		}
		// Remove before yielding: whoever deletes the alert first wins,
		// so a concurrent owner removal makes this firing a no-op.
		if !s.alerts.Remove(a.ID) {
			continue
		}
		fired = append(fired, firing{alert: a, price: q.price})
	}
	return fired
}

func renderFiring(a alerts.Alert, price decimal.Decimal) string {
	return fmt.Sprintf("🚨 Alert: %s is %s $%s — current price $%s",
		a.Symbol, a.Direction, a.Threshold.String(), price.String())
}

// cronLogger adapts logx to cron's logger so skipped overlapping runs
// surface in the service log.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) == 0 {
		c.log.Debug(msg)
		return
	}
	c.log.Debug(msg, logx.Any("details", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if len(keysAndValues) == 0 {
		c.log.Warn(msg, logx.Err(err))
		return
	}
	c.log.Warn(msg, logx.Err(err), logx.Any("details", keysAndValues))
}
