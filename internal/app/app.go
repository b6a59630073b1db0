// Package app wires configuration, logging, storage, the chat adapter, the
// registries and the scheduler into one process with a single start/stop
// path.
package app

import (
	"context"
	"sync"
	"time"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/bot"
	"cryptotracker/internal/config"
	"cryptotracker/internal/jobs"
	"cryptotracker/internal/notify"
	"cryptotracker/internal/prices"
	"cryptotracker/internal/render"
	"cryptotracker/internal/scheduler"
	"cryptotracker/internal/storage"
	"cryptotracker/internal/transport"
	"cryptotracker/internal/transport/telegram"
	"cryptotracker/pkg/logx"
)

type App struct {
	cfgPath string

	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	adapter transport.Adapter
	notif   *notify.Service
	jobs    *jobs.Registry
	sched   *scheduler.Service
	bot     *bot.Bot

	updates chan transport.Update

	runMu     sync.Mutex
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := config.ParseDurationOrDefault("telegram.request_timeout", cfg.Telegram.RequestTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		RequestTimeout: requestTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: int(busyTimeout.Milliseconds()),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	priceTimeout, err := config.ParseDurationOrDefault("prices.timeout", cfg.Prices.Timeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := config.ParseDurationOrDefault("alerts.sweep_interval", cfg.Alerts.SweepInterval, 60*time.Second)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := config.ParseDurationOrDefault("prices.cache_ttl", cfg.Prices.CacheTTL, 30*time.Second)
	if err != nil {
		return nil, err
	}
	source := prices.NewCoinGecko(prices.Config{
		BaseURL:  cfg.Prices.BaseURL,
		Timeout:  priceTimeout,
		CacheTTL: cacheTTL,
	}, log.With(logx.String("comp", "prices")))

	notif := notify.New(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		Burst:      cfg.Notify.Burst,
	}, adapter, log.With(logx.String("comp", "notify")))

	defaultInterval, err := config.ParseDurationOrDefault("jobs.default_interval", cfg.Jobs.DefaultInterval, 5*time.Minute)
	if err != nil {
		return nil, err
	}
	minInterval, err := config.ParseDurationOrDefault("jobs.min_interval", cfg.Jobs.MinInterval, 30*time.Second)
	if err != nil {
		return nil, err
	}
	digestInterval, err := config.ParseDurationOrDefault("jobs.digest_interval", cfg.Jobs.DigestInterval, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	alertReg := alerts.NewRegistry(cfg.Alerts.MaxPerOwner)
	jobReg := jobs.NewRegistry(jobs.Config{
		Timeout:     priceTimeout + 10*time.Second,
		MinInterval: minInterval,
		MaxPerOwner: cfg.Jobs.MaxPerOwner,
	}, log.With(logx.String("comp", "jobs")))

	sendTimeout, err := config.ParseDurationOrDefault("notify.send_timeout", cfg.Notify.SendTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scheduler.Config{
		SweepInterval: sweepInterval,
		PriceTimeout:  priceTimeout,
		SendTimeout:   sendTimeout,
	}, alertReg, jobReg, source, notif, log.With(logx.String("comp", "scheduler")))

	var charter render.Charter
	if cfg.Charts.Enabled {
		chartTimeout, err := config.ParseDurationOrDefault("charts.timeout", cfg.Charts.Timeout, 8*time.Second)
		if err != nil {
			return nil, err
		}
		charter = render.NewQuickChart(render.Config{BaseURL: cfg.Charts.BaseURL, Timeout: chartTimeout})
	}

	b := bot.New(bot.Config{
		DefaultJobInterval: defaultInterval,
		DigestInterval:     digestInterval,
		PriceTimeout:       priceTimeout,
	}, log.With(logx.String("comp", "bot")), alertReg, jobReg, source, source, store, notif, charter)

	return &App{
		cfgPath: cfgPath,
		logs:    logs,
		log:     log,
		store:   store,
		adapter: adapter,
		notif:   notif,
		jobs:    jobReg,
		sched:   sched,
		bot:     b,
		updates: make(chan transport.Update, 128),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.runCancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		a.runCancel = nil
		return err
	}
	if err := a.sched.Start(runCtx); err != nil {
		cancel()
		a.runCancel = nil
		return err
	}

	a.runWG.Add(2)
	go func() {
		defer a.runWG.Done()
		a.bot.Run(runCtx, a.updates)
	}()
	go func() {
		defer a.runWG.Done()
		watchLog := a.log.With(logx.String("comp", "config"))
		if err := config.Watch(runCtx, a.cfgPath, watchLog, a.applyConfig); err != nil {
			watchLog.Warn("config watcher exited", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyConfig applies the hot-reloadable subset of the config: log sinks
// and notification rate limits. Everything else requires a restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
		},
	})
	a.notif.Apply(notify.Config{
		RatePerSec: cfg.Notify.RatePerSec,
		Burst:      cfg.Notify.Burst,
	})
}

// Stop shuts everything down in reverse order: no new updates, then the
// scheduler (which drains all recurring jobs), then the router and storage.
func (a *App) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()
	if cancel == nil {
		return nil
	}

	err := a.adapter.Stop(ctx)
	a.sched.Stop(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if cerr := a.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	a.log.Info("app stopped")
	a.logs.Close()
	return err
}
