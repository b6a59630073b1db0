// Package bot routes inbound chat commands to the alert and job registries
// and the tracked-data store. Handlers run concurrently, one goroutine per
// update, and never block on the scheduler.
package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/jobs"
	"cryptotracker/internal/prices"
	"cryptotracker/internal/render"
	"cryptotracker/internal/storage"
	"cryptotracker/internal/transport"
	"cryptotracker/pkg/logx"
)

// Sink is the outbound message surface used by handlers and job actions.
type Sink interface {
	Text(ctx context.Context, userID int64, text string) error
	Photo(ctx context.Context, userID int64, png []byte, caption string) error
}

// TrendingSource lists the currently trending coins.
type TrendingSource interface {
	Trending(ctx context.Context) ([]prices.TrendingCoin, error)
}

type Config struct {
	// DefaultJobInterval applies when a start command omits the interval.
	DefaultJobInterval time.Duration

	// DigestInterval is the cadence of digest jobs.
	DigestInterval time.Duration

	// PriceTimeout bounds price fetches made from command handlers.
	PriceTimeout time.Duration
}

type message = transport.Message

type Bot struct {
	cfg Config
	log logx.Logger

	alerts  *alerts.Registry
	jobs    *jobs.Registry
	source  prices.Source
	trends  TrendingSource
	store   storage.Store
	sink    Sink
	charter render.Charter // nil when charts are disabled

	seriesMu sync.Mutex
	series   map[jobs.Key]*render.Series

	handlersWG sync.WaitGroup
}

func New(cfg Config, log logx.Logger, ar *alerts.Registry, jr *jobs.Registry, source prices.Source, trends TrendingSource, store storage.Store, sink Sink, charter render.Charter) *Bot {
	if cfg.DefaultJobInterval <= 0 {
		cfg.DefaultJobInterval = 5 * time.Minute
	}
	if cfg.DigestInterval <= 0 {
		cfg.DigestInterval = 24 * time.Hour
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 5 * time.Second
	}
	return &Bot{
		cfg:     cfg,
		log:     log,
		alerts:  ar,
		jobs:    jr,
		source:  source,
		trends:  trends,
		store:   store,
		sink:    sink,
		charter: charter,
		series:  map[jobs.Key]*render.Series{},
	}
}

// Run consumes updates until ctx is cancelled, then waits for in-flight
// handlers to return.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			b.handlersWG.Wait()
			return
		case up, ok := <-updates:
			if !ok {
				b.handlersWG.Wait()
				return
			}
			if up.Message == nil {
				continue
			}
			m := *up.Message
			b.handlersWG.Add(1)
			go func() {
				defer b.handlersWG.Done()
				defer func() {
					if rec := recover(); rec != nil {
						b.log.Error("panic in command handler",
							logx.String("text", m.Text),
							logx.Any("panic", rec),
							logx.String("stack", string(debug.Stack())))
					}
				}()
				b.handle(ctx, m)
			}()
		}
	}
}

func (b *Bot) handle(ctx context.Context, m transport.Message) {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "/") {
		b.tryAutoReply(ctx, m)
		return
	}

	fields := strings.Fields(text)
	cmd := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Group chats address commands as /cmd@botname.
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]

	b.log.Debug("command received", logx.String("cmd", cmd), logx.Int64("from", m.FromID))
	b.dispatch(ctx, cmd, args, m)
}

func (b *Bot) reply(ctx context.Context, m transport.Message, text string) {
	if err := b.sink.Text(ctx, m.ChatID, text); err != nil {
		b.log.Warn("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

func (b *Bot) tryAutoReply(ctx context.Context, m transport.Message) {
	replies, err := b.store.AutoReplies(ctx, m.FromID)
	if err != nil {
		b.log.Warn("auto-reply lookup failed", logx.Int64("user", m.FromID), logx.Err(err))
		return
	}
	lower := strings.ToLower(m.Text)
	for keyword, reply := range replies {
		if strings.Contains(lower, keyword) {
			b.reply(ctx, m, reply)
			return
		}
	}
}
