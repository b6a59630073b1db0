package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/jobs"
	"cryptotracker/internal/prices"
	"cryptotracker/internal/render"
	"cryptotracker/pkg/logx"
)

func (b *Bot) dispatch(ctx context.Context, cmd string, args []string, m message) {
	switch cmd {
	case "start", "help":
		b.reply(ctx, m, helpText)
	case "price":
		b.cmdPrice(ctx, m, args)
	case "add":
		b.cmdWatchAdd(ctx, m, args)
	case "remove":
		b.cmdWatchRemove(ctx, m, args)
	case "watchlist":
		b.cmdWatchlist(ctx, m)
	case "portfolio":
		b.cmdPortfolio(ctx, m)
	case "addportfolio":
		b.cmdAddPortfolio(ctx, m, args)
	case "alert":
		b.cmdAlertSet(ctx, m, args)
	case "removealert":
		b.cmdAlertRemove(ctx, m, args)
	case "alerts":
		b.cmdAlertList(ctx, m)
	case "graph":
		b.cmdGraphStart(ctx, m, args)
	case "stopgraph":
		b.cmdJobStop(ctx, m, jobs.KindGraph, args)
	case "autoprice":
		b.cmdAutoPriceStart(ctx, m, args)
	case "stopautoprice":
		b.cmdJobStop(ctx, m, jobs.KindAutoPrice, args)
	case "digest":
		b.cmdDigestStart(ctx, m)
	case "stopdigest":
		b.cmdJobStop(ctx, m, jobs.KindDigest, []string{digestResource})
	case "jobs":
		b.cmdJobList(ctx, m)
	case "trending":
		b.cmdTrending(ctx, m)
	case "autoreply":
		b.cmdAutoReplySet(ctx, m, args)
	case "removeautoreply":
		b.cmdAutoReplyRemove(ctx, m, args)
	default:
		b.reply(ctx, m, "Unknown command. Try /help.")
	}
}

const digestResource = "daily"

// ---- prices & tracked data ----

func (b *Bot) cmdPrice(ctx context.Context, m message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, m, "Usage: /price <symbol>")
		return
	}
	symbol := prices.Normalize(args[0])
	price, err := b.spot(ctx, symbol)
	if err != nil {
		b.reply(ctx, m, priceErrorText(symbol, err))
		return
	}
	b.reply(ctx, m, fmt.Sprintf("💰 %s current price: $%s", symbol, price))
}

func (b *Bot) cmdWatchAdd(ctx context.Context, m message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, m, "Usage: /add <symbol>")
		return
	}
	symbol := prices.Normalize(args[0])
	added, err := b.store.AddWatch(ctx, m.FromID, symbol)
	if err != nil {
		b.internalError(ctx, m, "watchlist add", err)
		return
	}
	if !added {
		b.reply(ctx, m, fmt.Sprintf("⚠️ %s is already in your watchlist.", symbol))
		return
	}
	b.reply(ctx, m, fmt.Sprintf("✅ Added %s to your watchlist.", symbol))
}

func (b *Bot) cmdWatchRemove(ctx context.Context, m message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, m, "Usage: /remove <symbol>")
		return
	}
	symbol := prices.Normalize(args[0])
	removed, err := b.store.RemoveWatch(ctx, m.FromID, symbol)
	if err != nil {
		b.internalError(ctx, m, "watchlist remove", err)
		return
	}
	if !removed {
		b.reply(ctx, m, fmt.Sprintf("⚠️ %s is not in your watchlist.", symbol))
		return
	}
	b.reply(ctx, m, fmt.Sprintf("❌ Removed %s from your watchlist.", symbol))
}

func (b *Bot) cmdWatchlist(ctx context.Context, m message) {
	symbols, err := b.store.Watchlist(ctx, m.FromID)
	if err != nil {
		b.internalError(ctx, m, "watchlist", err)
		return
	}
	b.reply(ctx, m, b.renderWatchlist(ctx, symbols))
}

func (b *Bot) cmdPortfolio(ctx context.Context, m message) {
	positions, err := b.store.Portfolio(ctx, m.FromID)
	if err != nil {
		b.internalError(ctx, m, "portfolio", err)
		return
	}
	b.reply(ctx, m, b.renderPortfolio(ctx, positions))
}

func (b *Bot) cmdAddPortfolio(ctx context.Context, m message, args []string) {
	if len(args) != 2 {
		b.reply(ctx, m, "Usage: /addportfolio <symbol> <amount>")
		return
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || !amount.IsPositive() {
		b.reply(ctx, m, "❌ Invalid amount.")
		return
	}
	symbol := prices.Normalize(args[0])
	if err := b.store.AddPosition(ctx, m.FromID, symbol, amount); err != nil {
		b.internalError(ctx, m, "portfolio add", err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("✅ Added %s %s to your portfolio.", amount, symbol))
}

func (b *Bot) cmdTrending(ctx context.Context, m message) {
	coins, err := b.trends.Trending(ctx)
	if err != nil {
		b.reply(ctx, m, "🔥 Could not fetch trending coins right now.")
		return
	}
	b.reply(ctx, m, renderTrending(coins))
}

// ---- alerts ----

func (b *Bot) cmdAlertSet(ctx context.Context, m message, args []string) {
	var symbol, dirArg, priceArg string
	switch len(args) {
	case 2:
		// Compatibility form: /alert <symbol> <price> means Above.
		symbol, dirArg, priceArg = args[0], "above", args[1]
	case 3:
		symbol, dirArg, priceArg = args[0], args[1], args[2]
	default:
		b.reply(ctx, m, "Usage: /alert <symbol> <above|below> <price>")
		return
	}

	dir, err := alerts.ParseDirection(dirArg)
	if err != nil {
		b.reply(ctx, m, "❌ Direction must be `above` or `below`.")
		return
	}
	threshold, err := decimal.NewFromString(priceArg)
	if err != nil {
		b.reply(ctx, m, "❌ Invalid price.")
		return
	}

	if _, err := b.alerts.Add(m.FromID, symbol, dir, threshold); err != nil {
		if errors.Is(err, alerts.ErrInvalidSpec) {
			b.reply(ctx, m, fmt.Sprintf("❌ Invalid alert: %s", userFacing(err)))
			return
		}
		b.internalError(ctx, m, "alert add", err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("✅ Alert set: %s %s $%s", prices.Normalize(symbol), dir, threshold))
}

func (b *Bot) cmdAlertRemove(ctx context.Context, m message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, m, "Usage: /removealert <symbol>")
		return
	}
	symbol := prices.Normalize(args[0])
	n := b.alerts.RemoveByOwnerAndSymbol(m.FromID, symbol)
	if n == 0 {
		b.reply(ctx, m, fmt.Sprintf("⚠️ No alerts for %s.", symbol))
		return
	}
	b.reply(ctx, m, fmt.Sprintf("❌ Removed %d alert(s) for %s.", n, symbol))
}

func (b *Bot) cmdAlertList(ctx context.Context, m message) {
	b.reply(ctx, m, renderAlerts(b.alerts.ListByOwner(m.FromID)))
}

// ---- recurring jobs ----

func (b *Bot) cmdGraphStart(ctx context.Context, m message, args []string) {
	if b.charter == nil {
		b.reply(ctx, m, "⚠️ Price graphs are disabled.")
		return
	}
	symbol, interval, err := b.parseJobArgs(args)
	if err != nil {
		b.reply(ctx, m, "Usage: /graph <symbol> [interval, e.g. 5m]")
		return
	}

	key := jobs.Key{Owner: m.FromID, Kind: jobs.KindGraph, Resource: symbol}
	series := render.NewSeries(0)
	b.seriesMu.Lock()
	b.series[key] = series
	b.seriesMu.Unlock()

	err = b.jobs.Start(key, interval, b.graphAction(key, symbol, series))
	if b.replyJobStart(ctx, m, "graph", symbol, err) {
		return
	}
	// Start lost the race or failed: drop the orphaned series.
	b.seriesMu.Lock()
	if b.series[key] == series {
		delete(b.series, key)
	}
	b.seriesMu.Unlock()
}

func (b *Bot) cmdAutoPriceStart(ctx context.Context, m message, args []string) {
	symbol, interval, err := b.parseJobArgs(args)
	if err != nil {
		b.reply(ctx, m, "Usage: /autoprice <symbol> [interval, e.g. 1m]")
		return
	}
	key := jobs.Key{Owner: m.FromID, Kind: jobs.KindAutoPrice, Resource: symbol}
	err = b.jobs.Start(key, interval, b.autoPriceAction(key, symbol))
	b.replyJobStart(ctx, m, "auto price", symbol, err)
}

func (b *Bot) cmdDigestStart(ctx context.Context, m message) {
	key := jobs.Key{Owner: m.FromID, Kind: jobs.KindDigest, Resource: digestResource}
	err := b.jobs.Start(key, b.cfg.DigestInterval, b.digestAction(key))
	b.replyJobStart(ctx, m, "digest", digestResource, err)
}

// replyJobStart reports the outcome of a start command. It returns true
// when the job is now running (err == nil).
func (b *Bot) replyJobStart(ctx context.Context, m message, what, resource string, err error) bool {
	switch {
	case err == nil:
		b.reply(ctx, m, fmt.Sprintf("✅ Started %s for %s.", what, resource))
		return true
	case errors.Is(err, jobs.ErrAlreadyRunning):
		b.reply(ctx, m, fmt.Sprintf("⚠️ %s for %s is already running.", what, resource))
	case errors.Is(err, jobs.ErrLimitExceeded):
		b.reply(ctx, m, fmt.Sprintf("⚠️ %s", userFacing(err)))
	default:
		b.internalError(ctx, m, "job start", err)
	}
	return false
}

func (b *Bot) cmdJobStop(ctx context.Context, m message, kind jobs.Kind, args []string) {
	if len(args) != 1 {
		b.reply(ctx, m, fmt.Sprintf("Usage: /stop%s <symbol>", kind))
		return
	}
	resource := prices.Normalize(args[0])
	key := jobs.Key{Owner: m.FromID, Kind: kind, Resource: resource}
	err := b.jobs.Stop(key)

	if kind == jobs.KindGraph {
		b.seriesMu.Lock()
		delete(b.series, key)
		b.seriesMu.Unlock()
	}

	switch {
	case err == nil:
		b.reply(ctx, m, fmt.Sprintf("🛑 Stopped %s for %s.", kind, resource))
	case errors.Is(err, jobs.ErrNotRunning):
		b.reply(ctx, m, fmt.Sprintf("⚠️ No running %s for %s.", kind, resource))
	default:
		b.internalError(ctx, m, "job stop", err)
	}
}

func (b *Bot) cmdJobList(ctx context.Context, m message) {
	b.reply(ctx, m, renderJobs(b.jobs.RunningByOwner(m.FromID)))
}

func (b *Bot) parseJobArgs(args []string) (symbol string, interval time.Duration, err error) {
	if len(args) < 1 || len(args) > 2 {
		return "", 0, errors.New("want 1 or 2 args")
	}
	symbol = prices.Normalize(args[0])
	if symbol == "" {
		return "", 0, errors.New("empty symbol")
	}
	interval = b.cfg.DefaultJobInterval
	if len(args) == 2 {
		interval, err = time.ParseDuration(args[1])
		if err != nil || interval <= 0 {
			return "", 0, errors.New("bad interval")
		}
	}
	return symbol, interval, nil
}

// ---- job actions ----

func (b *Bot) autoPriceAction(key jobs.Key, symbol string) jobs.Action {
	return func(ctx context.Context) error {
		price, err := b.spot(ctx, symbol)
		if err != nil {
			return err
		}
		return b.sink.Text(ctx, key.Owner, fmt.Sprintf("📈 %s: $%s", symbol, price))
	}
}

func (b *Bot) graphAction(key jobs.Key, symbol string, series *render.Series) jobs.Action {
	return func(ctx context.Context) error {
		price, err := b.spot(ctx, symbol)
		if err != nil {
			return err
		}
		series.Add(render.Point{At: time.Now(), Price: price})
		if series.Len() < 2 {
			// Not enough data for a line yet; report the spot price so the
			// user sees the job is alive.
			return b.sink.Text(ctx, key.Owner, fmt.Sprintf("📈 %s: $%s (collecting graph data)", symbol, price))
		}
		png, err := b.charter.Render(ctx, symbol, series.Snapshot())
		if err != nil {
			return err
		}
		return b.sink.Photo(ctx, key.Owner, png, fmt.Sprintf("%s — $%s", symbol, price))
	}
}

func (b *Bot) digestAction(key jobs.Key) jobs.Action {
	return func(ctx context.Context) error {
		symbols, err := b.store.Watchlist(ctx, key.Owner)
		if err != nil {
			return err
		}
		return b.sink.Text(ctx, key.Owner, "🗞 Daily digest\n"+b.renderWatchlist(ctx, symbols))
	}
}

// ---- auto-replies ----

func (b *Bot) cmdAutoReplySet(ctx context.Context, m message, args []string) {
	if len(args) < 2 {
		b.reply(ctx, m, "Usage: /autoreply <keyword> <reply message>")
		return
	}
	keyword := strings.ToLower(args[0])
	reply := strings.Join(args[1:], " ")
	if err := b.store.SetAutoReply(ctx, m.FromID, keyword, reply); err != nil {
		b.internalError(ctx, m, "autoreply set", err)
		return
	}
	b.reply(ctx, m, fmt.Sprintf("✅ Auto-reply set for keyword %q.", keyword))
}

func (b *Bot) cmdAutoReplyRemove(ctx context.Context, m message, args []string) {
	if len(args) != 1 {
		b.reply(ctx, m, "Usage: /removeautoreply <keyword>")
		return
	}
	keyword := strings.ToLower(args[0])
	removed, err := b.store.RemoveAutoReply(ctx, m.FromID, keyword)
	if err != nil {
		b.internalError(ctx, m, "autoreply remove", err)
		return
	}
	if !removed {
		b.reply(ctx, m, fmt.Sprintf("⚠️ No auto-reply for keyword %q.", keyword))
		return
	}
	b.reply(ctx, m, fmt.Sprintf("❌ Removed auto-reply for keyword %q.", keyword))
}

// ---- helpers ----

func (b *Bot) spot(ctx context.Context, symbol string) (decimal.Decimal, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.PriceTimeout)
	defer cancel()
	return b.source.Spot(fetchCtx, symbol)
}

func (b *Bot) internalError(ctx context.Context, m message, what string, err error) {
	b.log.Error(what+" failed", logx.Int64("user", m.FromID), logx.Err(err))
	b.reply(ctx, m, "⚠️ Something went wrong, please try again.")
}
