package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cryptotracker/internal/alerts"
	"cryptotracker/internal/jobs"
	"cryptotracker/internal/prices"
	"cryptotracker/internal/storage"
)

const helpText = `👋 CryptoTracker Bot

Prices & tracking:
/price <symbol> — current price
/add <symbol> — add coin to your watchlist
/remove <symbol> — remove coin from your watchlist
/watchlist — your watchlist with live prices
/addportfolio <symbol> <amount> — add coins to your portfolio
/portfolio — portfolio value
/trending — top trending coins

Alerts:
/alert <symbol> <above|below> <price> — one-shot price alert
/removealert <symbol> — remove your alerts for a coin
/alerts — list pending alerts

Recurring:
/graph <symbol> [interval] — live price graph
/stopgraph <symbol>
/autoprice <symbol> [interval] — periodic price updates
/stopautoprice <symbol>
/digest — daily watchlist digest
/stopdigest
/jobs — your running jobs

Misc:
/autoreply <keyword> <reply> — keyword auto-reply
/removeautoreply <keyword>
/help — this message`

func (b *Bot) renderWatchlist(ctx context.Context, symbols []string) string {
	if len(symbols) == 0 {
		return "📌 Your watchlist is empty."
	}
	var sb strings.Builder
	sb.WriteString("📊 Your watchlist:\n")
	for _, sym := range symbols {
		price, err := b.spot(ctx, sym)
		if err != nil {
			fmt.Fprintf(&sb, "• %s: price unavailable\n", sym)
			continue
		}
		fmt.Fprintf(&sb, "• %s: $%s\n", sym, price)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) renderPortfolio(ctx context.Context, positions []storage.Position) string {
	if len(positions) == 0 {
		return "💼 Your portfolio is empty."
	}
	var sb strings.Builder
	sb.WriteString("💼 Your portfolio:\n")
	total := decimal.Zero
	priced := true
	for _, p := range positions {
		price, err := b.spot(ctx, p.Symbol)
		if err != nil {
			priced = false
			fmt.Fprintf(&sb, "• %s: %s coins, price unavailable\n", p.Symbol, p.Amount)
			continue
		}
		value := p.Amount.Mul(price)
		total = total.Add(value)
		fmt.Fprintf(&sb, "• %s: %s coins, worth $%s\n", p.Symbol, p.Amount, value.StringFixed(2))
	}
	if priced {
		fmt.Fprintf(&sb, "\n💰 Total value: $%s", total.StringFixed(2))
		return sb.String()
	}
	fmt.Fprintf(&sb, "\n💰 Priced value: $%s (some prices unavailable)", total.StringFixed(2))
	return sb.String()
}

func renderTrending(coins []prices.TrendingCoin) string {
	if len(coins) == 0 {
		return "🔥 Could not fetch trending coins right now."
	}
	var sb strings.Builder
	sb.WriteString("🔥 Top trending coins:\n")
	for _, c := range coins {
		fmt.Fprintf(&sb, "• %s (%s), rank %d\n", c.Name, strings.ToUpper(c.Symbol), c.MarketCapRank)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderAlerts(pending []alerts.Alert) string {
	if len(pending) == 0 {
		return "🔕 You have no pending alerts."
	}
	var sb strings.Builder
	sb.WriteString("🔔 Your alerts:\n")
	for _, a := range pending {
		fmt.Fprintf(&sb, "• %s %s $%s\n", a.Symbol, a.Direction, a.Threshold)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderJobs(keys []jobs.Key) string {
	if len(keys) == 0 {
		return "🗓 You have no running jobs."
	}
	var sb strings.Builder
	sb.WriteString("🗓 Your running jobs:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "• %s: %s\n", k.Kind, k.Resource)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func priceErrorText(symbol string, err error) string {
	if errors.Is(err, prices.ErrNotFound) {
		return fmt.Sprintf("❌ Unknown coin %q.", symbol)
	}
	return fmt.Sprintf("❌ Could not fetch price for %s right now.", symbol)
}

// userFacing strips the wrapped sentinel prefix so validation messages read
// naturally in chat.
func userFacing(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
