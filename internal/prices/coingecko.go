package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cryptotracker/pkg/logx"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

type Config struct {
	BaseURL string
	Timeout time.Duration

	// CacheTTL bounds how long a spot quote may be reused. The alert sweep
	// touches many alerts for the same symbol; with a TTL at least as long
	// as one sweep each symbol is fetched once per cycle.
	CacheTTL time.Duration
}

// CoinGecko implements Source against the public CoinGecko API.
type CoinGecko struct {
	cfg  Config
	log  logx.Logger
	http *http.Client
	base string

	mu    sync.Mutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	price   decimal.Decimal
	fetched time.Time
}

func NewCoinGecko(cfg Config, log logx.Logger) *CoinGecko {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &CoinGecko{
		cfg:   cfg,
		log:   log,
		http:  &http.Client{Timeout: timeout},
		base:  base,
		cache: map[string]cachedQuote{},
	}
}

func (c *CoinGecko) Spot(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = Normalize(symbol)
	if symbol == "" {
		return decimal.Zero, ErrNotFound
	}

	if ttl := c.cfg.CacheTTL; ttl > 0 {
		c.mu.Lock()
		if q, ok := c.cache[symbol]; ok && time.Since(q.fetched) < ttl {
			c.mu.Unlock()
			return q.price, nil
		}
		c.mu.Unlock()
	}

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.base, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// Response shape: {"bitcoin": {"usd": 51234.12}}. An unknown id returns
	// an empty object, not an error status.
	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}
	quote, ok := body[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	price, ok := quote["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s has no usd quote", ErrNotFound, symbol)
	}

	if c.cfg.CacheTTL > 0 {
		c.mu.Lock()
		c.cache[symbol] = cachedQuote{price: price, fetched: time.Now()}
		c.mu.Unlock()
	}
	return price, nil
}

// Trending returns the upstream trending coin list.
func (c *CoinGecko) Trending(ctx context.Context) ([]TrendingCoin, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/search/trending", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body struct {
		Coins []struct {
			Item struct {
				Name          string `json:"name"`
				Symbol        string `json:"symbol"`
				MarketCapRank int    `json:"market_cap_rank"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	out := make([]TrendingCoin, 0, len(body.Coins))
	for _, row := range body.Coins {
		out = append(out, TrendingCoin{
			Name:          row.Item.Name,
			Symbol:        row.Item.Symbol,
			MarketCapRank: row.Item.MarketCapRank,
		})
	}
	return out, nil
}
