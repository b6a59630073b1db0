package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptotracker/pkg/logx"
)

func TestSpotParsesQuote(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Errorf("ids = %q, want bitcoin", got)
		}
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":51234.12}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(Config{BaseURL: srv.URL}, logx.Nop())
	got, err := cg.Spot(context.Background(), "  Bitcoin ")
	if err != nil {
		t.Fatalf("Spot: %v", err)
	}
	if want := decimal.RequireFromString("51234.12"); !got.Equal(want) {
		t.Fatalf("Spot = %s, want %s", got, want)
	}
}

func TestSpotUnknownSymbolIsNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(Config{BaseURL: srv.URL}, logx.Nop())
	_, err := cg.Spot(context.Background(), "nosuchcoin")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSpotServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cg := NewCoinGecko(Config{BaseURL: srv.URL}, logx.Nop())
	_, err := cg.Spot(context.Background(), "bitcoin")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestSpotCacheServesRepeatLookups(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":100}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(Config{BaseURL: srv.URL, CacheTTL: time.Minute}, logx.Nop())
	for i := 0; i < 5; i++ {
		if _, err := cg.Spot(context.Background(), "bitcoin"); err != nil {
			t.Fatalf("Spot #%d: %v", i, err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("upstream calls = %d, want 1", n)
	}
}

func TestTrendingParsesList(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/trending" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"coins":[{"item":{"name":"Bitcoin","symbol":"BTC","market_cap_rank":1}}]}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(Config{BaseURL: srv.URL}, logx.Nop())
	got, err := cg.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Bitcoin" || got[0].MarketCapRank != 1 {
		t.Fatalf("unexpected trending: %+v", got)
	}
}
