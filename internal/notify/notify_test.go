package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptotracker/internal/transport"
	"cryptotracker/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	texts []string
	fail  bool
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return transport.MessageRef{}, errors.New("send failed")
	}
	f.texts = append(f.texts, text)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to transport.ChatTarget, photo transport.Photo) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return transport.MessageRef{}, errors.New("send failed")
	}
	f.texts = append(f.texts, "photo:"+photo.Caption)
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func TestTextSendsThroughAdapter(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{}, ad, logx.Nop())

	if err := s.Text(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got := ad.sent(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("adapter got %v", got)
	}
}

func TestTextPropagatesSendFailure(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fail: true}
	s := New(Config{}, ad, logx.Nop())

	if err := s.Text(context.Background(), 42, "hello"); err == nil {
		t.Fatal("expected send error")
	}
}

func TestRateLimitDelaysBurst(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	// 1 token refilled every 50ms, burst of 1: the second send must wait.
	s := New(Config{RatePerSec: 20, Burst: 1}, ad, logx.Nop())

	start := time.Now()
	for i := 0; i < 2; i++ {
		if err := s.Text(context.Background(), 1, "x"); err != nil {
			t.Fatalf("Text #%d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second send completed in %v, want throttled", elapsed)
	}
}

func TestCanceledContextAbortsSend(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{RatePerSec: 1, Burst: 1}, ad, logx.Nop())

	// Drain the only token, then a canceled wait must not reach the adapter.
	if err := s.Text(context.Background(), 1, "first"); err != nil {
		t.Fatalf("Text: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Text(ctx, 1, "second"); err == nil {
		t.Fatal("expected error from canceled context")
	}
	if got := ad.sent(); len(got) != 1 {
		t.Fatalf("adapter got %v, canceled send must not go through", got)
	}
}
