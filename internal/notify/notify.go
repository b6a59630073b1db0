// Package notify delivers user-facing messages through the chat adapter.
// It is the single outbound path for alert firings and recurring-job output.
package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"cryptotracker/internal/transport"
	"cryptotracker/pkg/logx"
)

type Config struct {
	// RatePerSec throttles outbound sends across all recipients so a burst
	// of firings cannot trip the chat platform's flood limits (0 = 25/s).
	RatePerSec float64
	Burst      int
}

type Service struct {
	adapter transport.Adapter
	log     logx.Logger

	mu      sync.Mutex
	limiter *rate.Limiter
}

func New(cfg Config, adapter transport.Adapter, log logx.Logger) *Service {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Service{
		adapter: adapter,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Apply swaps in new rate limits (config hot reload).
func (s *Service) Apply(cfg Config) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	s.mu.Lock()
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	s.mu.Unlock()
}

// Text sends a plain message to the user. Failures are logged at warn and
// returned; the caller decides whether the loss matters.
func (s *Service) Text(ctx context.Context, userID int64, text string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.adapter.SendText(ctx, transport.ChatTarget{ChatID: userID}, text, nil)
	if err != nil {
		s.log.Warn("notification send failed", logx.Int64("user", userID), logx.Err(err))
		return err
	}
	s.log.Debug("notification sent", logx.Int64("user", userID))
	return nil
}

// Photo sends a rendered image with caption, same sink shape as Text with a
// different payload type.
func (s *Service) Photo(ctx context.Context, userID int64, png []byte, caption string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.adapter.SendPhoto(ctx, transport.ChatTarget{ChatID: userID}, transport.Photo{PNG: png, Caption: caption})
	if err != nil {
		s.log.Warn("photo send failed", logx.Int64("user", userID), logx.Err(err))
		return err
	}
	return nil
}

func (s *Service) wait(ctx context.Context) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	return lim.Wait(ctx)
}
