package telegram

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"cryptotracker/internal/transport"
	"cryptotracker/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration

	// RequestTimeout bounds one API call beyond the long-poll window
	// (0 = 30s).
	RequestTimeout time.Duration
}

// Adapter bridges telebot's long poller to the transport.Adapter surface.
// Inbound messages are pushed onto a channel so command handling never runs
// on the poller goroutine.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot

	runMu     sync.Mutex
	running   bool
	out       chan<- transport.Update
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop; logged periodically to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqTimeout := cfg.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = 30 * time.Second
	}
	// The HTTP client is shared with the long poller, so its hard cap must
	// sit above the poll window; tighter per-call deadlines come from the
	// caller's context in SendText/SendPhoto.
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		Client: &http.Client{Timeout: timeout + reqTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out = out
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		up := transport.Update{Message: &transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type != tele.ChatPrivate,
		}}
		a.deliver(up)
		return nil
	})

	go func() {
		defer a.runWG.Done()
		a.log.Info("telegram poller started")
		a.bot.Start()
		a.log.Info("telegram poller stopped")
	}()

	// Stop the poller when the run context dies.
	go func() {
		<-rctx.Done()
		a.bot.Stop()
	}()

	return nil
}

func (a *Adapter) deliver(up transport.Update) {
	a.runMu.Lock()
	out := a.out
	a.runMu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.runCancel
	a.runCancel = nil
	a.out = nil
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	msg, err := awaitSend(ctx, func() (*tele.Message, error) {
		return a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOpt)
	})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to transport.ChatTarget, photo transport.Photo) (transport.MessageRef, error) {
	p := &tele.Photo{
		File:    tele.FromReader(bytes.NewReader(photo.PNG)),
		Caption: photo.Caption,
	}
	msg, err := awaitSend(ctx, func() (*tele.Message, error) {
		return a.bot.Send(&tele.Chat{ID: to.ChatID}, p)
	})
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: msg.ID}, nil
}

type sendResult struct {
	msg *tele.Message
	err error
}

// awaitSend runs send on its own goroutine so the caller's deadline is
// honored; telebot's Send has no context parameter. A send abandoned here is
// still bounded by the shared HTTP client's timeout, so the goroutine exits.
func awaitSend(ctx context.Context, send func() (*tele.Message, error)) (*tele.Message, error) {
	ch := make(chan sendResult, 1)
	go func() {
		m, err := send()
		ch <- sendResult{msg: m, err: err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
