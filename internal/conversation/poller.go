// Package conversation detects agent replies on a chat surface and records every
// message it sees or sends.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/livechat/internal/chatlog"
)

// ErrSurfaceUnavailable marks a read or write the chat surface could not serve.
// Polling treats it as transient.
var ErrSurfaceUnavailable = errors.New("chat surface unavailable")

// Surface is the live chat endpoint being driven.
type Surface interface {
	// AgentMessages returns the agent-authored message texts currently shown, oldest first.
	AgentMessages(ctx context.Context) ([]string, error)
	// Submit sends text as an outbound visitor message.
	Submit(ctx context.Context, text string) error
}

// Config holds the polling cadence.
type Config struct {
	WelcomeAttempts int
	WelcomeInterval time.Duration
	ReplyInterval   time.Duration
}

// DefaultConfig polls for a welcome once a second for 20 attempts and for replies every 2s.
func DefaultConfig() Config {
	return Config{
		WelcomeAttempts: 20,
		WelcomeInterval: time.Second,
		ReplyInterval:   2 * time.Second,
	}
}

// Poller runs one conversation against a surface. It is not safe for concurrent use.
type Poller struct {
	surface  Surface
	recorder chatlog.Recorder
	cfg      Config
	logger   *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a poller that writes every message to recorder. Zero fields in
// cfg fall back to DefaultConfig.
func New(surface Surface, recorder chatlog.Recorder, cfg Config, logger *zap.Logger) *Poller {
	def := DefaultConfig()
	if cfg.WelcomeAttempts <= 0 {
		cfg.WelcomeAttempts = def.WelcomeAttempts
	}
	if cfg.WelcomeInterval <= 0 {
		cfg.WelcomeInterval = def.WelcomeInterval
	}
	if cfg.ReplyInterval <= 0 {
		cfg.ReplyInterval = def.ReplyInterval
	}
	return &Poller{
		surface:  surface,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.Named("conversation"),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// CurrentAgentMessages returns what the surface shows right now. A surface that
// is still loading or fails the read yields an empty result, never an error.
func (p *Poller) CurrentAgentMessages(ctx context.Context) []string {
	msgs, err := p.surface.AgentMessages(ctx)
	if err != nil {
		p.logger.Debug("Agent messages not readable yet",
			zap.Error(fmt.Errorf("%w: %w", ErrSurfaceUnavailable, err)))
		return nil
	}
	return msgs
}

// AwaitWelcome polls until the surface shows at least one agent message or the
// attempts run out. Running out is not an error; the result is then empty.
// The only error is cancellation of ctx.
func (p *Poller) AwaitWelcome(ctx context.Context) ([]string, error) {
	for attempt := 1; attempt <= p.cfg.WelcomeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if msgs := p.CurrentAgentMessages(ctx); len(msgs) > 0 {
			p.logger.Debug("Welcome observed", zap.Int("attempt", attempt), zap.Int("messages", len(msgs)))
			return msgs, nil
		}
		if attempt < p.cfg.WelcomeAttempts {
			if err := p.sleep(ctx, p.cfg.WelcomeInterval); err != nil {
				return nil, err
			}
		}
	}

	p.logger.Info("No welcome message appeared", zap.Int("attempts", p.cfg.WelcomeAttempts))
	return nil, nil
}

// SendMessage submits text and then records it as sent, whether or not the
// submission succeeded. Submission failures are logged and not retried. The
// returned error only reports a failure to record.
func (p *Poller) SendMessage(ctx context.Context, text string) error {
	if err := p.surface.Submit(ctx, text); err != nil {
		p.logger.Warn("Message submission failed",
			zap.Error(fmt.Errorf("%w: %w", ErrSurfaceUnavailable, err)))
	}
	_, err := p.Record(chatlog.SenderMe, text)
	return err
}

// AwaitReply waits up to timeout for an agent message whose text is not among
// prior. The first such message, in the order the surface reports them, is
// recorded and returned. On timeout a System entry is recorded and the result
// is nil with a nil error.
func (p *Poller) AwaitReply(ctx context.Context, prior []string, timeout time.Duration) (*chatlog.Message, error) {
	seen := make(map[string]struct{}, len(prior))
	for _, text := range prior {
		seen[text] = struct{}{}
	}

	start := p.now()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		elapsed := p.now().Sub(start)
		if elapsed >= timeout {
			break
		}

		for _, text := range p.CurrentAgentMessages(ctx) {
			if _, ok := seen[text]; ok {
				continue
			}
			msg, err := p.Record(chatlog.SenderAgent, text)
			if err != nil {
				return &msg, err
			}
			p.logger.Info("Agent replied", zap.Duration("after", p.now().Sub(start)))
			return &msg, nil
		}

		wait := p.cfg.ReplyInterval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	notice := "No agent reply in " + formatSeconds(timeout) + " seconds"
	p.logger.Info(notice)
	if _, err := p.Record(chatlog.SenderSystem, notice); err != nil {
		return nil, err
	}
	return nil, nil
}

// Record appends a transcript entry stamped with the current time.
func (p *Poller) Record(sender chatlog.Sender, text string) (chatlog.Message, error) {
	msg := chatlog.Message{Sender: sender, Text: text, ObservedAt: p.now()}
	if err := p.recorder.Record(msg); err != nil {
		return msg, fmt.Errorf("failed to record %s message: %w", sender, err)
	}
	return msg, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
