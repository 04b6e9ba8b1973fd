package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/livechat/internal/browser"
	"github.com/ibeckermayer/livechat/internal/chatlog"
	"github.com/ibeckermayer/livechat/internal/config"
	"github.com/ibeckermayer/livechat/internal/conversation"
	"github.com/ibeckermayer/livechat/internal/session"
	"github.com/ibeckermayer/livechat/internal/store"
	"github.com/ibeckermayer/livechat/internal/widget"
)

var _ ChatSurface = (*widget.Surface)(nil)

// ChatSurface is a conversation surface that holds resources until closed.
type ChatSurface interface {
	conversation.Surface
	Close()
}

// Authenticator performs the visitor login.
type Authenticator interface {
	Login(ctx context.Context, id session.Identity) (session.Credentials, error)
}

// SurfaceOpener turns credentials into a live chat surface.
type SurfaceOpener func(ctx context.Context, creds session.Credentials, id session.Identity) (ChatSurface, error)

// Request is one conversation to run.
type Request struct {
	Identity session.Identity
	Message  string
}

// Result describes how a run ended.
type Result struct {
	RunID   string // empty when the archive is disabled
	Welcome []string
	Reply   *chatlog.Message
	Outcome string
}

// App holds the collaborators for running conversations.
type App struct {
	cfg     *config.Config
	auth    Authenticator
	open    SurfaceOpener
	archive *store.Store // nil when archiving is disabled
	logger  *zap.Logger
	now     func() time.Time
}

// New wires the production login client and the Chrome-backed widget surface.
// archive may be nil.
func New(cfg *config.Config, archive *store.Store, logger *zap.Logger) *App {
	client := session.NewClient(cfg.Widget.LoginURL, cfg.Widget.ClientID, cfg.Widget.UserAgent, logger)
	return NewWith(cfg, client, WidgetOpener(cfg, logger), archive, logger)
}

// NewWith creates an App with explicit collaborators.
func NewWith(cfg *config.Config, auth Authenticator, open SurfaceOpener, archive *store.Store, logger *zap.Logger) *App {
	return &App{
		cfg:     cfg,
		auth:    auth,
		open:    open,
		archive: archive,
		logger:  logger.Named("app"),
		now:     time.Now,
	}
}

// WidgetOpener opens the configured widget in Chrome.
func WidgetOpener(cfg *config.Config, logger *zap.Logger) SurfaceOpener {
	opts := widget.Options{
		PageURL:  cfg.Widget.PageURL,
		ClientID: cfg.Widget.ClientID,
		Browser: browser.Settings{
			Headless: cfg.Browser.Headless,
			ExecPath: cfg.Browser.ExecPath,
		},
		LoadDelay:     cfg.Browser.LoadDelay,
		ReloadDelay:   cfg.Browser.ReloadDelay,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}
	return func(ctx context.Context, creds session.Credentials, id session.Identity) (ChatSurface, error) {
		surface, err := widget.Open(ctx, opts, creds, id, logger)
		if err != nil {
			return nil, err
		}
		return surface, nil
	}
}

// Run truncates the transcript, logs in, opens the surface, waits for the
// welcome, sends the message and waits for a reply. The surface is released on
// every path, including cancellation of ctx.
func (a *App) Run(ctx context.Context, req Request) (result *Result, err error) {
	result = &Result{}

	transcript := chatlog.NewFile(a.cfg.Chat.LogPath)
	if err := transcript.Truncate(); err != nil {
		return nil, err
	}
	a.logger.Debug("Transcript truncated", zap.String("path", transcript.Path()))
	recorder := chatlog.Multi{transcript}

	if a.archive != nil {
		runID, startErr := a.archive.StartRun(ctx, req.Identity.Mode.String(), a.now())
		if startErr != nil {
			a.logger.Warn("Archive unavailable for this run", zap.Error(startErr))
		} else {
			result.RunID = runID
			recorder = append(recorder, archiveRecorder{rec: a.archive.Recorder(runID), logger: a.logger})
			defer func() { a.finishArchive(runID, result, err) }()
		}
	}

	a.logger.Info("Logging in", zap.Stringer("mode", req.Identity.Mode))
	creds, err := a.auth.Login(ctx, req.Identity)
	if err != nil {
		return result, fmt.Errorf("login: %w", err)
	}

	a.logger.Info("Login succeeded, opening chat surface")
	surface, err := a.open(ctx, creds, req.Identity)
	if err != nil {
		return result, fmt.Errorf("open chat surface: %w", err)
	}
	defer surface.Close()

	poller := conversation.New(surface, recorder, conversation.Config{
		WelcomeAttempts: a.cfg.Chat.WelcomeAttempts,
		WelcomeInterval: a.cfg.Chat.WelcomeInterval,
		ReplyInterval:   a.cfg.Chat.ReplyInterval,
	}, a.logger)

	a.logger.Info("Waiting for welcome message")
	welcome, err := poller.AwaitWelcome(ctx)
	if err != nil {
		return result, err
	}
	result.Welcome = welcome
	if len(welcome) > 0 {
		last := welcome[len(welcome)-1]
		a.logger.Info("Welcome message received", zap.String("text", last))
		if _, err := poller.Record(chatlog.SenderAgent, last); err != nil {
			return result, err
		}
	}

	if err := poller.SendMessage(ctx, req.Message); err != nil {
		return result, err
	}

	reply, err := poller.AwaitReply(ctx, welcome, a.cfg.Chat.ReplyTimeout)
	if err != nil {
		return result, err
	}
	result.Reply = reply
	if reply != nil {
		result.Outcome = store.OutcomeReplied
	} else {
		result.Outcome = store.OutcomeTimeout
	}
	return result, nil
}

// archiveRecorder keeps archive write failures out of the run. Only the
// transcript file is allowed to abort a conversation.
type archiveRecorder struct {
	rec    chatlog.Recorder
	logger *zap.Logger
}

func (r archiveRecorder) Record(msg chatlog.Message) error {
	if err := r.rec.Record(msg); err != nil {
		r.logger.Warn("Failed to archive message", zap.String("sender", string(msg.Sender)), zap.Error(err))
	}
	return nil
}

func (a *App) finishArchive(runID string, result *Result, runErr error) {
	outcome := result.Outcome
	if runErr != nil || outcome == "" {
		outcome = store.OutcomeFailed
	}
	// The run context may already be cancelled; the archive row still gets closed.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.archive.FinishRun(ctx, runID, outcome, a.now()); err != nil {
		a.logger.Warn("Failed to finish archived run", zap.String("run", runID), zap.Error(err))
	}
}
