// Package widget drives the vendor's click-to-chat widget in a headless Chrome
// and exposes it as a conversation surface.
package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/ibeckermayer/livechat/internal/browser"
	"github.com/ibeckermayer/livechat/internal/session"
)

// Options controls how the widget page is loaded.
type Options struct {
	PageURL       string
	ClientID      int
	Browser       browser.Settings
	LoadDelay     time.Duration // wait after first navigation, before storage is written
	ReloadDelay   time.Duration // wait after reload for the widget to become interactive
	ActionTimeout time.Duration // upper bound for a single DOM read or write
}

// Surface is a loaded widget in a running browser. Close must be called on every exit path.
type Surface struct {
	ctx           context.Context
	cancel        context.CancelFunc
	allocCancel   context.CancelFunc
	actionTimeout time.Duration
	logger        *zap.Logger

	closeOnce sync.Once
}

// Open launches Chrome, loads the widget, seeds localStorage with the visitor
// session and reloads so the widget resumes it. On error the browser is
// already released.
func Open(ctx context.Context, opts Options, creds session.Credentials, id session.Identity, logger *zap.Logger) (*Surface, error) {
	logger = logger.Named("widget")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, browser.Options(opts.Browser)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	s := &Surface{
		ctx:           browserCtx,
		cancel:        cancel,
		allocCancel:   allocCancel,
		actionTimeout: opts.ActionTimeout,
		logger:        logger,
	}
	if s.actionTimeout <= 0 {
		s.actionTimeout = 30 * time.Second
	}

	entries, err := storageEntries(creds, id)
	if err != nil {
		s.Close()
		return nil, err
	}

	pageURL := opts.PageURL + "#" + strconv.Itoa(opts.ClientID)
	logger.Info("Loading chat widget", zap.String("url", pageURL))

	if err := chromedp.Run(browserCtx,
		browser.Stealth(),
		chromedp.Navigate(pageURL),
		chromedp.Sleep(opts.LoadDelay),
		setStorage(entries),
		chromedp.Reload(),
		chromedp.Sleep(opts.ReloadDelay),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize chat widget: %w", err)
	}

	return s, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Surface) Close() {
	s.closeOnce.Do(func() {
		if err := chromedp.Cancel(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("Browser did not close cleanly", zap.Error(err))
		}
		s.cancel()
		s.allocCancel()
		s.logger.Info("Browser released")
	})
}

// AgentMessages returns the texts of agent-authored messages in display order.
// It fails while the widget's shadow roots are not attached yet.
func (s *Surface) AgentMessages(ctx context.Context) ([]string, error) {
	var texts []string
	if err := s.run(ctx, readAgentMessages(&texts)); err != nil {
		return nil, fmt.Errorf("failed to read agent messages: %w", err)
	}
	return texts, nil
}

// Submit types text into the composer and sends it. The text reaches the page
// as a call argument, never as script source.
func (s *Surface) Submit(ctx context.Context, text string) error {
	var sent bool
	if err := s.run(ctx, submitText(text, &sent)); err != nil {
		return fmt.Errorf("failed to submit message: %w", err)
	}
	if !sent {
		return errors.New("composer not found")
	}
	return nil
}

func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.actionTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func readAgentMessages(texts *[]string) chromedp.Action {
	return callOnDocument(extractAgentMessagesJS, texts, nil,
		WidgetHost, AgentMessageMarker, MessageText)
}

func submitText(text string, sent *bool) chromedp.Action {
	return callOnDocument(submitMessageJS, sent, awaitPromise,
		WidgetHost, ComposerInput, SendButton, text)
}

func awaitPromise(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
	return p.WithAwaitPromise(true)
}

// callOnDocument invokes fn with the page's document as receiver. Runtime.callFunctionOn
// needs a target object, so the document handle is resolved first and released after.
func callOnDocument(fn string, res any, opt chromedp.CallOption, args ...any) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var doc *runtime.RemoteObject
		if err := chromedp.Evaluate("document", &doc).Do(ctx); err != nil {
			return fmt.Errorf("failed to resolve document: %w", err)
		}
		if doc == nil || doc.ObjectID == "" {
			return errors.New("document has no object id")
		}
		defer func() {
			_ = runtime.ReleaseObject(doc.ObjectID).Do(ctx)
		}()

		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			p = p.WithObjectID(doc.ObjectID)
			if opt != nil {
				p = opt(p)
			}
			return p
		}, args...).Do(ctx)
	})
}

// storageEntries builds the localStorage values the widget expects for a resumed visitor.
func storageEntries(creds session.Credentials, id session.Identity) (map[string]string, error) {
	sessionJSON, err := json.Marshal(map[string]string{
		"sessionId": creds.SessionID,
		"pass":      creds.Password,
		"token":     creds.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session entry: %w", err)
	}
	visitorJSON, err := json.Marshal(map[string]string{
		"name":  id.Name,
		"email": id.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode visitor entry: %w", err)
	}

	return map[string]string{
		StorageSessionKey:  string(sessionJSON),
		StorageVisitorKey:  string(visitorJSON),
		StorageChatOpenKey: "true",
	}, nil
}

// setStorage writes entries one key at a time, passing both key and value as arguments.
func setStorage(entries map[string]string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for k, v := range entries {
			var ok bool
			if err := callOnDocument(setStorageItemJS, &ok, nil, k, v).Do(ctx); err != nil {
				return fmt.Errorf("failed to set localStorage %q: %w", k, err)
			}
		}
		return nil
	})
}
