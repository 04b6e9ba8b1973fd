// Package cli wires the livechat commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ibeckermayer/livechat/internal/app"
	"github.com/ibeckermayer/livechat/internal/config"
	"github.com/ibeckermayer/livechat/internal/logging"
	"github.com/ibeckermayer/livechat/internal/session"
	"github.com/ibeckermayer/livechat/internal/store"
)

// usageError is a caller mistake detected before any network activity.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
}

// conversationFlags describe one chat run.
type conversationFlags struct {
	name     string
	email    string
	message  string
	mode     int
	timeout  time.Duration
	headless bool
}

func (f *conversationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Visitor display name")
	cmd.Flags().StringVar(&f.email, "email", "", "Visitor email address")
	cmd.Flags().StringVar(&f.message, "message", "", "Message to send (required)")
	cmd.Flags().IntVar(&f.mode, "mode", -1, "Identity mode override: 0 name+email, 1 email, 2 name, 3 anonymous")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "How long to wait for an agent reply (default from config)")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "Run Chrome headless")
}

// apply folds command-line overrides into cfg and builds the request.
func (f *conversationFlags) apply(cmd *cobra.Command, cfg *config.Config) (app.Request, error) {
	if f.mode >= 0 {
		cfg.Widget.IdentityMode = f.mode
	}
	if f.timeout > 0 {
		cfg.Chat.ReplyTimeout = f.timeout
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = f.headless
	}
	return buildRequest(cfg.Widget.IdentityMode, f.name, f.email, f.message)
}

func buildRequest(mode int, name, email, message string) (app.Request, error) {
	if message == "" {
		return app.Request{}, &usageError{errors.New("--message is required")}
	}
	m, err := session.ParseIdentityMode(mode)
	if err != nil {
		return app.Request{}, &usageError{err}
	}
	id := session.Identity{Mode: m, Name: name, Email: email}
	if err := id.Validate(); err != nil {
		return app.Request{}, &usageError{err}
	}
	return app.Request{Identity: id, Message: message}, nil
}

// NewRootCommand builds the livechat command tree.
func NewRootCommand() *cobra.Command {
	var g globalFlags
	var conv conversationFlags

	cmd := &cobra.Command{
		Use:   "livechat",
		Short: "Start a visitor chat on the click-to-chat widget and wait for an agent reply",
		Long: "livechat logs in as a website visitor, opens the chat widget in headless Chrome,\n" +
			"sends one message and waits for an agent to answer. Every message is written\n" +
			"to the transcript file (chat.log_path).",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			req, err := conv.apply(cmd, cfg)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return &usageError{err}
			}

			logger, err := newLogger(cfg, g.verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, cmd.OutOrStdout(), cfg, req, logger)
		},
	}

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Path to config.toml (default: user config dir)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return &usageError{err}
	})
	conv.register(cmd)

	cmd.AddCommand(newScheduleCmd(&g))
	cmd.AddCommand(newHistoryCmd(&g))
	cmd.AddCommand(newOpenCmd(&g))
	cmd.AddCommand(newBotTestCmd(&g))

	return cmd
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	cmd := NewRootCommand()
	executed, err := cmd.ExecuteC()
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var uerr *usageError
	if errors.As(err, &uerr) {
		if executed == nil {
			executed = cmd
		}
		fmt.Fprint(os.Stderr, executed.UsageString())
		return 2
	}
	return 1
}

func runOnce(ctx context.Context, out io.Writer, cfg *config.Config, req app.Request, logger *zap.Logger) error {
	archive, err := openArchive(cfg)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	res, err := app.New(cfg, archive, logger).Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Interrupted, browser released")
			return nil
		}
		return err
	}

	printResult(out, res)
	return nil
}

func printResult(out io.Writer, res *app.Result) {
	if res.Reply != nil {
		fmt.Fprintf(out, "Agent: %s\n", res.Reply.Text)
	} else {
		fmt.Fprintln(out, "No agent reply.")
	}
	if res.RunID != "" {
		fmt.Fprintf(out, "Run: %s\n", res.RunID)
	}
}

// loadConfig reads .env, then the config file (writing defaults on first run),
// then LIVECHAT_* overrides.
func loadConfig(path string) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		cfg = config.Default()
		if err := cfg.SaveTo(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save default config: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Created default config at: %s\n", path)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, &usageError{err}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.New(level, cfg.Logging.Development)
}

func openArchive(cfg *config.Config) (*store.Store, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	path, err := cfg.ArchivePath()
	if err != nil {
		return nil, err
	}
	s, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	return s, nil
}
