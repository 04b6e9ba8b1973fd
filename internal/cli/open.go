package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	browseropts "github.com/ibeckermayer/livechat/internal/browser"
	"github.com/ibeckermayer/livechat/internal/config"
)

func newOpenCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "open <config|log|archive>",
		Short:     "Open a livechat file with the system default application",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"config", "log", "archive"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := openTarget(g, args[0])
			if err != nil {
				return err
			}
			if err := browser.OpenFile(path); err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			return nil
		},
	}
}

func openTarget(g *globalFlags, target string) (string, error) {
	switch target {
	case "config":
		if g.configPath != "" {
			return g.configPath, nil
		}
		return config.ConfigPath()
	case "log":
		cfg, err := loadConfig(g.configPath)
		if err != nil {
			return "", err
		}
		return filepath.Abs(cfg.Chat.LogPath)
	case "archive":
		cfg, err := loadConfig(g.configPath)
		if err != nil {
			return "", err
		}
		return cfg.ArchivePath()
	default:
		return "", &usageError{fmt.Errorf("unknown target %q (want config, log or archive)", target)}
	}
}

func newBotTestCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "bot-test",
		Short: "Open bot.sannysoft.com with the widget's stealth options to audit the browser fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}

			// non-headless so you can see it
			opts := browseropts.Options(browseropts.Settings{Headless: false, ExecPath: cfg.Browser.ExecPath})

			allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
			defer cancel()

			ctx, cancel := chromedp.NewContext(allocCtx)
			defer cancel()

			if err := chromedp.Run(ctx,
				browseropts.Stealth(),
				chromedp.Navigate("https://bot.sannysoft.com"),
				chromedp.WaitVisible("body", chromedp.ByQuery),
			); err != nil {
				return fmt.Errorf("failed to navigate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Press Enter to close the browser...")
			fmt.Fscanln(cmd.InOrStdin())
			return nil
		},
	}
}
