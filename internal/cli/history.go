package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ibeckermayer/livechat/internal/chatlog"
	"github.com/ibeckermayer/livechat/internal/store"
)

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived chat runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := historyStore(g)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived runs.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tMODE\tOUTCOME\tMESSAGES")
			for _, r := range runs {
				outcome := r.Outcome
				if !r.FinishedAt.Valid {
					outcome = "running"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.StartedAt.Local().Format(chatlog.TimeLayout), r.IdentityMode, outcome, r.MessageCount)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show [run-id]",
		Short: "Print an archived run's transcript, or the latest transcript file without a run id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return printTranscript(cmd, g)
			}

			s, err := historyStore(g)
			if err != nil {
				return err
			}
			defer s.Close()

			msgs, err := s.Messages(cmd.Context(), args[0])
			if errors.Is(err, store.ErrRunNotFound) {
				return &usageError{fmt.Errorf("no archived run %q", args[0])}
			}
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Fprintln(cmd.OutOrStdout(), m.Line())
			}
			return nil
		},
	})

	return cmd
}

func printTranscript(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return err
	}
	lines, err := chatlog.NewFile(cfg.Chat.LogPath).ReadLines()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "No transcript yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}
	for _, l := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), l)
	}
	return nil
}

func historyStore(g *globalFlags) (*store.Store, error) {
	cfg, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	path, err := cfg.ArchivePath()
	if err != nil {
		return nil, err
	}
	return store.New(path)
}
