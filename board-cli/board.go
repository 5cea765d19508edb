package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prism-board/board-client/store"
	"prism-board/domain"
)

func (a *app) newBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "board",
		GroupID: "boards",
		Short:   "Show or follow one board",
	}

	show := &cobra.Command{
		Use:   "show BOARD_ID",
		Short: "Print a board with its columns and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filterFlags(cmd)
			if err != nil {
				return err
			}
			s, err := a.openBoard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer s.close()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd, f.Apply(s.board()))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderState(s.st.State(), f))
			return nil
		},
	}
	addFilterFlags(show)
	show.Flags().Bool("json", false, "print the board as JSON")

	watch := &cobra.Command{
		Use:   "watch BOARD_ID",
		Short: "Redraw a board whenever it changes until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filterFlags(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.watch(ctx, cmd.OutOrStdout(), args[0], f)
		},
	}
	addFilterFlags(watch)

	cmd.AddCommand(show, watch)
	return cmd
}

func (a *app) watch(ctx context.Context, out io.Writer, boardID string, f store.Filter) error {
	s, err := a.openBoard(ctx, boardID)
	if err != nil {
		return err
	}
	defer s.close()

	draw := func(st store.State) {
		fmt.Fprint(out, "\033[H\033[2J")
		fmt.Fprintln(out, renderState(st, f))
	}
	draw(s.st.State())
	cancel := s.st.Subscribe(draw)
	defer cancel()

	if err := s.eng.Follow(ctx, s.gw); err != nil {
		return err
	}
	return s.eng.Err()
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("priority", "", "only show tasks with this priority")
	cmd.Flags().String("query", "", "only show tasks whose title or description contains this text")
	cmd.Flags().Bool("hide-completed", false, "hide completed tasks")
}

func filterFlags(cmd *cobra.Command) (store.Filter, error) {
	var f store.Filter
	if raw, _ := cmd.Flags().GetString("priority"); raw != "" {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	f.Query, _ = cmd.Flags().GetString("query")
	f.HideCompleted, _ = cmd.Flags().GetBool("hide-completed")
	return f, nil
}
