package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func (a *app) newColumnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "column",
		GroupID: "content",
		Short:   "Add, rename, reorder and delete columns",
	}
	cmd.PersistentFlags().String("board", "", "board the column belongs to")
	_ = cmd.MarkPersistentFlagRequired("board")

	add := &cobra.Command{
		Use:   "add TITLE",
		Short: "Append a column and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			id, err := s.apply(cmd.Context(), s.eng.CreateColumn(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	rename := &cobra.Command{
		Use:   "rename COLUMN TITLE",
		Short: "Rename a column given by id or title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			col, err := s.column(args[0])
			if err != nil {
				return err
			}
			_, err = s.apply(cmd.Context(), s.eng.RenameColumn(col.ID, args[1]))
			return err
		},
	}

	move := &cobra.Command{
		Use:   "move COLUMN INDEX",
		Short: "Place a column at a zero-based position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[1])
			}
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			col, err := s.column(args[0])
			if err != nil {
				return err
			}
			_, err = s.apply(cmd.Context(), s.eng.MoveColumn(col.ID, index))
			return err
		},
	}

	del := &cobra.Command{
		Use:   "delete COLUMN",
		Short: "Delete a column and every task in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			col, err := s.column(args[0])
			if err != nil {
				return err
			}
			_, err = s.apply(cmd.Context(), s.eng.DeleteColumn(col.ID))
			return err
		},
	}

	cmd.AddCommand(add, rename, move, del)
	return cmd
}

func (a *app) openBoardFlag(cmd *cobra.Command) (*session, error) {
	boardID, _ := cmd.Flags().GetString("board")
	if boardID == "" {
		return nil, fmt.Errorf("--board is required")
	}
	return a.openBoard(cmd.Context(), boardID)
}
