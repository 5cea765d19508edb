package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"prism-board/domain"
)

func (a *app) newBoardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "boards",
		GroupID: "boards",
		Short:   "List, create and delete boards",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the boards of your organization, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway()
			if err != nil {
				return err
			}
			boards, err := gw.ListBoards(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(cmd, boards)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBoards(boards))
			return nil
		},
	}
	list.Flags().Bool("json", false, "print boards as JSON")

	create := &cobra.Command{
		Use:   "create TITLE",
		Short: "Create a board and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway()
			if err != nil {
				return err
			}
			in := domain.NewBoard{Title: args[0]}.Normalize()
			if err := in.Validate(); err != nil {
				return err
			}
			b, err := gw.CreateBoard(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.ID)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete BOARD_ID",
		Short: "Delete a board with all of its columns and tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := a.gateway()
			if err != nil {
				return err
			}
			return gw.DeleteBoard(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, create, del)
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
