package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"prism-board/domain"
)

func (a *app) newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		GroupID: "content",
		Short:   "Add, edit, move and delete tasks",
	}
	cmd.PersistentFlags().String("board", "", "board the task belongs to")
	_ = cmd.MarkPersistentFlagRequired("board")

	add := &cobra.Command{
		Use:   "add TITLE",
		Short: "Append a task to a column and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := domain.NewTask{Title: args[0]}
			in.Description, _ = cmd.Flags().GetString("description")
			if raw, _ := cmd.Flags().GetString("priority"); raw != "" {
				p, err := domain.ParsePriority(raw)
				if err != nil {
					return err
				}
				in.Priority = p
			}
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			colRef, _ := cmd.Flags().GetString("column")
			col, err := s.column(colRef)
			if err != nil {
				return err
			}
			in.ColumnID = col.ID
			id, err := s.apply(cmd.Context(), s.eng.CreateTask(in))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	add.Flags().String("column", "", "column id or title")
	add.Flags().String("description", "", "task description")
	add.Flags().String("priority", "", "low, medium, high or completed (default medium)")
	_ = add.MarkFlagRequired("column")

	edit := &cobra.Command{
		Use:   "edit TASK_ID",
		Short: "Change the title, description or priority of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.TaskPatch
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				p.Title = &v
			}
			if cmd.Flags().Changed("description") {
				v, _ := cmd.Flags().GetString("description")
				p.Description = &v
			}
			if cmd.Flags().Changed("priority") {
				raw, _ := cmd.Flags().GetString("priority")
				v, err := domain.ParsePriority(raw)
				if err != nil {
					return err
				}
				p.Priority = &v
			}
			if p.Empty() {
				return fmt.Errorf("nothing to change; pass --title, --description or --priority")
			}
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			if _, err := s.task(args[0]); err != nil {
				return err
			}
			_, err = s.apply(cmd.Context(), s.eng.UpdateTask(args[0], p))
			return err
		},
	}
	edit.Flags().String("title", "", "new title")
	edit.Flags().String("description", "", "new description")
	edit.Flags().String("priority", "", "new priority")

	move := &cobra.Command{
		Use:   "move TASK_ID COLUMN INDEX",
		Short: "Place a task at a zero-based position of a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[2])
			}
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			col, err := s.column(args[1])
			if err != nil {
				return err
			}
			_, err = s.apply(cmd.Context(), s.eng.MoveTask(args[0], col.ID, index))
			return err
		},
	}

	del := &cobra.Command{
		Use:   "delete TASK_ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openBoardFlag(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			_, err = s.apply(cmd.Context(), s.eng.DeleteTask(args[0]))
			return err
		},
	}

	cmd.AddCommand(add, edit, move, del)
	return cmd
}
