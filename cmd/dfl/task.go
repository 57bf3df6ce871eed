package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dealflowhq/dealflow/internal/idgen"
	"github.com/dealflowhq/dealflow/internal/timeparsing"
	"github.com/dealflowhq/dealflow/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage escalatable tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task with a due time",
	Long: `Create a task that the escalation sweep watches once its due time passes.

The --due flag accepts compact durations (+2d, +6h), natural language
("next friday", "in 3 days"), or absolute dates (2026-09-15).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		title, _ := cmd.Flags().GetString("title")
		dealID, _ := cmd.Flags().GetString("deal")
		assignee, _ := cmd.Flags().GetString("assignee")
		due, _ := cmd.Flags().GetString("due")

		now := time.Now().UTC()
		dueAt, err := timeparsing.ParseDue(due, now)
		if err != nil {
			return err
		}

		item := &types.WorkItem{
			ID:        idgen.New("task", now, 0, dealID, title),
			DealID:    dealID,
			Type:      types.ItemTask,
			Title:     title,
			Creator:   actor,
			Assignee:  assignee,
			StartedAt: dueAt,
		}
		if err := store.CreateWorkItem(cmd.Context(), item, actor); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(item)
			return nil
		}
		fmt.Printf("Created task %s due %s\n", item.ID, dueAt.Format("2006-01-02 15:04"))
		return nil
	},
}

var taskCloseCmd = &cobra.Command{
	Use:   "close <task-id>",
	Short: "Close a task so it stops escalating",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.CloseWorkItem(cmd.Context(), args[0], actor); err != nil {
			return err
		}
		fmt.Printf("Closed task %s\n", args[0])
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().String("title", "", "Task title (required)")
	taskCreateCmd.Flags().String("deal", "", "Deal the task belongs to")
	taskCreateCmd.Flags().String("assignee", "", "Current assignee (excluded from escalation broadcasts)")
	taskCreateCmd.Flags().String("due", "", "Due time expression (required)")
	_ = taskCreateCmd.MarkFlagRequired("title")
	_ = taskCreateCmd.MarkFlagRequired("due")

	taskCmd.AddCommand(taskCreateCmd, taskCloseCmd)
	rootCmd.AddCommand(taskCmd)
}
