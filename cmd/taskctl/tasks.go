package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskdesk/config"
	"taskdesk/domain"
)

func tasksCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage tasks",
	}
	cmd.AddCommand(tasksListCmd(cfg))
	cmd.AddCommand(tasksGetCmd(cfg))
	cmd.AddCommand(tasksCreateCmd(cfg))
	cmd.AddCommand(tasksUpdateCmd(cfg))
	cmd.AddCommand(tasksDeleteCmd(cfg))
	cmd.AddCommand(tasksStatusCmd(cfg))
	return cmd
}

func tasksListCmd(cfg func() *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tasks visible to the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				if err := a.session.Refresh(cmd.Context()); err != nil {
					return err
				}
				list := a.session.Tasks().Snapshot()
				if asJSON {
					return printJSON(cmd.OutOrStdout(), list)
				}
				return printTasks(cmd.OutOrStdout(), list)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func tasksGetCmd(cfg func() *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				t, err := a.client.Task(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), t)
				}
				return printTask(cmd.OutOrStdout(), t)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func tasksCreateCmd(cfg func() *config.Config) *cobra.Command {
	var (
		fields domain.TaskFields
		due    string
		status string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task and assign it to an employee",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if due != "" {
				d, err := domain.ParseDate(due)
				if err != nil {
					return err
				}
				fields.DueDate = d
			}
			fields.Status = domain.Status(status)
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				t, err := a.session.CreateTask(cmd.Context(), fields)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", t.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fields.Title, "title", "", "Title")
	cmd.Flags().StringVar(&fields.Description, "description", "", "Description")
	cmd.Flags().StringVar(&fields.AssignedEmployee, "assignee", "", "Employee id")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "Initial status")
	return cmd
}

func tasksUpdateCmd(cfg func() *config.Config) *cobra.Command {
	var title, description, assigneeID, due, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("assignee") {
				patch.AssignedEmployee = &domain.EmployeeRef{ID: assigneeID}
			}
			if flags.Changed("due") {
				d, err := domain.ParseDate(due)
				if err != nil {
					return err
				}
				patch.DueDate = &d
			}
			if flags.Changed("status") {
				s, err := domain.ParseStatus(status)
				if err != nil {
					return err
				}
				patch.Status = &s
			}
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				t, err := a.session.UpdateTask(cmd.Context(), args[0], patch)
				if err != nil {
					return err
				}
				return printTask(cmd.OutOrStdout(), t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&assigneeID, "assignee", "", "Employee id")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&status, "status", "", "Status")
	return cmd
}

func tasksDeleteCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				if err := a.session.DeleteTask(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func tasksStatusCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <pending|in-progress|completed>",
		Short: "Change the status of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := domain.ParseStatus(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				t, err := a.session.SetStatus(cmd.Context(), args[0], status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", t.Title, t.Status)
				return nil
			})
		},
	}
}
