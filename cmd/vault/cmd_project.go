package main

import (
	"context"
	"fmt"
	"strings"

	"researchvault/pkg/protocol"

	"github.com/spf13/cobra"
)

// newProjectCmd creates the "vault project" parent command.
func newProjectCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage research projects",
	}
	cmd.AddCommand(
		newProjectInitCmd(dbPath),
		newProjectListCmd(dbPath),
		newProjectUpdateCmd(dbPath),
		newProjectStatusCmd(dbPath),
	)
	return cmd
}

// newProjectInitCmd creates the "vault project init" subcommand.
func newProjectInitCmd(dbPath *string) *cobra.Command {
	var id, name, objective string
	var priority int

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a project (idempotent)",
		Long:  "Create a project and its main branch. Re-running with an existing id\nis a no-op: the first write wins and the stored objective is kept.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			projectID, err := store.StartProject(context.Background(), id, name, objective, priority)
			if err != nil {
				return fmt.Errorf("project init: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s ready (branch main)\n", projectID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "project id (generated when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&objective, "objective", "", "research objective")
	cmd.Flags().IntVar(&priority, "priority", 0, "scheduling priority")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("objective")

	return cmd
}

// newProjectListCmd creates the "vault project list" subcommand.
func newProjectListCmd(dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, highest priority first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			projects, err := store.ListProjects(context.Background())
			if err != nil {
				return fmt.Errorf("project list: %w", err)
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects.")
				return nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%-18s %-24s %-10s %-8s %s\n", "ID", "NAME", "STATUS", "PRIORITY", "OBJECTIVE")
			for _, p := range projects {
				fmt.Fprintf(&b, "%-18s %-24s %-10s %-8d %s\n",
					p.ID, truncateText(p.Name, 24), p.Status, p.Priority, truncateText(p.Objective, 60))
			}
			fmt.Fprint(cmd.OutOrStdout(), b.String())
			return nil
		},
	}
}

// newProjectUpdateCmd creates the "vault project update" subcommand.
func newProjectUpdateCmd(dbPath *string) *cobra.Command {
	var id, status string
	var priority int

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project's status or priority",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			if status != "" {
				if err := store.SetProjectStatus(ctx, id, status); err != nil {
					return fmt.Errorf("project update: %w", err)
				}
			}
			if cmd.Flags().Changed("priority") {
				if err := store.SetProjectPriority(ctx, id, priority); err != nil {
					return fmt.Errorf("project update: %w", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project %s updated\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&status, "status", "", "new status (active|paused|completed|failed)")
	cmd.Flags().IntVar(&priority, "priority", 0, "new priority")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// newProjectStatusCmd creates the "vault project status" subcommand.
func newProjectStatusCmd(dbPath *string) *cobra.Command {
	var id, branch, tag string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a project snapshot with recent events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			project, events, err := store.GetStatus(context.Background(), id, branch, tag)
			if err != nil {
				return fmt.Errorf("project status: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, heading(fmt.Sprintf("%s (%s)", project.Name, project.ID)))
			fmt.Fprintf(out, "%s %s\n", label("objective:"), project.Objective)
			fmt.Fprintf(out, "%s %s   %s %d\n", label("status:"), project.Status, label("priority:"), project.Priority)
			if len(events) == 0 {
				fmt.Fprintln(out, "No recent events.")
				return nil
			}
			fmt.Fprintln(out, heading("Recent events"))
			for _, e := range events {
				fmt.Fprintf(out, "%s  %-10s %-12s %s\n", e.Timestamp, e.Type, e.Step, truncateText(e.Payload, 80))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&tag, "tag", "", "filter events by tag")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// truncateText truncates s to maxLen characters, appending "..." if truncated.
func truncateText(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
