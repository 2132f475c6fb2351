package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// newBranchCmd creates the "vault branch" parent command.
func newBranchCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage exploration branches",
	}
	cmd.AddCommand(newBranchCreateCmd(dbPath), newBranchListCmd(dbPath))
	return cmd
}

// newBranchCreateCmd creates the "vault branch create" subcommand.
func newBranchCreateCmd(dbPath *string) *cobra.Command {
	var project, name, parent, hypothesis string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a branch",
		Long:  "Create a branch under a project. The parent, when given, must\nalready exist. Branch ids are deterministic, so re-creating a branch\nreturns the same id.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			branchID, err := store.CreateBranch(context.Background(), project, name, parent, hypothesis)
			if err != nil {
				return fmt.Errorf("branch create: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Branch %s\n", branchID)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "branch name")
	cmd.Flags().StringVar(&parent, "parent", "", "parent branch name")
	cmd.Flags().StringVar(&hypothesis, "hypothesis", "", "branch hypothesis")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

// newBranchListCmd creates the "vault branch list" subcommand.
func newBranchListCmd(dbPath *string) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's branches in creation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			branches, err := store.ListBranches(context.Background(), project)
			if err != nil {
				return fmt.Errorf("branch list: %w", err)
			}
			if len(branches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No branches.")
				return nil
			}
			for _, b := range branches {
				parent := b.ParentID
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-16s parent=%-40s %s\n", b.ID, b.Name, parent, b.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}
