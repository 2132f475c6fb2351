package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"

	"github.com/spf13/cobra"
)

// newHypothesisCmd creates the "vault hypothesis" parent command.
func newHypothesisCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hypothesis",
		Short: "Track hypotheses on a branch",
	}
	cmd.AddCommand(
		newHypothesisAddCmd(dbPath),
		newHypothesisListCmd(dbPath),
		newHypothesisStatusCmd(dbPath),
	)
	return cmd
}

// newHypothesisAddCmd creates the "vault hypothesis add" subcommand.
func newHypothesisAddCmd(dbPath *string) *cobra.Command {
	var project, branch, statement, rationale string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a hypothesis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := store.AddHypothesis(context.Background(), vault.HypothesisParams{
				ProjectID:  project,
				Branch:     branch,
				Statement:  statement,
				Rationale:  rationale,
				Confidence: confidence,
			})
			if err != nil {
				return fmt.Errorf("hypothesis add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Hypothesis %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&statement, "statement", "", "hypothesis statement")
	cmd.Flags().StringVar(&rationale, "rationale", "", "supporting rationale")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "confidence in [0,1]")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("statement")

	return cmd
}

// newHypothesisListCmd creates the "vault hypothesis list" subcommand.
func newHypothesisListCmd(dbPath *string) *cobra.Command {
	var project, branch string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hypotheses, newest first",
		Long:  "List hypotheses for a project, newest first. With --branch, only\nthat branch; otherwise all branches.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			hyps, err := store.ListHypotheses(context.Background(), project, branch)
			if err != nil {
				return fmt.Errorf("hypothesis list: %w", err)
			}
			if len(hyps) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No hypotheses.")
				return nil
			}
			for _, h := range hyps {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-9s %.2f  %s\n",
					h.ID, h.Status, h.Confidence, truncateText(h.Statement, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", "", "branch name (all branches when omitted)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// newHypothesisStatusCmd creates the "vault hypothesis status" subcommand.
func newHypothesisStatusCmd(dbPath *string) *cobra.Command {
	var id, status string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Move a hypothesis through its lifecycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.SetHypothesisStatus(context.Background(), id, status); err != nil {
				return fmt.Errorf("hypothesis status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Hypothesis %s -> %s\n", id, status)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "hypothesis id")
	cmd.Flags().StringVar(&status, "status", "", "new status (open|accepted|rejected|archived)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("status")

	return cmd
}
