package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/verify"

	"github.com/spf13/cobra"
)

// newVerifyCmd creates the "vault verify" parent command.
func newVerifyCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Plan and run verification missions",
	}
	cmd.AddCommand(
		newVerifyPlanCmd(dbPath),
		newVerifyListCmd(dbPath),
		newVerifyRunCmd(dbPath),
		newVerifyCompleteCmd(dbPath),
	)
	return cmd
}

// newVerifyPlanCmd creates the "vault verify plan" subcommand.
func newVerifyPlanCmd(dbPath *string) *cobra.Command {
	var project, branch string
	var threshold float64
	var maxMissions int

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Queue missions for weak findings",
		Long:  "Scan the branch for findings below the confidence threshold or\ntagged unverified and queue search missions for them. Replanning is\nidempotent: already-queued queries are skipped.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			planned, err := newVerifyService(store).PlanMissions(context.Background(), project, branch, verify.PlanOpts{
				Threshold:   threshold,
				MaxMissions: maxMissions,
			})
			if err != nil {
				return fmt.Errorf("verify plan: %w", err)
			}
			if len(planned) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No new missions.")
				return nil
			}
			for _, m := range planned {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-14s %s\n", m.MissionID, m.FindingID, m.Query)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.7, "confidence threshold")
	cmd.Flags().IntVar(&maxMissions, "max-missions", 20, "cap on new missions")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// newVerifyListCmd creates the "vault verify list" subcommand.
func newVerifyListCmd(dbPath *string) *cobra.Command {
	var project, branch, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions, highest priority first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			missions, err := newVerifyService(store).ListMissions(context.Background(), project, branch, status, limit)
			if err != nil {
				return fmt.Errorf("verify list: %w", err)
			}
			if len(missions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No missions.")
				return nil
			}
			for _, m := range missions {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-12s p%-3d %.2f  %s\n",
					m.ID, m.Status, m.Priority, m.FindingConfidence, truncateText(m.Query, 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum missions to return")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// newVerifyRunCmd creates the "vault verify run" subcommand.
func newVerifyRunCmd(dbPath *string) *cobra.Command {
	var project, branch, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute queued missions",
		Long:  "Run open missions through the cache-first search client. A missing\nsearch key parks missions blocked; transient failures return them to\nopen for a later run. Use --status blocked to retry parked missions\nafter configuring a provider.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := newVerifyService(store).RunMissions(context.Background(), project, branch, verify.RunOpts{Limit: limit, Status: status})
			if err != nil {
				return fmt.Errorf("verify run: %w", err)
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No open missions.")
				return nil
			}
			for _, r := range results {
				line := fmt.Sprintf("%-16s %-12s %s", r.MissionID, r.Status, truncateText(r.Query, 50))
				if r.Origin != "" {
					line += "  (" + r.Origin + ")"
				}
				if r.Error != "" {
					line += "  " + r.Error
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&status, "status", protocol.MissionOpen, "missions to pick up (open|blocked)")
	cmd.Flags().IntVar(&limit, "limit", 5, "missions per batch")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// newVerifyCompleteCmd creates the "vault verify complete" subcommand.
func newVerifyCompleteCmd(dbPath *string) *cobra.Command {
	var id, status, note string

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Administratively set a mission's status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := newVerifyService(store).SetMissionStatus(context.Background(), id, status, note); err != nil {
				return fmt.Errorf("verify complete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mission %s -> %s\n", id, status)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "mission id")
	cmd.Flags().StringVar(&status, "status", protocol.MissionDone, "new status (open|in_progress|done|blocked|cancelled)")
	cmd.Flags().StringVar(&note, "note", "", "note recorded as last_error")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}
