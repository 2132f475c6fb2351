package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"

	"github.com/spf13/cobra"
)

// newEventsCmd creates the "vault events" subcommand.
func newEventsCmd(dbPath *string) *cobra.Command {
	var project, branch, eventType string
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded operation events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			events, err := store.ListEvents(context.Background(), project, branch, eventType, limit)
			if err != nil {
				return fmt.Errorf("events: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No events.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-12s %s\n",
					e.Timestamp, e.Type, e.Step, truncateText(e.Payload, 80))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type (INGEST|VERIFY|WATCH|ARTIFACT|SYNTHESIS)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to return")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}
