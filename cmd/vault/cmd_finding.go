package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"

	"github.com/spf13/cobra"
)

// newFindingCmd creates the "vault finding" parent command.
func newFindingCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finding",
		Short: "Record and browse evidence",
	}
	cmd.AddCommand(newFindingAddCmd(dbPath), newFindingListCmd(dbPath))
	return cmd
}

// newFindingAddCmd creates the "vault finding add" subcommand.
func newFindingAddCmd(dbPath *string) *cobra.Command {
	var project, branch, title, content, sourceURL, tags string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a finding",
		Long:  "Record one piece of evidence on a branch. Free text, URLs, and\npaths are scrubbed of credentials before persistence; confidence is\nclamped to [0,1].",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := store.AddFinding(context.Background(), vault.FindingParams{
				ProjectID:  project,
				Branch:     branch,
				Title:      title,
				Content:    content,
				SourceURL:  sourceURL,
				Tags:       tags,
				Confidence: confidence,
			})
			if err != nil {
				return fmt.Errorf("finding add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Finding %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&title, "title", "", "finding title")
	cmd.Flags().StringVar(&content, "content", "", "finding content")
	cmd.Flags().StringVar(&sourceURL, "url", "", "source URL")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "confidence in [0,1]")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

// newFindingListCmd creates the "vault finding list" subcommand.
func newFindingListCmd(dbPath *string) *cobra.Command {
	var project, branch, tag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List findings, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			findings, err := store.ListFindings(context.Background(), project, branch, vault.ListOpts{Tag: tag, Limit: limit})
			if err != nil {
				return fmt.Errorf("finding list: %w", err)
			}
			if len(findings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No findings.")
				return nil
			}
			for _, f := range findings {
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %.2f  %-50s %s\n",
					f.ID, f.Confidence, truncateText(f.Title, 50), f.Tags)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&tag, "tag", "", "filter by tag")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum findings to return")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}
