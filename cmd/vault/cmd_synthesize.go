package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/synthesis"

	"github.com/spf13/cobra"
)

// newSynthesizeCmd creates the "vault synthesize" subcommand.
func newSynthesizeCmd(dbPath *string) *cobra.Command {
	var project, branch string
	var threshold float64
	var topK, maxLinks int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Link related evidence by similarity",
		Long:  "Embed every finding and artifact on the branch and persist\nsimilarity links for pairs above the threshold. Links are degree-capped\nper entity and per pass. --dry-run computes without writing.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := synthesis.NewEngine(store).Synthesize(context.Background(), project, branch, synthesis.Options{
				Threshold: threshold,
				TopK:      topK,
				MaxLinks:  maxLinks,
				Persist:   !dryRun,
			})
			if err != nil {
				return fmt.Errorf("synthesize: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d entities, %d links", result.Entities, len(result.Links))
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), " (dry run)")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), ", %d persisted\n", result.Persisted)
			}
			for _, l := range result.Links {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s <-> %s  %.3f\n", l.SourceID, l.TargetID, l.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().Float64Var(&threshold, "threshold", synthesis.DefaultThreshold, "minimum cosine similarity")
	cmd.Flags().IntVar(&topK, "top-k", synthesis.DefaultTopK, "links per entity cap")
	cmd.Flags().IntVar(&maxLinks, "max-links", synthesis.DefaultMaxLinks, "links per pass cap")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute links without persisting")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}
