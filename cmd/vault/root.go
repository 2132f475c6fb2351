package main

import (
	"fmt"

	"researchvault/internal/appversion"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root vault command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:           "vault",
		Short:         "Branching research-knowledge store",
		Long:          "vault manages research projects: branching evidence, verification\nmissions for weak findings, watch targets, and a strategy engine that\nrecommends the next best action.",
		Version:       fmt.Sprintf("vault %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default $RESEARCHVAULT_DB or ~/.researchvault/research_vault.db)")

	cmd.AddCommand(
		newProjectCmd(&dbPath),
		newBranchCmd(&dbPath),
		newHypothesisCmd(&dbPath),
		newFindingCmd(&dbPath),
		newArtifactCmd(&dbPath),
		newVerifyCmd(&dbPath),
		newWatchCmd(&dbPath),
		newSynthesizeCmd(&dbPath),
		newStrategyCmd(&dbPath),
		newEventsCmd(&dbPath),
	)

	return cmd
}
