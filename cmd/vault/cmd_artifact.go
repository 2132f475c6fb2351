package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"

	"github.com/spf13/cobra"
)

// newArtifactCmd creates the "vault artifact" parent command.
func newArtifactCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Register local artifacts",
	}
	cmd.AddCommand(newArtifactAddCmd(dbPath), newArtifactListCmd(dbPath))
	return cmd
}

// newArtifactAddCmd creates the "vault artifact add" subcommand.
func newArtifactAddCmd(dbPath *string) *cobra.Command {
	var project, branch, path, artifactType string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register an artifact path",
		Long:  "Register a local file as an artifact. The path must resolve inside\none of the sandbox roots; anything else is rejected before any write.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := store.AddArtifact(context.Background(), vault.ArtifactParams{
				ProjectID: project,
				Branch:    branch,
				Path:      path,
				Type:      artifactType,
			})
			if err != nil {
				return fmt.Errorf("artifact add: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Artifact %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&path, "path", "", "artifact path (must be inside a sandbox root)")
	cmd.Flags().StringVar(&artifactType, "type", "FILE", "artifact type")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("path")

	return cmd
}

// newArtifactListCmd creates the "vault artifact list" subcommand.
func newArtifactListCmd(dbPath *string) *cobra.Command {
	var project, branch string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List artifacts, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			artifacts, err := store.ListArtifacts(context.Background(), project, branch)
			if err != nil {
				return fmt.Errorf("artifact list: %w", err)
			}
			if len(artifacts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No artifacts.")
				return nil
			}
			for _, a := range artifacts {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %-8s %s\n", a.ID, a.Type, a.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}
