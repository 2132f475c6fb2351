package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"researchvault/pkg/protocol"
	"researchvault/pkg/watch"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newWatchCmd creates the "vault watch" parent command.
func newWatchCmd(dbPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage recurring watch targets",
	}
	cmd.AddCommand(
		newWatchAddCmd(dbPath),
		newWatchListCmd(dbPath),
		newWatchDisableCmd(dbPath),
		newWatchImportCmd(dbPath),
	)
	return cmd
}

// newWatchAddCmd creates the "vault watch add" subcommand.
func newWatchAddCmd(dbPath *string) *cobra.Command {
	var project, branch, targetType, target, tags string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a watch target (idempotent)",
		Long:  "Register a recurring check. Targets are deduplicated on their\nnormalized form: re-adding an equivalent target returns the existing\nid instead of creating a duplicate.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := watch.NewRegistry(store).AddTarget(context.Background(), watch.AddParams{
				ProjectID: project,
				Branch:    branch,
				Type:      targetType,
				Target:    target,
				Tags:      tags,
				Interval:  interval,
			})
			if err != nil {
				return fmt.Errorf("watch add: %w", err)
			}
			if result.Created {
				fmt.Fprintf(cmd.OutOrStdout(), "Watch target %s\n", result.TargetID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Watch target %s (already registered)\n", result.TargetID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&targetType, "type", protocol.WatchTypeQuery, "target type (url|query)")
	cmd.Flags().StringVar(&target, "target", "", "URL or search query")
	cmd.Flags().DurationVar(&interval, "interval", watch.DefaultInterval, "check interval (60s to 168h)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

// newWatchListCmd creates the "vault watch list" subcommand.
func newWatchListCmd(dbPath *string) *cobra.Command {
	var project, branch, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List watch targets in creation order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			targets, err := watch.NewRegistry(store).ListTargets(context.Background(), project, branch, status)
			if err != nil {
				return fmt.Errorf("watch list: %w", err)
			}
			if len(targets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No watch targets.")
				return nil
			}
			for _, t := range targets {
				lastRun := t.LastRunAt
				if lastRun == "" {
					lastRun = "never"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-6s %-9s every %-6ds last=%-27s %s\n",
					t.ID, t.Type, t.Status, t.IntervalS, lastRun, truncateText(t.Target, 50))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|disabled)")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

// newWatchDisableCmd creates the "vault watch disable" subcommand.
func newWatchDisableCmd(dbPath *string) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable a watch target (idempotent)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := watch.NewRegistry(store).DisableTarget(context.Background(), id); err != nil {
				return fmt.Errorf("watch disable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watch target %s disabled\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "watch target id")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

// watchManifest is the YAML shape accepted by "vault watch import".
type watchManifest struct {
	Targets []struct {
		Type     string `yaml:"type"`
		Target   string `yaml:"target"`
		Tags     string `yaml:"tags"`
		Interval string `yaml:"interval"`
	} `yaml:"targets"`
}

// newWatchImportCmd creates the "vault watch import" subcommand.
func newWatchImportCmd(dbPath *string) *cobra.Command {
	var project, branch, file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import watch targets from a YAML manifest",
		Long:  "Import watch targets in bulk from a YAML manifest:\n\n  targets:\n    - type: query\n      target: quantum error correction\n      interval: 2h\n    - type: url\n      target: https://example.org/changelog\n\nImporting is idempotent; existing targets are reported, not duplicated.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("watch import: %w", err)
			}
			var manifest watchManifest
			if err := yaml.Unmarshal(raw, &manifest); err != nil {
				return fmt.Errorf("watch import: parse %s: %w", file, err)
			}

			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			registry := watch.NewRegistry(store)
			created, existing := 0, 0
			for _, entry := range manifest.Targets {
				interval := time.Duration(0)
				if entry.Interval != "" {
					interval, err = time.ParseDuration(entry.Interval)
					if err != nil {
						return fmt.Errorf("watch import: target %q: bad interval %q: %w", entry.Target, entry.Interval, err)
					}
				}
				result, err := registry.AddTarget(context.Background(), watch.AddParams{
					ProjectID: project,
					Branch:    branch,
					Type:      entry.Type,
					Target:    entry.Target,
					Tags:      entry.Tags,
					Interval:  interval,
				})
				if err != nil {
					return fmt.Errorf("watch import: target %q: %w", entry.Target, err)
				}
				if result.Created {
					created++
				} else {
					existing++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d targets (%d new, %d already registered)\n",
				created+existing, created, existing)
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&file, "file", "", "YAML manifest path")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
