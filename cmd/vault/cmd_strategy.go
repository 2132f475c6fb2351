package main

import (
	"context"
	"fmt"

	"researchvault/pkg/protocol"
	"researchvault/pkg/strategy"

	"github.com/spf13/cobra"
)

// newStrategyCmd creates the "vault strategy" subcommand.
func newStrategyCmd(dbPath *string) *cobra.Command {
	var project, branch, configPath string
	var execute, asJSON bool

	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Analyze the project and recommend the next action",
		Long:  "Aggregate branch state into coverage/progress scores, walk the\nfixed priority ladder, and print the recommended next action. With\n--execute, the recommendation is also carried out.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := strategy.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("strategy: %w", err)
			}

			store, db, err := openStore(*dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			engine := newStrategyEngine(store)
			out, err := engine.Strategize(context.Background(), project, branch, cfg, execute)
			if err != nil {
				return fmt.Errorf("strategy: %w", err)
			}
			if asJSON {
				return printJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			state := out["state"].(map[string]any)
			rec := out["recommendation"].(map[string]any)

			fmt.Fprintln(w, heading("State"))
			fmt.Fprintf(w, "%s %v findings, %v artifacts, avg confidence %.2f\n",
				label("evidence:"), state["findings_count"], state["artifacts_count"], state["avg_confidence"])
			fmt.Fprintf(w, "%s coverage %.2f, progress %.2f\n",
				label("scores:"), state["coverage"], state["progress"])
			fmt.Fprintf(w, "%s %v low-confidence, missions %v\n",
				label("queue:"), state["low_confidence_count"], state["missions_by_status"])

			fmt.Fprintln(w, heading(fmt.Sprintf("Next: %s — %s", rec["action"], rec["title"])))
			for _, r := range rec["rationale"].([]string) {
				fmt.Fprintf(w, "  - %s\n", r)
			}
			for _, c := range rec["commands"].([]string) {
				fmt.Fprintf(w, "  $ %s\n", c)
			}

			if execution, ok := out["execution"].(map[string]any); ok {
				fmt.Fprintln(w, heading("Execution"))
				fmt.Fprintf(w, "  ok=%v detail=%v", execution["ok"], execution["detail"])
				if errText, _ := execution["error"].(string); errText != "" {
					fmt.Fprintf(w, " error=%s", errText)
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project id")
	cmd.Flags().StringVar(&branch, "branch", protocol.DefaultBranch, "branch name")
	cmd.Flags().StringVar(&configPath, "config", "", "TOML strategy config (defaults apply when omitted)")
	cmd.Flags().BoolVar(&execute, "execute", false, "carry out the recommendation")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full state/recommendation tree as JSON")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}
