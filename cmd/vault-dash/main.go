// Package main implements the vault-dash read-only dashboard.
package main

import (
	"flag"
	"fmt"
	"os"

	"researchvault/pkg/vault"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	var dbPath, project, branch string
	flag.StringVar(&dbPath, "db", "", "database file (default $RESEARCHVAULT_DB or ~/.researchvault/research_vault.db)")
	flag.StringVar(&project, "project", "", "project id")
	flag.StringVar(&branch, "branch", "main", "branch name")
	flag.Parse()

	if project == "" {
		fmt.Fprintln(os.Stderr, "vault-dash: -project is required")
		os.Exit(2)
	}

	if dbPath == "" {
		var err error
		dbPath, err = vault.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "vault-dash: %v\n", err)
			os.Exit(1)
		}
	}

	db, err := vault.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vault-dash: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	model := newModel(vault.NewStore(db), dbPath, project, branch)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}
