package main

import (
	"database/sql"
	"fmt"

	"researchvault/pkg/search"
	"researchvault/pkg/strategy"
	"researchvault/pkg/synthesis"
	"researchvault/pkg/vault"
	"researchvault/pkg/verify"
)

// openStore resolves the database path (flag > env > default), opens it
// with WAL and the schema applied, and wraps it in a vault store.
func openStore(dbPath string) (*vault.Store, *sql.DB, error) {
	path := dbPath
	if path == "" {
		var err error
		path, err = vault.DefaultPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := vault.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return vault.NewStore(db), db, nil
}

// newVerifyService wires the mission service with the Brave-backed,
// cache-first search client.
func newVerifyService(store *vault.Store) *verify.Service {
	client := &search.Client{Store: store, Provider: search.NewBrave()}
	return verify.NewService(store, client)
}

// newStrategyEngine wires the strategy engine with its collaborators.
func newStrategyEngine(store *vault.Store) *strategy.Engine {
	return &strategy.Engine{
		Store:     store,
		Verify:    newVerifyService(store),
		Synthesis: synthesis.NewEngine(store),
	}
}
