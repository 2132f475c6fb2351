// Package ingest turns external references into findings through an
// ordered connector registry. Connectors are tried in registration
// order and the first one claiming a reference wins.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"researchvault/pkg/protocol"
	"researchvault/pkg/vault"
)

// Draft is a connector's proposed finding before persistence.
type Draft struct {
	Title      string
	Content    string
	SourceURL  string
	Tags       string
	Confidence float64
}

// Connector fetches one class of external reference.
type Connector interface {
	// Name identifies the connector in events and results.
	Name() string
	// CanHandle reports whether this connector claims the reference.
	CanHandle(ref string) bool
	// Fetch resolves the reference into a draft finding.
	Fetch(ctx context.Context, ref string) (*Draft, error)
}

// Result reports one completed ingestion.
type Result struct {
	FindingID string `json:"finding_id"`
	Connector string `json:"connector"`
	Title     string `json:"title"`
}

// Service routes references to connectors and persists the drafts.
type Service struct {
	store      *vault.Store
	connectors []Connector
}

// NewService builds an ingestion service with no connectors registered.
func NewService(store *vault.Store) *Service {
	return &Service{store: store}
}

// Register appends a connector. Order matters: earlier connectors are
// consulted first.
func (s *Service) Register(c Connector) {
	s.connectors = append(s.connectors, c)
}

// Ingest resolves ref via the first connector that claims it and stores
// the draft as a finding on (project, branch). The caller's tags are
// merged with the connector's.
func (s *Service) Ingest(ctx context.Context, projectID, branch, ref, tags string) (*Result, error) {
	var connector Connector
	for _, c := range s.connectors {
		if c.CanHandle(ref) {
			connector = c
			break
		}
	}
	if connector == nil {
		return nil, &protocol.ValidationError{Field: "ref", Reason: fmt.Sprintf("no connector handles %q", ref)}
	}

	draft, err := connector.Fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("ingest via %s: %w", connector.Name(), err)
	}

	findingID, err := s.store.AddFinding(ctx, vault.FindingParams{
		ProjectID:  projectID,
		Branch:     branch,
		Title:      draft.Title,
		Content:    draft.Content,
		SourceURL:  draft.SourceURL,
		Tags:       mergeTags(draft.Tags, tags),
		Confidence: draft.Confidence,
	})
	if err != nil {
		return nil, err
	}

	err = s.store.LogEvent(ctx, vault.EventParams{
		ProjectID: projectID,
		Branch:    branch,
		Type:      protocol.EventIngest,
		Step:      connector.Name(),
		Payload:   map[string]any{"finding_id": findingID, "ref": ref},
		Source:    "ingest",
		Tags:      "ingest",
	})
	if err != nil {
		return nil, err
	}
	return &Result{FindingID: findingID, Connector: connector.Name(), Title: draft.Title}, nil
}

// mergeTags joins two comma-separated tag lists, dropping duplicates
// and empties while preserving first-seen order.
func mergeTags(a, b string) string {
	seen := map[string]struct{}{}
	var merged []string
	for _, raw := range append(strings.Split(a, ","), strings.Split(b, ",")...) {
		tag := strings.TrimSpace(raw)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	return strings.Join(merged, ",")
}
