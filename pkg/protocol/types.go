// Package protocol holds the persisted row types, schema, status
// constants, and error taxonomy shared by every vault component.
package protocol

// Project represents a row in the projects table.
// Projects are never hard-deleted; status moves through the
// active/paused/completed/failed lifecycle instead.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Objective string `json:"objective"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Priority  int    `json:"priority"`
}

// Branch represents a row in the branches table. The id is a
// deterministic function of (project_id, name) so re-creation is safe.
type Branch struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	ParentID   string `json:"parent_id"`
	Hypothesis string `json:"hypothesis"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

// Finding is a discrete piece of evidence with a confidence score.
// Immutable once written.
type Finding struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	BranchID   string  `json:"branch_id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Evidence   string  `json:"evidence"` // JSON: {"source_url": ...}
	Confidence float64 `json:"confidence"`
	Tags       string  `json:"tags"`
	CreatedAt  string  `json:"created_at"`
}

// Hypothesis represents a row in the hypotheses table.
type Hypothesis struct {
	ID         string  `json:"id"`
	BranchID   string  `json:"branch_id"`
	Statement  string  `json:"statement"`
	Rationale  string  `json:"rationale"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// Artifact represents a row in the artifacts table. The path is
// validated against the sandbox roots before any write.
type Artifact struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	BranchID  string `json:"branch_id"`
	Type      string `json:"type"`
	Path      string `json:"path"`
	Metadata  string `json:"metadata"` // JSON object
	CreatedAt string `json:"created_at"`
}

// Event represents a row in the events table.
type Event struct {
	ID         int64   `json:"id"`
	ProjectID  string  `json:"project_id"`
	BranchID   string  `json:"branch_id"`
	Type       string  `json:"event_type"`
	Step       string  `json:"step"`
	Payload    string  `json:"payload"` // JSON, scrubbed before persistence
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
	Tags       string  `json:"tags"`
	Timestamp  string  `json:"timestamp"`
}

// VerificationMission represents a row in the verification_missions
// table. DedupHash enforces at-most-one mission per (finding, query).
type VerificationMission struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	BranchID    string `json:"branch_id"`
	FindingID   string `json:"finding_id"`
	Type        string `json:"mission_type"`
	Query       string `json:"query"`
	QueryHash   string `json:"query_hash"`
	Question    string `json:"question"`
	Rationale   string `json:"rationale"`
	Status      string `json:"status"`
	Priority    int    `json:"priority"`
	ResultMeta  string `json:"result_meta"`
	LastError   string `json:"last_error"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	CompletedAt string `json:"completed_at"`
	DedupHash   string `json:"dedup_hash"`
}

// WatchTarget represents a row in the watch_targets table.
type WatchTarget struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	BranchID       string `json:"branch_id"`
	Type           string `json:"target_type"`
	Target         string `json:"target"`
	Tags           string `json:"tags"`
	IntervalS      int    `json:"interval_s"`
	Status         string `json:"status"`
	LastRunAt      string `json:"last_run_at"`
	LastResultHash string `json:"last_result_hash"`
	LastError      string `json:"last_error"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	DedupHash      string `json:"dedup_hash"`
}

// Link is a similarity-derived edge between two stored entities.
type Link struct {
	ID        int64  `json:"id"`
	SourceID  string `json:"source_id"`
	TargetID  string `json:"target_id"`
	Type      string `json:"link_type"`
	Metadata  string `json:"metadata"` // JSON: score, model, dims, branch_id
	CreatedAt string `json:"created_at"`
}
