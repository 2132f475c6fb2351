package protocol

// Project statuses.
const (
	ProjectActive    = "active"
	ProjectPaused    = "paused"
	ProjectCompleted = "completed"
	ProjectFailed    = "failed"
)

// Branch and watch-target statuses.
const (
	BranchActive  = "active"
	WatchActive   = "active"
	WatchDisabled = "disabled"
)

// Hypothesis statuses.
const (
	HypothesisOpen     = "open"
	HypothesisAccepted = "accepted"
	HypothesisRejected = "rejected"
	HypothesisArchived = "archived"
)

// Verification mission statuses. The runner moves missions
// open -> in_progress -> done/blocked, or back to open on a
// transient failure; cancelled is only reachable via an explicit
// completion call.
const (
	MissionOpen       = "open"
	MissionInProgress = "in_progress"
	MissionDone       = "done"
	MissionBlocked    = "blocked"
	MissionCancelled  = "cancelled"
)

// Mission and watch-target kinds.
const (
	MissionTypeSearch = "SEARCH"
	WatchTypeURL      = "url"
	WatchTypeQuery    = "query"
)

// Event types recorded by high-level operations.
const (
	EventIngest    = "INGEST"
	EventVerify    = "VERIFY"
	EventWatch     = "WATCH"
	EventArtifact  = "ARTIFACT"
	EventSynthesis = "SYNTHESIS"
)

// SynthesisLinkType marks links produced by the synthesis engine.
const SynthesisLinkType = "SYNTHESIS_SIMILARITY"

// DefaultBranch is created at project init and self-healed on first
// reference if missing.
const DefaultBranch = "main"
