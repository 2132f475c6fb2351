package protocol

// SchemaDDL defines the SQLite schema for the research vault database.
// Tables: projects, branches, findings, hypotheses, artifacts, events,
// verification_missions, watch_targets, search_cache, links, embeddings.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Research projects; never hard-deleted
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT,
    objective TEXT,
    status TEXT,
    created_at TEXT,
    priority INTEGER DEFAULT 0
);

-- Branch DAG: the parent must exist at insert time, which keeps the graph acyclic
CREATE TABLE IF NOT EXISTS branches (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    name TEXT NOT NULL,
    parent_id TEXT,
    hypothesis TEXT DEFAULT '',
    status TEXT DEFAULT 'active',
    created_at TEXT,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(parent_id) REFERENCES branches(id),
    UNIQUE(project_id, name)
);

-- Evidence rows; immutable once written
CREATE TABLE IF NOT EXISTS findings (
    id TEXT PRIMARY KEY,
    project_id TEXT,
    branch_id TEXT,
    title TEXT,
    content TEXT,
    evidence TEXT,
    confidence REAL,
    tags TEXT,
    created_at TEXT,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

CREATE TABLE IF NOT EXISTS hypotheses (
    id TEXT PRIMARY KEY,
    branch_id TEXT NOT NULL,
    statement TEXT NOT NULL,
    rationale TEXT DEFAULT '',
    confidence REAL DEFAULT 0.5,
    status TEXT DEFAULT 'open',
    created_at TEXT,
    updated_at TEXT,
    FOREIGN KEY(branch_id) REFERENCES branches(id)
);

CREATE TABLE IF NOT EXISTS artifacts (
    id TEXT PRIMARY KEY,
    project_id TEXT,
    branch_id TEXT,
    type TEXT,
    path TEXT,
    metadata TEXT,
    created_at TEXT,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

-- Operation log feeding the strategy engine's recency metrics
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id TEXT,
    branch_id TEXT,
    event_type TEXT,
    step TEXT,
    payload TEXT,
    confidence REAL DEFAULT 1.0,
    source TEXT DEFAULT 'unknown',
    tags TEXT DEFAULT '',
    timestamp TEXT,
    FOREIGN KEY(project_id) REFERENCES projects(id)
);

-- Verification mission queue for low-confidence findings
CREATE TABLE IF NOT EXISTS verification_missions (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    branch_id TEXT NOT NULL,
    finding_id TEXT NOT NULL,
    mission_type TEXT NOT NULL,
    query TEXT NOT NULL,
    query_hash TEXT NOT NULL,
    question TEXT DEFAULT '',
    rationale TEXT DEFAULT '',
    status TEXT DEFAULT 'open',
    priority INTEGER DEFAULT 0,
    result_meta TEXT DEFAULT '',
    last_error TEXT DEFAULT '',
    created_at TEXT,
    updated_at TEXT,
    completed_at TEXT,
    dedup_hash TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(branch_id) REFERENCES branches(id),
    FOREIGN KEY(finding_id) REFERENCES findings(id),
    UNIQUE(dedup_hash)
);

-- Recurring external checks; cadence is driven by an external scheduler
CREATE TABLE IF NOT EXISTS watch_targets (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    branch_id TEXT NOT NULL,
    target_type TEXT NOT NULL,
    target TEXT NOT NULL,
    tags TEXT DEFAULT '',
    interval_s INTEGER DEFAULT 3600,
    status TEXT DEFAULT 'active',
    last_run_at TEXT,
    last_result_hash TEXT DEFAULT '',
    last_error TEXT DEFAULT '',
    created_at TEXT,
    updated_at TEXT,
    dedup_hash TEXT NOT NULL,
    FOREIGN KEY(project_id) REFERENCES projects(id),
    FOREIGN KEY(branch_id) REFERENCES branches(id),
    UNIQUE(dedup_hash)
);

-- Normalized-query search cache; TTL is enforced at read time
CREATE TABLE IF NOT EXISTS search_cache (
    query_hash TEXT PRIMARY KEY,
    query TEXT,
    result TEXT,
    timestamp TEXT
);

-- Similarity-derived edges between findings/artifacts
CREATE TABLE IF NOT EXISTS links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_id TEXT,
    target_id TEXT,
    link_type TEXT,
    metadata TEXT,
    created_at TEXT
);

-- Deterministic local embeddings, reused while the content hash is unchanged
CREATE TABLE IF NOT EXISTS embeddings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    model TEXT NOT NULL,
    dims INTEGER NOT NULL,
    vector BLOB NOT NULL,
    content_hash TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE(entity_type, entity_id, model)
);

CREATE INDEX IF NOT EXISTS idx_branches_project ON branches(project_id);
CREATE INDEX IF NOT EXISTS idx_hypotheses_branch ON hypotheses(branch_id);
CREATE INDEX IF NOT EXISTS idx_events_project_branch ON events(project_id, branch_id);
CREATE INDEX IF NOT EXISTS idx_findings_project_branch ON findings(project_id, branch_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_project_branch ON artifacts(project_id, branch_id);
CREATE INDEX IF NOT EXISTS idx_missions_project_status ON verification_missions(project_id, status);
CREATE INDEX IF NOT EXISTS idx_missions_branch_status ON verification_missions(branch_id, status);
CREATE INDEX IF NOT EXISTS idx_missions_finding ON verification_missions(finding_id);
CREATE INDEX IF NOT EXISTS idx_watch_project_status ON watch_targets(project_id, status);
CREATE INDEX IF NOT EXISTS idx_watch_branch_status ON watch_targets(branch_id, status);
CREATE INDEX IF NOT EXISTS idx_embeddings_entity ON embeddings(entity_type, entity_id);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_links_synthesis_pair ON links(source_id, target_id) WHERE link_type='SYNTHESIS_SIMILARITY';
`
