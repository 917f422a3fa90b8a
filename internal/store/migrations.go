package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// MIGRATION LEDGER
// =============================================================================

// migration is one schema step. Migrations apply in lexicographic name order,
// each inside its own transaction, and are recorded in _migrations so a
// restart only applies what is missing. A failed migration rolls back and
// aborts startup.
type migration struct {
	Name string
	SQL  string
}

var migrations = []migration{
	{Name: "001_initial_schema", SQL: schemaInitial},
	{Name: "002_indexes", SQL: schemaIndexes},
	{Name: "003_default_decay_policies", SQL: schemaDefaultPolicies},
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM _migrations")
	if err != nil {
		return fmt.Errorf("failed to read migration ledger: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		s.log.Info("applied migration", zap.String("name", m.Name))
	}

	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", m.Name); err != nil {
		return err
	}
	return tx.Commit()
}

// AppliedMigrations returns the recorded migration names, for diagnostics.
func (s *Store) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM _migrations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// =============================================================================
// SCHEMA
// =============================================================================

const schemaInitial = `
CREATE TABLE agents (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	core_memory TEXT NOT NULL DEFAULT '{}',
	config TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE api_keys (
	id TEXT PRIMARY KEY,
	key_hash TEXT NOT NULL UNIQUE,
	key_prefix TEXT NOT NULL,
	name TEXT NOT NULL,
	agent_id TEXT,
	permissions TEXT NOT NULL DEFAULT '[]',
	rate_limit INTEGER NOT NULL DEFAULT 120,
	expires_at DATETIME,
	last_used_at DATETIME,
	revoked_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	summary TEXT,
	started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ended_at DATETIME
);

CREATE TABLE session_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('user','assistant','system','tool')),
	content TEXT NOT NULL,
	embedding TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	decay_status TEXT NOT NULL DEFAULT 'active' CHECK (decay_status IN ('active','cooling','archived')),
	decayed_at DATETIME,
	access_count INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	last_accessed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE facts (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	content TEXT NOT NULL,
	subject TEXT,
	confidence REAL NOT NULL DEFAULT 1.0 CHECK (confidence >= 0 AND confidence <= 1),
	source TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	embedding TEXT,
	valid_from DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	valid_until DATETIME,
	superseded_by TEXT,
	session_id TEXT,
	decay_status TEXT NOT NULL DEFAULT 'active' CHECK (decay_status IN ('active','cooling','archived')),
	decayed_at DATETIME,
	access_count INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	last_accessed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE decisions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	title TEXT NOT NULL,
	decision TEXT NOT NULL,
	rationale TEXT,
	alternatives TEXT NOT NULL DEFAULT '[]',
	context TEXT,
	session_id TEXT,
	project_id TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	embedding TEXT,
	decay_status TEXT NOT NULL DEFAULT 'active' CHECK (decay_status IN ('active','cooling','archived')),
	decayed_at DATETIME,
	access_count INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	last_accessed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE tasks (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	project_id TEXT,
	title TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL DEFAULT 'not_started' CHECK (status IN ('not_started','in_progress','blocked','complete','cancelled')),
	priority INTEGER NOT NULL DEFAULT 50 CHECK (priority >= 1 AND priority <= 100),
	assignee TEXT,
	due_date DATETIME,
	blocked_by TEXT,
	session_id TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	embedding TEXT,
	decay_status TEXT NOT NULL DEFAULT 'active' CHECK (decay_status IN ('active','cooling','archived')),
	decayed_at DATETIME,
	access_count INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	last_accessed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE events (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	project_id TEXT,
	title TEXT NOT NULL,
	event_type TEXT NOT NULL,
	description TEXT,
	outcome TEXT,
	caused_by TEXT,
	severity TEXT NOT NULL DEFAULT 'info' CHECK (severity IN ('info','warning','critical')),
	session_id TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	embedding TEXT,
	occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	resolved_at DATETIME,
	decay_status TEXT NOT NULL DEFAULT 'active' CHECK (decay_status IN ('active','cooling','archived')),
	decayed_at DATETIME,
	access_count INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
	last_accessed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE projects (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	slug TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','paused','completed','archived')),
	tags TEXT NOT NULL DEFAULT '[]',
	embedding TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (agent_id, slug)
);

CREATE TABLE memory_edges (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	weight REAL NOT NULL DEFAULT 1.0 CHECK (weight >= 0),
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (source_type, source_id, target_type, target_id, relation)
);

CREATE TABLE decay_policies (
	id TEXT PRIMARY KEY,
	agent_id TEXT,
	memory_type TEXT NOT NULL,
	ttl_days INTEGER,
	access_boost REAL NOT NULL DEFAULT 1.5,
	min_accesses INTEGER NOT NULL DEFAULT 3,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (agent_id, memory_type)
);

CREATE TABLE query_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT,
	endpoint TEXT NOT NULL,
	query_text TEXT,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const schemaIndexes = `
CREATE INDEX idx_sessions_agent ON sessions(agent_id, started_at);
CREATE INDEX idx_messages_session ON session_messages(session_id, created_at);
CREATE INDEX idx_messages_agent_status ON session_messages(agent_id, decay_status);
CREATE INDEX idx_facts_agent_status ON facts(agent_id, decay_status);
CREATE INDEX idx_decisions_agent_status ON decisions(agent_id, decay_status);
CREATE INDEX idx_tasks_agent_status ON tasks(agent_id, decay_status);
CREATE INDEX idx_tasks_project ON tasks(project_id);
CREATE INDEX idx_events_agent_status ON events(agent_id, decay_status);
CREATE INDEX idx_events_occurred ON events(agent_id, occurred_at);
CREATE INDEX idx_projects_agent ON projects(agent_id);
CREATE INDEX idx_edges_agent ON memory_edges(agent_id);
CREATE INDEX idx_edges_source ON memory_edges(source_type, source_id);
CREATE INDEX idx_edges_target ON memory_edges(target_type, target_id);
CREATE INDEX idx_query_log_created ON query_log(created_at);
CREATE INDEX idx_api_keys_hash ON api_keys(key_hash);
`

// Global default policies: facts and events cool after their TTL, session
// messages cool quickly, decisions and tasks never auto-decay (NULL ttl).
const schemaDefaultPolicies = `
INSERT INTO decay_policies (id, agent_id, memory_type, ttl_days, access_boost, min_accesses) VALUES
	(lower(hex(randomblob(16))), NULL, 'session_message', 30, 1.5, 3),
	(lower(hex(randomblob(16))), NULL, 'fact', 90, 1.5, 3),
	(lower(hex(randomblob(16))), NULL, 'event', 60, 1.5, 3),
	(lower(hex(randomblob(16))), NULL, 'decision', NULL, 1.5, 3),
	(lower(hex(randomblob(16))), NULL, 'task', NULL, 1.5, 3);
`
