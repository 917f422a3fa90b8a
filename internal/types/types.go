// Package types provides shared type definitions used across hexmem packages.
// This package exists to break import cycles between store, ingest, recall, and
// server. Types here are foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"time"
)

// =============================================================================
// MEMORY TYPE REGISTRY
// =============================================================================

// MemoryType identifies one of the closed set of memory item kinds.
type MemoryType string

const (
	TypeSessionMessage MemoryType = "session_message"
	TypeFact           MemoryType = "fact"
	TypeDecision       MemoryType = "decision"
	TypeTask           MemoryType = "task"
	TypeEvent          MemoryType = "event"
	TypeProject        MemoryType = "project"
	TypeSession        MemoryType = "session"
)

// TypeInfo describes how a memory type maps onto its backing table.
type TypeInfo struct {
	// Table is the SQL table name.
	Table string

	// ContentExpr is the SQL expression yielding the canonical content column
	// used for trigram matching and dedup.
	ContentExpr string

	// TimeColumn is the column used for recency and TTL computations.
	TimeColumn string
}

// registry maps every recallable memory type to its table bindings.
// The set is closed; the recall planner and decay engine iterate this table
// rather than dispatching on strings.
var registry = map[MemoryType]TypeInfo{
	TypeSessionMessage: {Table: "session_messages", ContentExpr: "content", TimeColumn: "created_at"},
	TypeFact:           {Table: "facts", ContentExpr: "content", TimeColumn: "created_at"},
	TypeDecision:       {Table: "decisions", ContentExpr: "title || ': ' || decision", TimeColumn: "created_at"},
	TypeTask:           {Table: "tasks", ContentExpr: "title", TimeColumn: "created_at"},
	TypeEvent:          {Table: "events", ContentExpr: "title", TimeColumn: "occurred_at"},
}

// recallOrder fixes the iteration order of the candidate tables.
var recallOrder = []MemoryType{TypeSessionMessage, TypeFact, TypeDecision, TypeTask, TypeEvent}

// Info returns the table bindings for a recallable memory type.
func Info(t MemoryType) (TypeInfo, error) {
	info, ok := registry[t]
	if !ok {
		return TypeInfo{}, fmt.Errorf("unknown memory type: %s", t)
	}
	return info, nil
}

// RecallTypes returns the candidate types in fixed order, filtered by the
// optional whitelist.
func RecallTypes(filter []MemoryType) []MemoryType {
	if len(filter) == 0 {
		out := make([]MemoryType, len(recallOrder))
		copy(out, recallOrder)
		return out
	}
	var out []MemoryType
	for _, t := range recallOrder {
		for _, f := range filter {
			if t == f {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// IsRecallable reports whether t participates in recall and dedup.
func IsRecallable(t MemoryType) bool {
	_, ok := registry[t]
	return ok
}

// =============================================================================
// DECAY SURFACE
// =============================================================================

// Decay lifecycle states.
const (
	DecayActive   = "active"
	DecayCooling  = "cooling"
	DecayArchived = "archived"
)

// DecayMeta is the shared decay/access surface on every memory item.
type DecayMeta struct {
	DecayStatus    string     `json:"decay_status"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

// =============================================================================
// ROW TYPES
// =============================================================================

// Agent is a named principal owning a private memory namespace.
type Agent struct {
	ID          string                 `json:"id"`
	Slug        string                 `json:"slug"`
	DisplayName string                 `json:"display_name"`
	Description string                 `json:"description,omitempty"`
	CoreMemory  map[string]interface{} `json:"core_memory"`
	Config      map[string]interface{} `json:"config"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Session is an ordered sequence of role-tagged messages.
type Session struct {
	ID           string                 `json:"id"`
	AgentID      string                 `json:"agent_id"`
	ExternalID   string                 `json:"external_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
	Summary      *string                `json:"summary,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	EndedAt      *time.Time             `json:"ended_at,omitempty"`
	MessageCount int                    `json:"message_count,omitempty"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// ValidRole reports whether role is one of the allowed message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// SessionMessage is an immutable message inside a session.
type SessionMessage struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	AgentID   string                 `json:"agent_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	DecayMeta
}

// Fact is a discrete piece of knowledge derived from or stated to an agent.
type Fact struct {
	ID           string     `json:"id"`
	AgentID      string     `json:"agent_id"`
	Content      string     `json:"content"`
	Subject      *string    `json:"subject,omitempty"`
	Confidence   float64    `json:"confidence"`
	Source       *string    `json:"source,omitempty"`
	Tags         []string   `json:"tags"`
	Embedding    []float32  `json:"-"`
	ValidFrom    time.Time  `json:"valid_from"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	SupersededBy *string    `json:"superseded_by,omitempty"`
	SessionID    *string    `json:"session_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DecayMeta
}

// Decision records a choice made by or for an agent, with its rationale.
type Decision struct {
	ID           string    `json:"id"`
	AgentID      string    `json:"agent_id"`
	Title        string    `json:"title"`
	Decision     string    `json:"decision"`
	Rationale    *string   `json:"rationale,omitempty"`
	Alternatives []string  `json:"alternatives"`
	Context      *string   `json:"context,omitempty"`
	SessionID    *string   `json:"session_id,omitempty"`
	ProjectID    *string   `json:"project_id,omitempty"`
	Tags         []string  `json:"tags"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	DecayMeta
}

// Task statuses.
const (
	TaskNotStarted = "not_started"
	TaskInProgress = "in_progress"
	TaskBlocked    = "blocked"
	TaskComplete   = "complete"
	TaskCancelled  = "cancelled"
)

// ValidTaskStatus reports whether s is an allowed task status.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskNotStarted, TaskInProgress, TaskBlocked, TaskComplete, TaskCancelled:
		return true
	}
	return false
}

// Task is a unit of work tracked for an agent.
type Task struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	ProjectID   *string    `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority"`
	Assignee    *string    `json:"assignee,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	BlockedBy   *string    `json:"blocked_by,omitempty"`
	SessionID   *string    `json:"session_id,omitempty"`
	Tags        []string   `json:"tags"`
	Embedding   []float32  `json:"-"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DecayMeta
}

// Event severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ValidSeverity reports whether s is an allowed event severity.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Event is a time-indexed occurrence in an agent's history.
type Event struct {
	ID          string     `json:"id"`
	AgentID     string     `json:"agent_id"`
	ProjectID   *string    `json:"project_id,omitempty"`
	Title       string     `json:"title"`
	EventType   string     `json:"event_type"`
	Description *string    `json:"description,omitempty"`
	Outcome     *string    `json:"outcome,omitempty"`
	CausedBy    *string    `json:"caused_by,omitempty"`
	Severity    string     `json:"severity"`
	SessionID   *string    `json:"session_id,omitempty"`
	Tags        []string   `json:"tags"`
	Embedding   []float32  `json:"-"`
	OccurredAt  time.Time  `json:"occurred_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DecayMeta
}

// Project statuses.
const (
	ProjectActive    = "active"
	ProjectPaused    = "paused"
	ProjectCompleted = "completed"
	ProjectArchived  = "archived"
)

// ValidProjectStatus reports whether s is an allowed project status.
func ValidProjectStatus(s string) bool {
	switch s {
	case ProjectActive, ProjectPaused, ProjectCompleted, ProjectArchived:
		return true
	}
	return false
}

// Project groups tasks, decisions, and events under a per-agent slug.
type Project struct {
	ID          string                 `json:"id"`
	AgentID     string                 `json:"agent_id"`
	Slug        string                 `json:"slug"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Status      string                 `json:"status"`
	Tags        []string               `json:"tags"`
	Embedding   []float32              `json:"-"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// Edge relations.
const (
	RelCausedBy    = "caused_by"
	RelDecidedIn   = "decided_in"
	RelBlocks      = "blocks"
	RelRelatesTo   = "relates_to"
	RelSupersedes  = "supersedes"
	RelPartOf      = "part_of"
	RelLedTo       = "led_to"
	RelReferences  = "references"
	RelDependsOn   = "depends_on"
	RelDerivedFrom = "derived_from"
)

// ValidRelation reports whether r is one of the typed edge relations.
func ValidRelation(r string) bool {
	switch r {
	case RelCausedBy, RelDecidedIn, RelBlocks, RelRelatesTo, RelSupersedes,
		RelPartOf, RelLedTo, RelReferences, RelDependsOn, RelDerivedFrom:
		return true
	}
	return false
}

// Edge is a typed directed relation between two memory nodes.
// Endpoints are not foreign-keyed; dangling edges are tolerated by readers.
type Edge struct {
	ID         string                 `json:"id"`
	AgentID    string                 `json:"agent_id"`
	SourceType MemoryType             `json:"source_type"`
	SourceID   string                 `json:"source_id"`
	TargetType MemoryType             `json:"target_type"`
	TargetID   string                 `json:"target_id"`
	Relation   string                 `json:"relation"`
	Weight     float64                `json:"weight"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// DecayPolicy controls TTL-based cooling for one (agent, memory type) pair.
// A nil AgentID means the global default; the most specific policy wins.
type DecayPolicy struct {
	ID          string     `json:"id"`
	AgentID     *string    `json:"agent_id,omitempty"`
	MemoryType  MemoryType `json:"memory_type"`
	TTLDays     *int       `json:"ttl_days,omitempty"`
	AccessBoost float64    `json:"access_boost"`
	MinAccesses int        `json:"min_accesses"`
	CreatedAt   time.Time  `json:"created_at"`
}

// APIKey is a persisted bearer credential. The raw key is returned once at
// creation; only its SHA-256 hash is stored.
type APIKey struct {
	ID          string     `json:"id"`
	KeyPrefix   string     `json:"key_prefix"`
	Name        string     `json:"name"`
	AgentID     *string    `json:"agent_id,omitempty"`
	Permissions []string   `json:"permissions"`
	RateLimit   int        `json:"rate_limit"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// =============================================================================
// RECALL SHAPES
// =============================================================================

// Signals carries the per-source relevance components of a recall result.
// Nil fields mean the signal did not fire for this row.
type Signals struct {
	Semantic   *float64 `json:"semantic,omitempty"`
	Keyword    *float64 `json:"keyword,omitempty"`
	Recency    *float64 `json:"recency,omitempty"`
	GraphBoost *float64 `json:"graph_boost,omitempty"`
}

// RecallResult is one ranked row in a recall response. Related holds one-hop
// graph neighbors when expansion is requested.
type RecallResult struct {
	ID        string                 `json:"id"`
	Type      MemoryType             `json:"type"`
	Content   string                 `json:"content"`
	Score     float64                `json:"score"`
	Signals   Signals                `json:"signals"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Related   []RecallResult         `json:"related,omitempty"`
}

// RecallWeights echoes the fusion weights used for a recall request.
type RecallWeights struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Recency  float64 `json:"recency"`
}

// RecallResponse is the full recall payload.
type RecallResponse struct {
	Results []RecallResult `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
	Weights RecallWeights  `json:"weights"`
}

// ExtractionCounts reports how many items each ingest produced per type.
type ExtractionCounts struct {
	Facts     int `json:"facts"`
	Decisions int `json:"decisions"`
	Tasks     int `json:"tasks"`
	Events    int `json:"events"`
}
