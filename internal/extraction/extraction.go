// Package extraction turns raw conversation messages into structured memory
// candidates (facts, decisions, tasks, events) and produces session
// summaries. Extraction is best-effort: a failing or absent extractor yields
// empty results, never an ingestion error.
package extraction

import (
	"context"

	"hexmem/internal/types"
)

// CandidateFact is an extracted fact before persistence.
type CandidateFact struct {
	Content    string   `json:"content"`
	Subject    string   `json:"subject,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// CandidateDecision is an extracted decision before persistence.
type CandidateDecision struct {
	Title        string   `json:"title"`
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale,omitempty"`
	Alternatives []string `json:"alternatives,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// CandidateTask is an extracted task before persistence.
type CandidateTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    int      `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// CandidateEvent is an extracted event before persistence.
type CandidateEvent struct {
	Title       string   `json:"title"`
	EventType   string   `json:"event_type"`
	Description string   `json:"description,omitempty"`
	Severity    string   `json:"severity,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Extraction is the structured output of one extraction pass.
type Extraction struct {
	Facts     []CandidateFact     `json:"facts"`
	Decisions []CandidateDecision `json:"decisions"`
	Tasks     []CandidateTask     `json:"tasks"`
	Events    []CandidateEvent    `json:"events"`
}

// Empty reports whether the pass produced nothing.
func (e *Extraction) Empty() bool {
	return e == nil || (len(e.Facts) == 0 && len(e.Decisions) == 0 && len(e.Tasks) == 0 && len(e.Events) == 0)
}

// Extractor derives structured memory candidates from one message, given the
// preceding messages of its session as context.
type Extractor interface {
	Extract(ctx context.Context, msg *types.SessionMessage, recent []*types.SessionMessage) (*Extraction, error)
}

// Summarizer condenses a finished session into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []*types.SessionMessage) (string, error)
}
