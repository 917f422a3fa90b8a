package store

import (
	"context"
	"database/sql"
	"time"
)

// =============================================================================
// ANALYTICS QUERY LOG
// =============================================================================

// QueryLogEntry is one appended analytics row.
type QueryLogEntry struct {
	ID        int64                  `json:"id"`
	AgentID   *string                `json:"agent_id,omitempty"`
	Endpoint  string                 `json:"endpoint"`
	QueryText *string                `json:"query_text,omitempty"`
	LatencyMS int64                  `json:"latency_ms"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// AppendQueryLog records one search/recall request. Callers treat failures as
// best-effort and never propagate them.
func (s *Store) AppendQueryLog(ctx context.Context, e *QueryLogEntry) error {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO query_log (agent_id, endpoint, query_text, latency_ms, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullString(e.AgentID), e.Endpoint, nullString(e.QueryText), e.LatencyMS,
		encodeJSON(e.Metadata), time.Now().UTC())
	return err
}

// PruneQueryLog deletes entries older than the cutoff and returns the count.
func (s *Store) PruneQueryLog(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM query_log WHERE created_at < ?",
		time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueryLogSummary aggregates the analytics log for the dashboard surface.
type QueryLogSummary struct {
	Total      int64            `json:"total"`
	AvgLatency float64          `json:"avg_latency_ms"`
	ByEndpoint map[string]int64 `json:"by_endpoint"`
	Recent     []*QueryLogEntry `json:"recent"`
}

// QueryLogStats returns totals, average latency, per-endpoint counts, and the
// most recent entries (optionally scoped to one agent).
func (s *Store) QueryLogStats(ctx context.Context, agentID string, recentLimit int) (*QueryLogSummary, error) {
	if recentLimit <= 0 {
		recentLimit = 20
	}
	summary := &QueryLogSummary{ByEndpoint: map[string]int64{}}

	where := ""
	var args []interface{}
	if agentID != "" {
		where = " WHERE agent_id = ?"
		args = append(args, agentID)
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(latency_ms) FROM query_log"+where, args...,
	).Scan(&summary.Total, &avg); err != nil {
		return nil, err
	}
	summary.AvgLatency = avg.Float64

	rows, err := s.db.QueryContext(ctx,
		"SELECT endpoint, COUNT(*) FROM query_log"+where+" GROUP BY endpoint", args...)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var endpoint string
		var n int64
		if err := rows.Scan(&endpoint, &n); err != nil {
			rows.Close()
			return nil, err
		}
		summary.ByEndpoint[endpoint] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recentArgs := append(append([]interface{}{}, args...), recentLimit)
	rows, err = s.db.QueryContext(ctx,
		`SELECT id, agent_id, endpoint, query_text, latency_ms, metadata, created_at
		 FROM query_log`+where+` ORDER BY created_at DESC LIMIT ?`, recentArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var e QueryLogEntry
		var aid, queryText sql.NullString
		var meta string
		if err := rows.Scan(&e.ID, &aid, &e.Endpoint, &queryText, &e.LatencyMS, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.AgentID = strPtr(aid)
		e.QueryText = strPtr(queryText)
		e.Metadata = decodeMap(meta)
		e.CreatedAt = e.CreatedAt.UTC()
		summary.Recent = append(summary.Recent, &e)
	}
	return summary, rows.Err()
}
