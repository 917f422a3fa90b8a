package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hexmem/internal/types"
)

// =============================================================================
// API KEYS
// =============================================================================

// HashKey returns the hex SHA-256 digest used to match bearer tokens against
// stored keys.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey mints a new key. The raw key is returned exactly once; only
// its hash is persisted.
func (s *Store) CreateAPIKey(ctx context.Context, name string, agentID *string, permissions []string, rateLimit int, expiresAt *time.Time) (*types.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("failed to generate key material: %w", err)
	}
	raw := "hm_" + hex.EncodeToString(buf)

	if rateLimit <= 0 {
		rateLimit = 120
	}
	if len(permissions) == 0 {
		permissions = []string{"read"}
	}

	key := &types.APIKey{
		ID:          uuid.NewString(),
		KeyPrefix:   raw[:11],
		Name:        name,
		AgentID:     agentID,
		Permissions: permissions,
		RateLimit:   rateLimit,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, key_prefix, name, agent_id, permissions, rate_limit, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, HashKey(raw), key.KeyPrefix, key.Name, nullString(key.AgentID),
		encodeJSON(key.Permissions), key.RateLimit, nullTime(key.ExpiresAt), key.CreatedAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create api key: %w", err)
	}

	return key, raw, nil
}

// LookupAPIKey matches a raw bearer token against stored key hashes. Revoked
// and expired keys return ErrNotFound. The key's last_used_at is bumped
// best-effort.
func (s *Store) LookupAPIKey(ctx context.Context, rawKey string) (*types.APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, key_prefix, name, agent_id, permissions, rate_limit, expires_at, last_used_at, revoked_at, created_at
		 FROM api_keys WHERE key_hash = ?`, HashKey(rawKey))

	key, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unknown api key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if key.RevokedAt != nil {
		return nil, fmt.Errorf("api key revoked: %w", ErrNotFound)
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now().UTC()) {
		return nil, fmt.Errorf("api key expired: %w", ErrNotFound)
	}

	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = ? WHERE id = ?", time.Now().UTC(), key.ID)
	return key, nil
}

// ListAPIKeys returns key metadata (never hashes or raw keys).
func (s *Store) ListAPIKeys(ctx context.Context) ([]*types.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key_prefix, name, agent_id, permissions, rate_limit, expires_at, last_used_at, revoked_at, created_at
		 FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*types.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey soft-revokes a key by id.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL",
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %q: %w", id, ErrNotFound)
	}
	return nil
}

func scanAPIKey(row rowScanner) (*types.APIKey, error) {
	var key types.APIKey
	var agentID sql.NullString
	var perms string
	var expiresAt, lastUsedAt, revokedAt sql.NullTime
	err := row.Scan(&key.ID, &key.KeyPrefix, &key.Name, &agentID, &perms,
		&key.RateLimit, &expiresAt, &lastUsedAt, &revokedAt, &key.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	key.AgentID = strPtr(agentID)
	key.Permissions = decodeStrings(perms)
	key.ExpiresAt = timePtr(expiresAt)
	key.LastUsedAt = timePtr(lastUsedAt)
	key.RevokedAt = timePtr(revokedAt)
	key.CreatedAt = key.CreatedAt.UTC()
	return &key, nil
}
