package store

import (
	"encoding/json"

	"hexmem/internal/embedding"
)

// =============================================================================
// VECTOR COLUMN ENCODING
// =============================================================================

// Embeddings are stored as JSON-encoded float32 arrays in nullable TEXT
// columns. A NULL column means the embedding provider was unavailable when the
// row was written; such rows stay reachable through the lexical paths.

// EncodeVector serializes a vector for storage. Returns nil (SQL NULL) for an
// empty vector.
func EncodeVector(vec []float32) interface{} {
	if len(vec) == 0 {
		return nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return nil
	}
	return string(data)
}

// DecodeVector deserializes a stored vector. Returns nil for NULL or corrupt
// columns.
func DecodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	return vec
}

// cosineSimSQL backs the cosine_sim SQL function. Both arguments are
// JSON-encoded vectors; malformed or mismatched inputs yield 0 so a corrupt
// row never fails a whole query.
func cosineSimSQL(a, b string) float64 {
	va := DecodeVector(a)
	vb := DecodeVector(b)
	if va == nil || vb == nil {
		return 0
	}
	sim, err := embedding.CosineSimilarity(va, vb)
	if err != nil {
		return 0
	}
	return sim
}
