package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"hexmem/internal/dedup"
	"hexmem/internal/embedding"
	"hexmem/internal/ingest"
	"hexmem/internal/store"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Kind classifies an error for status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindUnauthenticated
	KindPermissionDenied
	KindNotFound
	KindConflict
	KindUnavailable
)

// apperr carries a kind plus a user-facing message.
type apperr struct {
	kind Kind
	msg  string
	err  error
}

func (e *apperr) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *apperr) Unwrap() error { return e.err }

func badRequest(format string, args ...interface{}) error {
	return &apperr{kind: KindInvalidArgument, msg: fmt.Sprintf(format, args...)}
}

func unauthenticated(msg string) error {
	return &apperr{kind: KindUnauthenticated, msg: msg}
}

func forbidden(msg string) error {
	return &apperr{kind: KindPermissionDenied, msg: msg}
}

// classify maps any error onto its kind.
func classify(err error) Kind {
	var ae *apperr
	if errors.As(err, &ae) {
		return ae.kind
	}
	var conflict *dedup.Conflict
	switch {
	case errors.As(err, &conflict):
		return KindConflict
	case errors.Is(err, store.ErrSessionEnded):
		return KindInvalidArgument
	case errors.Is(err, ingest.ErrInvalidRole):
		return KindInvalidArgument
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrDuplicate):
		return KindConflict
	case errors.Is(err, embedding.ErrUnavailable):
		return KindUnavailable
	}
	return KindInternal
}

func statusFor(k Kind) int {
	switch k {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders an error as {"error": ...}; dedup conflicts additionally
// carry existing_id and similarity. Internal errors are logged and masked.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := classify(err)
	status := statusFor(kind)

	body := map[string]interface{}{"error": err.Error()}
	var conflict *dedup.Conflict
	if errors.As(err, &conflict) {
		body["existing_id"] = conflict.ExistingID
		body["similarity"] = conflict.Similarity
	}
	if kind == KindInternal {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		body["error"] = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Warn("response encoding failed", zap.Error(err))
		}
	}
}

// decodeJSON reads a request body into v, rejecting malformed payloads.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return badRequest("malformed json body")
	}
	return nil
}
