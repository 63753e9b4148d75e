package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/source"
	"github.com/qbox-labs/qbox/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP statuses: configuration and
// unknown-type errors are 400, connectivity 400, collisions 409, missing
// records 404, everything else 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		cfgErr       *engine.ConfigurationError
		connErr      *engine.ConnectivityError
		collisionErr *engine.IdentifierCollisionError
		unknownErr   *source.UnknownSourceTypeError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &cfgErr), errors.As(err, &unknownErr):
		status = http.StatusBadRequest
	case errors.As(err, &connErr):
		status = http.StatusBadRequest
	case errors.As(err, &collisionErr):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &engine.ConfigurationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
