package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qbox-labs/qbox/internal/engine"
)

func (s *Server) handleS3List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	listing, err := s.s3.List(r.Context(),
		chi.URLParam(r, "connectionID"),
		q.Get("prefix"),
		q.Get("flat") == "true",
		q.Get("token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleS3FileMetadata(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("path")
	if key == "" {
		s.writeError(w, &engine.ConfigurationError{Field: "path", Reason: "must not be empty"})
		return
	}
	cols, err := s.s3.FileMetadata(r.Context(), chi.URLParam(r, "connectionID"), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    key,
		"columns": cols,
	})
}

func (s *Server) handleS3CreateView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ViewName string `json:"view_name"`
		Key      string `json:"key"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ViewName == "" || req.Key == "" {
		s.writeError(w, &engine.ConfigurationError{Field: "view", Reason: "view_name and key are required"})
		return
	}
	qualified, err := s.s3.CreateView(r.Context(), chi.URLParam(r, "connectionID"), req.ViewName, req.Key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"view": qualified})
}

func (s *Server) handleS3DropView(w http.ResponseWriter, r *http.Request) {
	if err := s.s3.DropView(r.Context(), chi.URLParam(r, "viewName")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
