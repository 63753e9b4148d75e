package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/files"
	"github.com/qbox-labs/qbox/internal/store"
)

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(files.MaxUploadBytes); err != nil {
		s.writeError(w, &engine.ConfigurationError{Field: "file", Reason: err.Error()})
		return
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, &engine.ConfigurationError{Field: "file", Reason: "missing file field"})
		return
	}
	defer f.Close()

	rec, err := s.files.Upload(r.Context(), r.FormValue("query_id"), header.Filename, f, header.Size, r.FormValue("sheet"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	recs, err := s.files.List(r.URL.Query().Get("query_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*store.File{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.files.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleFileMetadata(w http.ResponseWriter, r *http.Request) {
	rec, cols, err := s.files.Metadata(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":    rec,
		"columns": cols,
	})
}

func (s *Server) handleFileSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := s.files.Sheets(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sheets": sheets})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
