package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/qbox-labs/qbox/internal/ai"
	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/store"
)

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.store.ListQueries()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if queries == nil {
		queries = []*store.Query{}
	}
	writeJSON(w, http.StatusOK, queries)
}

func (s *Server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, &engine.ConfigurationError{Field: "name", Reason: "must not be empty"})
		return
	}
	q, err := s.store.CreateQuery(req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	q, err := s.store.GetQuery(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Uploaded files scoped to this workspace go with it.
	recs, err := s.store.ListFiles(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, rec := range recs {
		if err := s.files.Delete(r.Context(), rec.ID); err != nil {
			s.logger.Warn("file cleanup on query delete failed", "file", rec.ID, "error", err)
		}
	}

	if err := s.store.DeleteQuery(id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUpdateQuerySQL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.UpdateQuerySQL(chi.URLParam(r, "id"), req.SQL); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Selections ---

func (s *Server) handleListSelections(w http.ResponseWriter, r *http.Request) {
	sels, err := s.store.ListSelections(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sels == nil {
		sels = []*store.Selection{}
	}
	writeJSON(w, http.StatusOK, sels)
}

func (s *Server) handleAddSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		Schema       string `json:"schema"`
		Table        string `json:"table"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ConnectionID == "" || req.Table == "" {
		s.writeError(w, &engine.ConfigurationError{Field: "selection", Reason: "connection_id and table are required"})
		return
	}
	sel, err := s.store.AddSelection(chi.URLParam(r, "id"), req.ConnectionID, req.Schema, req.Table)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sel)
}

func (s *Server) handleRemoveSelection(w http.ResponseWriter, r *http.Request) {
	err := s.store.RemoveSelection(chi.URLParam(r, "id"), chi.URLParam(r, "selectionID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// --- Chat and generation ---

func (s *Server) handleListChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ListChatMessages(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*store.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearChatMessages(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleChat appends a user message without generating anything.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	msg, err := s.store.AddChatMessage(chi.URLParam(r, "id"), req.Role, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// aiService resolves AI settings (stored settings win over config) and
// builds the generation service.
func (s *Server) aiService() (*ai.Service, error) {
	apiKey, err := s.store.GetSetting(store.SettingAIAPIKey)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		apiKey = s.aiCfg.APIKey
	}
	if apiKey == "" {
		return nil, &engine.ConfigurationError{Field: "ai", Reason: "no API key configured"}
	}

	model, err := s.store.GetSetting(store.SettingAIModel)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = s.aiCfg.Model
	}
	baseURL, err := s.store.GetSetting(store.SettingAIBaseURL)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = s.aiCfg.BaseURL
	}

	return ai.NewService(s.newAIClient(baseURL, apiKey, model), s.logger), nil
}

// handleGenerate turns a prompt into SQL: workspace metadata becomes the
// schema context, prior chat turns carry the conversation, and the result
// is recorded in chat, history, and the workspace's SQL.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "id")

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Prompt == "" {
		s.writeError(w, &engine.ConfigurationError{Field: "prompt", Reason: "must not be empty"})
		return
	}
	if _, err := s.store.GetQuery(queryID); err != nil {
		s.writeError(w, err)
		return
	}

	svc, err := s.aiService()
	if err != nil {
		s.writeError(w, err)
		return
	}

	qc, err := s.meta.ForQuery(r.Context(), queryID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	stored, err := s.store.ListChatMessages(queryID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	history := make([]ai.Message, 0, len(stored))
	for _, msg := range stored {
		history = append(history, ai.Message{Role: msg.Role, Content: msg.Content})
	}

	gen, err := svc.Generate(r.Context(), qc.Describe(), req.Prompt, history)
	if err != nil {
		s.writeError(w, err)
		return
	}

	_, _ = s.store.AddChatMessage(queryID, "user", req.Prompt)
	_, _ = s.store.AddChatMessage(queryID, "assistant", gen.Explanation)
	if err := s.store.UpdateQuerySQL(queryID, gen.SQL); err != nil {
		s.writeError(w, err)
		return
	}
	entry, err := s.store.AddHistory(&store.HistoryEntry{
		QueryID:     queryID,
		Prompt:      req.Prompt,
		SQL:         gen.SQL,
		Explanation: gen.Explanation,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sql":         gen.SQL,
		"explanation": gen.Explanation,
		"history_id":  entry.ID,
	})
}

// handleExecute runs workspace SQL with optional pagination. Engine
// failures come back as 200 with success=false and the engine's message,
// so the frontend can show them inline.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "id")

	var req struct {
		SQL       string `json:"sql"`
		Page      int    `json:"page"`
		PageSize  int    `json:"page_size"`
		HistoryID string `json:"history_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	sqlText := req.SQL
	if sqlText == "" {
		q, err := s.store.GetQuery(queryID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		sqlText = q.SQL
	}
	if sqlText == "" {
		s.writeError(w, &engine.ConfigurationError{Field: "sql", Reason: "nothing to execute"})
		return
	}

	res, total, err := s.executor.RunPaged(r.Context(), sqlText, req.Page, req.PageSize)
	if err != nil {
		var execErr *engine.ExecutionError
		if errors.As(err, &execErr) {
			if req.HistoryID != "" {
				_ = s.store.UpdateHistoryExecution(req.HistoryID, 0, 0, execErr.Err.Error())
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"error":   execErr.Err.Error(),
			})
			return
		}
		s.writeError(w, err)
		return
	}

	if req.HistoryID != "" {
		_ = s.store.UpdateHistoryExecution(req.HistoryID, total, res.ExecutionMS, "")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"columns":      res.Columns,
		"rows":         res.Rows,
		"row_count":    res.RowCount,
		"total_rows":   total,
		"execution_ms": res.ExecutionMS,
		"page":         req.Page,
		"page_size":    req.PageSize,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hist, err := s.store.ListHistory(chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hist == nil {
		hist = []*store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, hist)
}
