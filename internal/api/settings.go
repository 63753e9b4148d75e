package api

import (
	"net/http"

	"github.com/qbox-labs/qbox/internal/store"
)

// handleGetSettings returns stored settings with the API key masked down
// to presence.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.AllSettings()
	if err != nil {
		s.writeError(w, err)
		return
	}

	hasKey := all[store.SettingAIAPIKey] != "" || s.aiCfg.APIKey != ""
	model := all[store.SettingAIModel]
	if model == "" {
		model = s.aiCfg.Model
	}
	baseURL := all[store.SettingAIBaseURL]
	if baseURL == "" {
		baseURL = s.aiCfg.BaseURL
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ai_api_key_set": hasKey,
		"ai_model":       model,
		"ai_base_url":    baseURL,
	})
}

// handlePutSettings updates stored settings. Empty fields are left alone
// so partial updates work.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey  string `json:"ai_api_key"`
		Model   string `json:"ai_model"`
		BaseURL string `json:"ai_base_url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	updates := map[string]string{
		store.SettingAIAPIKey:  req.APIKey,
		store.SettingAIModel:   req.Model,
		store.SettingAIBaseURL: req.BaseURL,
	}
	for key, value := range updates {
		if value == "" {
			continue
		}
		if err := s.store.SetSetting(key, value); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}
