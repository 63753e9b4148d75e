package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	history := []Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	messages := BuildMessages("Table orders:\n  - id BIGINT", "total per city", history)

	require.Len(t, messages, 5)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[1].Content, "Table orders")
	assert.Equal(t, "earlier question", messages[2].Content)
	assert.Equal(t, "user", messages[4].Role)
	assert.Equal(t, "total per city", messages[4].Content)

	// No schema block when there is no schema text.
	messages = BuildMessages("", "q", nil)
	require.Len(t, messages, 2)
}

func TestParseGeneration(t *testing.T) {
	gen, err := ParseGeneration(`{"sql": "SELECT 1", "explanation": "trivial"}`)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", gen.SQL)
	assert.Equal(t, "trivial", gen.Explanation)

	// Fenced JSON.
	gen, err = ParseGeneration("```json\n{\"sql\": \"SELECT 2\", \"explanation\": \"x\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", gen.SQL)

	// Bare SQL fallback.
	gen, err = ParseGeneration("SELECT a FROM b")
	require.NoError(t, err)
	assert.Equal(t, "SELECT a FROM b", gen.SQL)

	// Garbage.
	_, err = ParseGeneration("I cannot help with that.")
	assert.Error(t, err)

	// JSON without sql.
	_, err = ParseGeneration(`{"explanation": "nothing"}`)
	assert.Error(t, err)
}

func TestOpenAIClientChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `{"sql":"SELECT 1","explanation":"ok"}`}},
			},
		})
	}))
	defer srv.Close()

	client := &OpenAIClient{BaseURL: srv.URL + "/v1", APIKey: "test-key", Model: "test-model"}
	svc := NewService(client, nil)

	gen, err := svc.Generate(context.Background(), "schema", "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", gen.SQL)
	assert.Equal(t, "ok", gen.Explanation)
}

func TestOpenAIClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key"},
		})
	}))
	defer srv.Close()

	client := &OpenAIClient{BaseURL: srv.URL, APIKey: "bad", Model: "m"}
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid api key")
}
