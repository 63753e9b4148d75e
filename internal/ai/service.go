// Package ai turns natural-language prompts into federated SQL using the
// schema context of a query workspace.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const systemPrompt = `You are a SQL assistant for an embedded DuckDB engine that federates
PostgreSQL databases, S3 files, and uploaded CSV/Excel files. Generate
DuckDB SQL that references tables exactly by the qualified names listed in
the schema. Respond with a JSON object: {"sql": "...", "explanation": "..."}.
Do not include anything outside the JSON object.`

// Generation is a model-produced SQL statement with its explanation.
type Generation struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// Service builds prompts and parses model replies.
type Service struct {
	client Client
	logger *slog.Logger
}

// NewService returns an AI service using the given client.
func NewService(client Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{client: client, logger: logger}
}

// Generate produces SQL for a prompt given the workspace's schema text and
// prior chat turns.
func (s *Service) Generate(ctx context.Context, schemaText, prompt string, history []Message) (*Generation, error) {
	messages := BuildMessages(schemaText, prompt, history)

	reply, err := s.client.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}

	gen, err := ParseGeneration(reply)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("sql generated", "chars", len(gen.SQL))
	return gen, nil
}

// BuildMessages assembles the chat payload: system prompt, schema context,
// prior turns, then the new prompt.
func BuildMessages(schemaText, prompt string, history []Message) []Message {
	messages := make([]Message, 0, len(history)+3)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	if schemaText != "" {
		messages = append(messages, Message{
			Role:    "system",
			Content: "Available tables:\n" + schemaText,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: prompt})
	return messages
}

// ParseGeneration extracts the {"sql", "explanation"} object from a model
// reply, tolerating markdown code fences around the JSON.
func ParseGeneration(reply string) (*Generation, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var gen Generation
	if err := json.Unmarshal([]byte(text), &gen); err != nil {
		// Some models reply with bare SQL despite the instructions.
		if looksLikeSQL(text) {
			return &Generation{SQL: text}, nil
		}
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}
	if strings.TrimSpace(gen.SQL) == "" {
		return nil, fmt.Errorf("model reply contained no sql")
	}
	return &gen, nil
}

func looksLikeSQL(text string) bool {
	upper := strings.ToUpper(text)
	for _, prefix := range []string{"SELECT", "WITH", "INSERT", "CREATE", "EXPLAIN"} {
		if strings.HasPrefix(upper, prefix) {
			return true
		}
	}
	return false
}
