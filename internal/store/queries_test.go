package store

import (
	"errors"
	"testing"
)

func TestQueryWorkspaceLifecycle(t *testing.T) {
	s := newTestStore(t)

	q, err := s.CreateQuery("Monthly Revenue")
	if err != nil {
		t.Fatalf("CreateQuery: %v", err)
	}

	if err := s.UpdateQuerySQL(q.ID, "SELECT 1"); err != nil {
		t.Fatalf("UpdateQuerySQL: %v", err)
	}
	loaded, err := s.GetQuery(q.ID)
	if err != nil {
		t.Fatalf("GetQuery: %v", err)
	}
	if loaded.SQL != "SELECT 1" {
		t.Errorf("sql = %q", loaded.SQL)
	}

	conn, _ := s.CreateConnection("Sales", "postgres", nil)
	if _, err := s.AddSelection(q.ID, conn.ID, "public", "orders"); err != nil {
		t.Fatalf("AddSelection: %v", err)
	}
	if _, err := s.AddSelection(q.ID, conn.ID, "public", "customers"); err != nil {
		t.Fatalf("AddSelection: %v", err)
	}

	sels, err := s.ListSelections(q.ID)
	if err != nil {
		t.Fatalf("ListSelections: %v", err)
	}
	if len(sels) != 2 {
		t.Fatalf("selections = %d, want 2", len(sels))
	}

	// Deleting the connection cascades to its selections.
	if err := s.DeleteConnection(conn.ID); err != nil {
		t.Fatalf("DeleteConnection: %v", err)
	}
	sels, _ = s.ListSelections(q.ID)
	if len(sels) != 0 {
		t.Errorf("selections after connection delete = %d, want 0", len(sels))
	}

	if err := s.DeleteQuery(q.ID); err != nil {
		t.Fatalf("DeleteQuery: %v", err)
	}
	if _, err := s.GetQuery(q.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v", err)
	}
}

func TestChatThread(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.CreateQuery("ws")

	if _, err := s.AddChatMessage(q.ID, "user", "show revenue by month"); err != nil {
		t.Fatalf("AddChatMessage: %v", err)
	}
	if _, err := s.AddChatMessage(q.ID, "assistant", "here is the SQL"); err != nil {
		t.Fatalf("AddChatMessage: %v", err)
	}

	msgs, err := s.ListChatMessages(q.ID)
	if err != nil {
		t.Fatalf("ListChatMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Fatalf("msgs = %+v", msgs)
	}

	if err := s.ClearChatMessages(q.ID); err != nil {
		t.Fatalf("ClearChatMessages: %v", err)
	}
	msgs, _ = s.ListChatMessages(q.ID)
	if len(msgs) != 0 {
		t.Errorf("msgs after clear = %d", len(msgs))
	}
}

func TestQueryHistory(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.CreateQuery("ws")

	entry, err := s.AddHistory(&HistoryEntry{
		QueryID:     q.ID,
		Prompt:      "total per region",
		SQL:         "SELECT region, SUM(x) FROM t GROUP BY region",
		Explanation: "groups by region",
	})
	if err != nil {
		t.Fatalf("AddHistory: %v", err)
	}

	if err := s.UpdateHistoryExecution(entry.ID, 12, 340, ""); err != nil {
		t.Fatalf("UpdateHistoryExecution: %v", err)
	}

	hist, err := s.ListHistory(q.ID, 10)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("history = %d entries", len(hist))
	}
	if hist[0].RowCount == nil || *hist[0].RowCount != 12 {
		t.Errorf("row count = %v", hist[0].RowCount)
	}
	if hist[0].ExecutionMS == nil || *hist[0].ExecutionMS != 340 {
		t.Errorf("execution ms = %v", hist[0].ExecutionMS)
	}
	if hist[0].Error != "" {
		t.Errorf("error = %q", hist[0].Error)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSetting(SettingAIModel)
	if err != nil || v != "" {
		t.Fatalf("unset setting = %q, %v", v, err)
	}

	if err := s.SetSetting(SettingAIModel, "gpt-4o-mini"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(SettingAIModel, "gpt-4o"); err != nil {
		t.Fatalf("SetSetting update: %v", err)
	}
	v, _ = s.GetSetting(SettingAIModel)
	if v != "gpt-4o" {
		t.Errorf("setting = %q", v)
	}

	all, err := s.AllSettings()
	if err != nil || all[SettingAIModel] != "gpt-4o" {
		t.Errorf("all settings = %v, %v", all, err)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	q, _ := s.CreateQuery("ws")
	_, _ = s.CreateConnection("C", "postgres", nil)
	_, _ = s.AddChatMessage(q.ID, "user", "hi")
	_ = s.SetSetting(SettingAIModel, "m")

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	qs, _ := s.ListQueries()
	cs, _ := s.ListConnections()
	if len(qs) != 0 || len(cs) != 0 {
		t.Errorf("data survived reset: %d queries, %d connections", len(qs), len(cs))
	}
	// Settings are preserved.
	if v, _ := s.GetSetting(SettingAIModel); v != "m" {
		t.Errorf("setting lost on reset: %q", v)
	}
}
