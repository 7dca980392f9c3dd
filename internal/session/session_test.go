package session

import (
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Store CRUD
// ---------------------------------------------------------------------------

func TestStoreCreateAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, err := store.Create("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if sess.ID == "" {
		t.Error("session ID should not be empty")
	}
	if sess.Model != "claude-sonnet-4-5" {
		t.Errorf("Model: want claude-sonnet-4-5, got %q", sess.Model)
	}
	if sess.Status != "idle" {
		t.Errorf("Status: want idle, got %q", sess.Status)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("Get returned wrong session: %q vs %q", got.ID, sess.ID)
	}
}

func TestStoreGetMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, err = store.Get("nonexistent")
	if err == nil {
		t.Error("expected error for missing session, got nil")
	}
}

func TestStoreList(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	// Create three sessions with small delays to get distinct UpdatedAt
	for i := 0; i < 3; i++ {
		if _, err := store.Create("gpt-4o"); err != nil {
			t.Fatalf("Create[%d]: %v", i, err)
		}
		time.Sleep(time.Millisecond)
	}

	sessions := store.List()
	if len(sessions) != 3 {
		t.Errorf("List: want 3 sessions, got %d", len(sessions))
	}

	// Verify newest-first ordering
	for i := 1; i < len(sessions); i++ {
		if sessions[i].UpdatedAt.After(sessions[i-1].UpdatedAt) {
			t.Errorf("List is not sorted newest-first at index %d", i)
		}
	}
}

func TestStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, err := store.Create("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := store.Get(sess.ID); err == nil {
		t.Error("expected error after Delete, got nil")
	}
}

func TestStoreAddMessage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, err := store.Create("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	msg := Message{
		ID:      "msg1",
		Role:    "user",
		Content: "hello",
	}
	if err := store.AddMessage(sess.ID, msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get after AddMessage: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(got.Messages))
	}
	if got.Messages[0].Content != "hello" {
		t.Errorf("message content mismatch: %q", got.Messages[0].Content)
	}
}

func TestStoreUpdateMessage(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, err := store.Create("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = store.AddMessage(sess.ID, Message{ID: "m1", Role: "assistant", Content: "partial"})

	err = store.UpdateMessage(sess.ID, "m1", func(m *Message) {
		m.Content = "complete"
		m.FinishReason = "stop"
	})
	if err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}

	got, _ := store.Get(sess.ID)
	if got.Messages[0].Content != "complete" {
		t.Errorf("Content: want complete, got %q", got.Messages[0].Content)
	}
	if got.Messages[0].FinishReason != "stop" {
		t.Errorf("FinishReason: want stop, got %q", got.Messages[0].FinishReason)
	}
}

func TestStoreExport(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	sess, err := store.Create("gpt-4o")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = store.AddMessage(sess.ID, Message{ID: "m1", Role: "user", Content: "test"})

	data, err := store.Export(sess.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("exported data should not be empty")
	}
}

func TestStoreReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sess, err := store.Create("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_ = store.AddMessage(sess.ID, Message{ID: "m1", Role: "user", Content: "persisted"})

	store2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore2: %v", err)
	}
	got, err := store2.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "persisted" {
		t.Errorf("reloaded session missing persisted message: %+v", got.Messages)
	}
}

// ---------------------------------------------------------------------------
// Session / Message structure
// ---------------------------------------------------------------------------

func TestMessagePartTypes(t *testing.T) {
	types := []string{"text", "tool_use", "tool_result", "image", "error"}
	for _, tp := range types {
		p := Part{Type: tp}
		if p.Type != tp {
			t.Errorf("Part.Type round-trip failed for %q", tp)
		}
	}
}

func TestSummaryFileCount(t *testing.T) {
	s := Summary{
		Files:     []string{"a.go", "b.go", "c.go"},
		FileCount: 3,
		TokensIn:  500,
		TokensOut: 200,
	}
	if s.FileCount != len(s.Files) {
		t.Errorf("FileCount %d != len(Files) %d", s.FileCount, len(s.Files))
	}
}

func TestMessageErrorFields(t *testing.T) {
	e := MessageError{
		Type:    "api_error",
		Message: "rate limit hit",
	}
	if e.Type == "" || e.Message == "" {
		t.Error("MessageError fields should not be empty")
	}
}

func TestStoreCompact(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	sess, err := store.Create("claude-sonnet-4-5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 5; i++ {
		_ = store.AddMessage(sess.ID, Message{
			Role: "assistant",
			Parts: []Part{
				{Type: "tool_result", Content: "a large tool output that should be eligible for pruning once old enough"},
			},
		})
	}

	if err := store.Compact(sess.ID); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	// Compact must not error and must not drop messages outright — only
	// mark eligible tool_result parts as compacted.
	got, _ := store.Get(sess.ID)
	if len(got.Messages) != 5 {
		t.Errorf("Compact changed message count: want 5, got %d", len(got.Messages))
	}
}
