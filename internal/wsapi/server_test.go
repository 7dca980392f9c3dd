package wsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/maeum-labs/maeum-ide/internal/config"
	"github.com/maeum-labs/maeum-ide/internal/index"
	"github.com/maeum-labs/maeum-ide/internal/permission"
	"github.com/maeum-labs/maeum-ide/internal/session"
	"github.com/maeum-labs/maeum-ide/internal/tool"
	"github.com/maeum-labs/maeum-ide/internal/transport"
	"github.com/maeum-labs/maeum-ide/internal/txn"
)

// fakeTransport satisfies loop.Transport without making any network call;
// the REST-surface tests in this file never drive a turn through the loop.
type fakeTransport struct{}

func (fakeTransport) StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) transport.StreamResult {
	return transport.StreamResult{}
}
func (fakeTransport) Abort(ctx context.Context) {}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		Workspace: config.WorkspaceConfig{Root: dir},
		Server:    config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Loop:      config.LoopConfig{MaxIterations: 10, MaxExploration: 5},
	}

	idx, err := index.New(context.Background(), index.Config{Root: dir}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	store, err := session.NewStore(filepath.Join(dir, ".sessions"))
	if err != nil {
		t.Fatal(err)
	}
	perm, err := permission.NewEngine(permission.DefaultConfig(dir))
	if err != nil {
		t.Fatal(err)
	}

	return New(Deps{
		Config:     cfg,
		Index:      idx,
		Txn:        txn.New(dir),
		Registry:   tool.GetRegistry(),
		Store:      store,
		Permission: perm,
		Transport:  fakeTransport{},
		Log:        zap.NewNop(),
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body)
	}
}

func TestHandleGetFile(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/file?path=hello.txt", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["content"] != "hello world" {
		t.Errorf("unexpected content: %q", body["content"])
	}
}

func TestHandleGetFileRejectsEscape(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/file?path=../../etc/passwd", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for path escape, got %d", w.Code)
	}
}

func TestHandleWriteThenGetFile(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"path": "new.txt", "content": "created via REST"})
	req := httptest.NewRequest(http.MethodPost, "/api/file", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on write, got %d: %s", w.Code, w.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, "/api/file?path=new.txt", nil)
	w2 := httptest.NewRecorder()
	s.mux.ServeHTTP(w2, req2)
	var out map[string]string
	json.Unmarshal(w2.Body.Bytes(), &out)
	if out["content"] != "created via REST" {
		t.Errorf("unexpected content after write: %q", out["content"])
	}
}

func TestHandleUndoRequiresConfirm(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/undo", nil)
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusPreconditionRequired {
		t.Fatalf("expected 428 without ?confirm=true, got %d", w.Code)
	}
}

func TestHandleAIAbortUnknownSessionIsNoop(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"session_id": "does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/api/ai/abort", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out map[string]bool
	json.Unmarshal(w.Body.Bytes(), &out)
	if out["aborted"] {
		t.Error("expected aborted=false for an unknown session")
	}
}

func TestCorsMiddlewareHandlesPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	w := httptest.NewRecorder()
	s.corsMiddleware(s.mux).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on preflight response")
	}
}

func TestHistoryFromSessionFiltersSystemMessages(t *testing.T) {
	sess := &session.Session{
		Messages: []session.Message{
			{Role: "system", Content: "ignored"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	}
	hist := historyFromSession(sess)
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages after filtering system, got %d", len(hist))
	}
	if hist[0].Role != "user" || hist[1].Role != "assistant" {
		t.Errorf("unexpected roles: %+v", hist)
	}
}
