// Package wsapi is the IDE-facing HTTP + WebSocket surface: file CRUD over
// REST, workspace search, undo/redo, and the bidirectional chat protocol that
// drives internal/loop.Controller. Adapted from internal/server's API
// surface — same CORS middleware and writeJSON/writeError helper shape — but
// with an entirely different route table (file/session operations instead of
// session/provider/agent CRUD) and a WebSocket chat channel in place of SSE,
// grounded on the gorilla/websocket upgrade-and-pump pattern used elsewhere
// in this stack's dependency surface for a persistent duplex channel.
package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/maeum-labs/maeum-ide/internal/agent"
	"github.com/maeum-labs/maeum-ide/internal/config"
	"github.com/maeum-labs/maeum-ide/internal/index"
	"github.com/maeum-labs/maeum-ide/internal/loop"
	"github.com/maeum-labs/maeum-ide/internal/permission"
	"github.com/maeum-labs/maeum-ide/internal/session"
	"github.com/maeum-labs/maeum-ide/internal/tool"
	"github.com/maeum-labs/maeum-ide/internal/txn"
)

// Server is the HTTP + WebSocket API surface for one workspace.
type Server struct {
	cfg      *config.Config
	idx      *index.Index
	txnMgr   *txn.Manager
	registry *tool.Registry
	store    *session.Store
	perm     *permission.Engine
	ctrl     *loop.Controller
	log      *zap.Logger

	mux      *http.ServeMux
	server   *http.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	abortFns map[string]context.CancelFunc // sessionID -> cancel for the in-flight turn
}

// Deps bundles the constructed subsystems New wires into route handlers.
type Deps struct {
	Config     *config.Config
	Index      *index.Index
	Txn        *txn.Manager
	Registry   *tool.Registry
	Store      *session.Store
	Permission *permission.Engine
	Transport  loop.Transport
	Log        *zap.Logger
}

// New builds a Server from its constructed dependencies, wiring the
// concrete implementations into a loop.Controller via a tool.ToolContext.
func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	ctrl := loop.New(d.Registry, d.Transport, d.Permission, loop.Config{
		MaxIterations:  d.Config.Loop.MaxIterations,
		MaxExploration: d.Config.Loop.MaxExploration,
	}, log)

	s := &Server{
		cfg:      d.Config,
		idx:      d.Index,
		txnMgr:   d.Txn,
		registry: d.Registry,
		store:    d.Store,
		perm:     d.Permission,
		ctrl:     ctrl,
		log:      log,
		mux:      http.NewServeMux(),
		abortFns: make(map[string]context.CancelFunc),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Start listens and serves, blocking until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{Addr: addr, Handler: s.corsMiddleware(s.mux)}
	s.log.Info("maeum-ide server listening", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down, giving in-flight requests 5s to finish.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/workspace", s.handleWorkspace)

	s.mux.HandleFunc("GET /api/files", s.handleListFiles)
	s.mux.HandleFunc("GET /api/file", s.handleGetFile)
	s.mux.HandleFunc("POST /api/file", s.handleWriteFile)
	s.mux.HandleFunc("POST /api/file/create", s.handleCreateFile)
	s.mux.HandleFunc("POST /api/file/rename", s.handleRenameFile)
	s.mux.HandleFunc("DELETE /api/file", s.handleDeleteFile)

	s.mux.HandleFunc("GET /api/search", s.handleSearch)

	s.mux.HandleFunc("POST /api/undo", s.handleUndo)
	s.mux.HandleFunc("POST /api/redo", s.handleRedo)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)

	s.mux.HandleFunc("POST /api/edit", s.handleEdit)
	s.mux.HandleFunc("POST /api/edit/batch", s.handleEditBatch)

	s.mux.HandleFunc("POST /api/ai/abort", s.handleAIAbort)

	s.mux.HandleFunc("GET /ws/chat", s.handleChatWebSocket)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- health / workspace ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"root":         s.cfg.Workspace.Root,
		"indexedFiles": s.idx.Count(),
	})
}

// --- file CRUD ---

// resolvePath joins a client-supplied relative path onto the workspace root,
// refusing to resolve outside it so /api/file can't be used to read or write
// arbitrary host paths.
func (s *Server) resolvePath(rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	abs := filepath.Join(s.cfg.Workspace.Root, rel)
	root, err := filepath.Abs(s.cfg.Workspace.Root)
	if err != nil {
		return "", err
	}
	absClean, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if absClean != root && !strings.HasPrefix(absClean, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace root: %s", rel)
	}
	return absClean, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	sub := r.URL.Query().Get("path")
	depth := -1
	if d := r.URL.Query().Get("depth"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil {
			depth = parsed
		}
	}
	out, err := s.idx.Structure(r.Context(), sub, depth)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"structure": out})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := s.resolvePath(rel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, map[string]string{"path": rel, "content": string(data)})
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	txnID := s.txnMgr.Begin("web IDE: write " + req.Path)
	if err := s.txnMgr.Write(txnID, req.Path, req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.txnMgr.Commit(txnID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.idx.Refresh(req.Path)
	writeJSON(w, map[string]interface{}{"changed": res.Changed})
}

func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if abs, err := s.resolvePath(req.Path); err == nil {
		if _, statErr := os.Stat(abs); statErr == nil {
			writeError(w, http.StatusConflict, "file already exists: "+req.Path)
			return
		}
	}
	txnID := s.txnMgr.Begin("web IDE: create " + req.Path)
	if err := s.txnMgr.Write(txnID, req.Path, req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.txnMgr.Commit(txnID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.idx.Refresh(req.Path)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]interface{}{"changed": res.Changed})
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	txnID := s.txnMgr.Begin(fmt.Sprintf("web IDE: rename %s -> %s", req.From, req.To))
	if err := s.txnMgr.Rename(txnID, req.From, req.To); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.txnMgr.Commit(txnID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.idx.Refresh(req.From)
	s.idx.Refresh(req.To)
	writeJSON(w, map[string]interface{}{"changed": res.Changed})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	txnID := s.txnMgr.Begin("web IDE: delete " + rel)
	if err := s.txnMgr.Delete(txnID, rel); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.txnMgr.Commit(txnID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.idx.Refresh(rel)
	writeJSON(w, map[string]interface{}{"changed": res.Changed})
}

// --- search ---

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "fuzzy"
	}
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	out, err := s.idx.Search(r.Context(), mode, q, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"results": out})
}

// --- undo / redo / history ---

// requireConfirm guards destructive one-shot endpoints: the IDE must pass
// ?confirm=true, mirroring the tool-call confirmation round-trip the chat
// protocol enforces for the same operations invoked as model tool calls.
func requireConfirm(r *http.Request) bool {
	return r.URL.Query().Get("confirm") == "true"
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if !requireConfirm(r) {
		writeError(w, http.StatusPreconditionRequired, "pass ?confirm=true to undo")
		return
	}
	res, err := s.txnMgr.Undo()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	for _, f := range res.Changed {
		s.idx.Refresh(f)
	}
	writeJSON(w, map[string]interface{}{"changed": res.Changed})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	if !requireConfirm(r) {
		writeError(w, http.StatusPreconditionRequired, "pass ?confirm=true to redo")
		return
	}
	res, err := s.txnMgr.Redo()
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	for _, f := range res.Changed {
		s.idx.Refresh(f)
	}
	writeJSON(w, map[string]interface{}{"changed": res.Changed})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessions := s.store.List()
	out := make([]map[string]interface{}, len(sessions))
	for i, sess := range sessions {
		out[i] = map[string]interface{}{
			"id":         sess.ID,
			"title":      sess.Title,
			"status":     sess.Status,
			"messages":   len(sess.Messages),
			"created_at": sess.CreatedAt,
			"updated_at": sess.UpdatedAt,
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["updated_at"].(time.Time).After(out[j]["updated_at"].(time.Time))
	})
	writeJSON(w, out)
}

// --- direct edit (bypasses the agent loop; used by the IDE's own editor save-and-apply-patch flow) ---

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	txnID := s.txnMgr.Begin("web IDE: edit " + req.Path)
	if err := s.txnMgr.Edit(txnID, req.Path, req.OldString, req.NewString, req.ReplaceAll); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.txnMgr.Commit(txnID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.idx.Refresh(req.Path)
	writeJSON(w, map[string]interface{}{"changed": res.Changed, "diffs": res.Diffs})
}

func (s *Server) handleEditBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
		Edits       []struct {
			Path       string `json:"path"`
			OldString  string `json:"old_string"`
			NewString  string `json:"new_string"`
			ReplaceAll bool   `json:"replace_all"`
		} `json:"edits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	desc := req.Description
	if desc == "" {
		desc = "web IDE: batch edit"
	}
	txnID := s.txnMgr.Begin(desc)
	for _, e := range req.Edits {
		if err := s.txnMgr.Edit(txnID, e.Path, e.OldString, e.NewString, e.ReplaceAll); err != nil {
			s.txnMgr.Rollback(txnID)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	res, err := s.txnMgr.Commit(txnID, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, f := range res.Changed {
		s.idx.Refresh(f)
	}
	writeJSON(w, map[string]interface{}{"changed": res.Changed, "diffs": res.Diffs})
}

// --- abort ---

func (s *Server) handleAIAbort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	cancel, ok := s.abortFns[req.SessionID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	writeJSON(w, map[string]bool{"aborted": ok})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// buildToolContext wires the concrete subsystems into the shape
// internal/tool's narrow interfaces expect for one turn of a given session.
func (s *Server) buildToolContext(ctx context.Context, sessionID, messageID string) *tool.ToolContext {
	return &tool.ToolContext{
		SessionID: sessionID,
		MessageID: messageID,
		WorkDir:   s.cfg.Workspace.Root,
		Abort:     ctx,
		Index:     s.idx,
		Txn:       newTxnAdapter(s.txnMgr),
	}
}

// systemPromptFor builds the system prompt for a turn: the fixed role
// preamble and environment block (agent.SystemPrompt) plus the per-turn IDE
// state the client attached to its chat frame — current file, open tabs,
// recent context — the indexed workspace tree, the tool catalog, and a
// symbol summary for the files currently in view.
func (s *Server) systemPromptFor(ctx context.Context, currentFile string, openTabs []string, recentContext string) string {
	pc := agent.PromptContext{
		Tools:         s.registry.Descriptions(nil),
		CurrentFile:   currentFile,
		OpenTabs:      openTabs,
		RecentContext: recentContext,
	}

	if s.idx != nil {
		if tree, err := s.idx.Structure(ctx, "", 3); err == nil {
			pc.WorkspaceTree = truncateLines(tree, 150)
		}
	}

	if currentFile != "" {
		pc.CurrentFileLang = strings.TrimPrefix(strings.ToLower(filepath.Ext(currentFile)), ".")
		if abs, err := s.resolvePath(currentFile); err == nil {
			if data, err := os.ReadFile(abs); err == nil {
				pc.CurrentFileLines = strings.Count(string(data), "\n") + 1
			}
		}
	}

	pc.SymbolSummary = s.symbolSummary(ctx, append([]string{currentFile}, openTabs...))

	return agent.SystemPrompt(s.cfg.Workspace.Root, pc)
}

// truncateLines caps s at max lines, appending a marker noting how much was
// dropped rather than silently cutting it off.
func truncateLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n") + fmt.Sprintf("\n... (%d more lines truncated)", len(lines)-max)
}

// symbolSummary renders one paragraph per distinct, non-empty path in
// paths (typically the current file plus open tabs) listing its extracted
// symbol outline, skipping files the index has nothing to say about.
func (s *Server) symbolSummary(ctx context.Context, paths []string) string {
	if s.idx == nil {
		return ""
	}
	seen := make(map[string]bool)
	var sb strings.Builder
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out, err := s.idx.Symbols(ctx, p)
		if err != nil || out == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s:\n%s\n\n", p, out))
	}
	return strings.TrimSpace(sb.String())
}
