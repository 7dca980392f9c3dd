package wsapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/maeum-labs/maeum-ide/internal/loop"
	"github.com/maeum-labs/maeum-ide/internal/session"
)

// compactionSummaryPrefix tags the synthetic history entry a compaction
// pass produces, so a later compaction can find and extend it rather than
// discarding the digest from an earlier round.
const compactionSummaryPrefix = "[prior summary] "

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

// chatConn owns one /ws/chat connection's send pump and session bookkeeping.
type chatConn struct {
	srv     *Server
	conn    *websocket.Conn
	send    chan serverFrame
	sess    *session.Session
	history []loop.Message

	mu sync.Mutex
}

// handleChatWebSocket upgrades the request and serves one IDE chat session
// for the connection's lifetime. A session is resumed from ?session_id= if
// given and exists, otherwise a new one is created.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	var sess *session.Session
	if sessionID != "" {
		sess, err = s.store.Get(sessionID)
	}
	if sess == nil {
		sess, err = s.store.Create("default")
	}
	if err != nil {
		conn.WriteJSON(serverFrame{Type: "error", Content: err.Error(), IsError: true})
		conn.Close()
		return
	}

	cc := &chatConn{
		srv:     s,
		conn:    conn,
		send:    make(chan serverFrame, 64),
		sess:    sess,
		history: historyFromSession(sess),
	}
	go cc.writeLoop()
	cc.readLoop()
}

func historyFromSession(sess *session.Session) []loop.Message {
	out := make([]loop.Message, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		if m.Role != "user" && m.Role != "assistant" && m.Role != "tool" {
			continue
		}
		out = append(out, loop.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (c *chatConn) readLoop() {
	defer c.conn.Close()
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var frame clientFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.cancelActiveTurn()
			close(c.send)
			return
		}
		switch frame.Type {
		case "chat":
			go c.startTurn(frame.Message, frame.CurrentFile, frame.OpenTabs, frame.Context)
		case "cancel":
			c.cancelActiveTurn()
		case "tool_confirm":
			go c.resumeTurn(frame.ConfirmationID, frame.Approved, frame.Answer)
		default:
			c.emit(serverFrame{Type: "error", Content: "unknown frame type: " + frame.Type, IsError: true})
		}
	}
}

func (c *chatConn) writeLoop() {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *chatConn) emit(f serverFrame) {
	select {
	case c.send <- f:
	default:
		c.srv.log.Warn("chat send buffer full, dropping frame", zap.String("session_id", c.sess.ID), zap.String("type", f.Type))
	}
}

func (c *chatConn) cancelActiveTurn() {
	c.srv.mu.Lock()
	cancel, ok := c.srv.abortFns[c.sess.ID]
	c.srv.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *chatConn) registerAbort(cancel context.CancelFunc) {
	c.srv.mu.Lock()
	c.srv.abortFns[c.sess.ID] = cancel
	c.srv.mu.Unlock()
}

func (c *chatConn) clearAbort() {
	c.srv.mu.Lock()
	delete(c.srv.abortFns, c.sess.ID)
	c.srv.mu.Unlock()
}

func (c *chatConn) startTurn(message, currentFile string, openTabs []string, recentContext string) {
	if message == "" {
		c.emit(serverFrame{Type: "error", Content: "message is required", IsError: true})
		return
	}
	c.mu.Lock()
	c.history = append(c.history, loop.Message{Role: "user", Content: message})
	c.mu.Unlock()
	c.srv.store.AddMessage(c.sess.ID, session.Message{Role: "user", Content: message})
	c.srv.store.StatusManager().SetBusy(c.sess.ID)

	ctx, cancel := context.WithCancel(context.Background())
	c.registerAbort(cancel)
	defer cancel()
	defer c.clearAbort()
	defer c.srv.store.StatusManager().SetIdle(c.sess.ID)

	c.maybeCompact(ctx)

	tc := c.srv.buildToolContext(ctx, c.sess.ID, "")
	systemPrompt := c.srv.systemPromptFor(ctx, currentFile, openTabs, recentContext)

	c.mu.Lock()
	hist := append([]loop.Message(nil), c.history...)
	c.mu.Unlock()

	var final string
	c.srv.ctrl.Run(ctx, tc, c.sess.ID, systemPrompt, hist, func(ev loop.Event) {
		c.relay(ev)
		if ev.Type == "done" {
			final = ev.Content
		}
	})

	if final != "" {
		c.mu.Lock()
		c.history = append(c.history, loop.Message{Role: "assistant", Content: final})
		c.mu.Unlock()
		c.srv.store.AddMessage(c.sess.ID, session.Message{Role: "assistant", Content: final, CompletedAt: time.Now()})
	}
	c.pruneStoredHistory()
}

func (c *chatConn) resumeTurn(confirmationID string, approved bool, answer string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.registerAbort(cancel)
	defer cancel()
	defer c.clearAbort()
	defer c.srv.store.StatusManager().SetIdle(c.sess.ID)

	tc := c.srv.buildToolContext(ctx, c.sess.ID, "")
	var final string
	c.srv.ctrl.Resume(ctx, tc, confirmationID, approved, answer, func(ev loop.Event) {
		c.relay(ev)
		if ev.Type == "done" {
			final = ev.Content
		}
	})
	if final != "" {
		c.mu.Lock()
		c.history = append(c.history, loop.Message{Role: "assistant", Content: final})
		c.mu.Unlock()
		c.srv.store.AddMessage(c.sess.ID, session.Message{Role: "assistant", Content: final, CompletedAt: time.Now()})
	}
	c.pruneStoredHistory()
}

// pruneStoredHistory truncates old tool outputs in the persisted session
// record once a turn completes, independent of the in-memory digest
// compaction maybeCompact performs on this connection's live history.
func (c *chatConn) pruneStoredHistory() {
	cfg := session.DefaultCompactionConfig()
	if !cfg.Auto || !cfg.Prune {
		return
	}
	if err := c.srv.store.Compact(c.sess.ID); err != nil {
		c.srv.log.Warn("session history pruning failed", zap.String("session_id", c.sess.ID), zap.Error(err))
	}
}

// maybeCompact summarizes and replaces the oldest portion of history once
// its estimated token count passes the configured threshold, keeping the
// most recent KeepLastTurns messages verbatim. A prior digest (tagged with
// compactionSummaryPrefix) is folded into the new one rather than dropped,
// so repeated compactions across a long session don't lose earlier context.
// Failures are logged and otherwise ignored -- the turn proceeds with the
// uncompressed history, which may simply run into a context-length error
// the user can recover from by starting a new session.
func (c *chatConn) maybeCompact(ctx context.Context) {
	threshold := c.srv.cfg.Compaction.TokenThreshold
	keep := c.srv.cfg.Compaction.KeepLastTurns
	if threshold <= 0 || keep <= 0 {
		return
	}

	c.mu.Lock()
	hist := append([]loop.Message(nil), c.history...)
	c.mu.Unlock()
	if len(hist) <= keep {
		return
	}

	var total int
	for _, m := range hist {
		total += loop.EstimateTokens(m.Content)
	}
	if total <= threshold {
		return
	}

	cut := len(hist) - keep
	prior := ""
	toSummarize := hist[:cut]
	if strings.HasPrefix(hist[0].Content, compactionSummaryPrefix) {
		prior = hist[0].Content
		toSummarize = hist[1:cut]
	}

	digest, err := c.srv.ctrl.Summarize(ctx, toSummarize)
	if err != nil {
		c.srv.log.Warn("compaction failed, continuing with uncompressed history",
			zap.String("session_id", c.sess.ID), zap.Error(err))
		return
	}

	combined := compactionSummaryPrefix + digest
	if prior != "" {
		combined = prior + "\n\n" + compactionSummaryPrefix + digest
	}

	c.mu.Lock()
	c.history = append([]loop.Message{{Role: "tool", Content: combined}}, hist[cut:]...)
	c.mu.Unlock()
	c.srv.log.Info("compacted session history", zap.String("session_id", c.sess.ID), zap.Int("kept_messages", keep))
}

// relay translates a loop.Event into the wire protocol's serverFrame,
// additionally surfacing an open_in_editor hint whenever a tool result
// carries a single-file diff, since that's the one IDE-specific nudge the
// loop layer itself has no business knowing about.
func (c *chatConn) relay(ev loop.Event) {
	frame := serverFrame{
		Type:             ev.Type,
		Content:          ev.Content,
		ToolName:         ev.ToolName,
		ConfirmationID:   ev.ConfirmationID,
		Iteration:        ev.Iteration,
		ExplorationCount: ev.ExplorationCount,
		DiffData:         ev.DiffData,
		DiffDataList:     ev.DiffDataList,
		IsError:          ev.IsError,
	}
	c.emit(frame)

	if ev.Type == "tool_result" && !ev.IsError && ev.DiffData != nil && ev.DiffData.FilePath != "" {
		c.emit(serverFrame{Type: "open_in_editor", Path: ev.DiffData.FilePath})
		c.emit(serverFrame{Type: "file_modified", Path: ev.DiffData.FilePath})
	}
	if ev.Type == "tool_result" && !ev.IsError {
		for _, d := range ev.DiffDataList {
			if d == nil || d.FilePath == "" {
				continue
			}
			c.emit(serverFrame{Type: "file_modified", Path: d.FilePath})
		}
	}
}
