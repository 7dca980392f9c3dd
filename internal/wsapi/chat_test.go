package wsapi

import (
	"context"
	"strings"
	"testing"

	"github.com/maeum-labs/maeum-ide/internal/loop"
	"github.com/maeum-labs/maeum-ide/internal/transport"
)

// digestTransport answers every StreamMessage call with a fixed digest,
// standing in for the LLM backend's summarization response.
type digestTransport struct{ digest string }

func (d digestTransport) StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) transport.StreamResult {
	onChunk(d.digest)
	return transport.StreamResult{Status: "ok"}
}
func (digestTransport) Abort(ctx context.Context) {}

func newTestChatConn(t *testing.T, digest string) *chatConn {
	t.Helper()
	s := newTestServer(t)
	s.ctrl = loop.New(s.registry, digestTransport{digest: digest}, s.perm, loop.Config{MaxIterations: 10, MaxExploration: 5}, s.log)
	sess, err := s.store.Create("default")
	if err != nil {
		t.Fatal(err)
	}
	return &chatConn{srv: s, sess: sess}
}

func TestMaybeCompact_NoopBelowThreshold(t *testing.T) {
	cc := newTestChatConn(t, "digest")
	cc.srv.cfg.Compaction.TokenThreshold = 1_000_000
	cc.srv.cfg.Compaction.KeepLastTurns = 4
	cc.history = []loop.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	cc.maybeCompact(context.Background())

	if len(cc.history) != 2 {
		t.Errorf("expected history untouched below threshold, got %d messages", len(cc.history))
	}
}

func TestMaybeCompact_CollapsesOldHistory(t *testing.T) {
	cc := newTestChatConn(t, "files touched: a.go; decided to use websockets")
	cc.srv.cfg.Compaction.TokenThreshold = 10
	cc.srv.cfg.Compaction.KeepLastTurns = 2

	long := strings.Repeat("word ", 200)
	cc.history = []loop.Message{
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: "most recent question"},
		{Role: "assistant", Content: "most recent answer"},
	}

	cc.maybeCompact(context.Background())

	if len(cc.history) != 3 {
		t.Fatalf("expected [digest, last 2 kept] = 3 messages, got %d: %+v", len(cc.history), cc.history)
	}
	if !strings.HasPrefix(cc.history[0].Content, compactionSummaryPrefix) {
		t.Errorf("expected first message to carry the compaction prefix, got %q", cc.history[0].Content)
	}
	if cc.history[1].Content != "most recent question" || cc.history[2].Content != "most recent answer" {
		t.Errorf("expected the last KeepLastTurns messages preserved verbatim, got %+v", cc.history[1:])
	}
}

func TestMaybeCompact_FoldsExistingDigest(t *testing.T) {
	cc := newTestChatConn(t, "round two digest")
	cc.srv.cfg.Compaction.TokenThreshold = 10
	cc.srv.cfg.Compaction.KeepLastTurns = 1

	long := strings.Repeat("word ", 200)
	cc.history = []loop.Message{
		{Role: "tool", Content: compactionSummaryPrefix + "round one digest"},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long},
		{Role: "user", Content: "latest"},
	}

	cc.maybeCompact(context.Background())

	if len(cc.history) != 2 {
		t.Fatalf("expected [combined digest, latest] = 2 messages, got %d: %+v", len(cc.history), cc.history)
	}
	if !strings.Contains(cc.history[0].Content, "round one digest") || !strings.Contains(cc.history[0].Content, "round two digest") {
		t.Errorf("expected both digests folded together, got %q", cc.history[0].Content)
	}
}
