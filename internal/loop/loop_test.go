package loop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/maeum-labs/maeum-ide/internal/tool"
	"github.com/maeum-labs/maeum-ide/internal/transport"
)

type scriptedTransport struct {
	responses []string
	calls     int
}

func (s *scriptedTransport) StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) transport.StreamResult {
	if s.calls >= len(s.responses) {
		onChunk("done, no more tool calls")
		return transport.StreamResult{Status: "ok"}
	}
	resp := s.responses[s.calls]
	s.calls++
	onChunk(resp)
	return transport.StreamResult{Status: "ok"}
}

func (s *scriptedTransport) Abort(ctx context.Context) {}

func newTestRegistry() *tool.Registry {
	return tool.GetRegistry()
}

func TestRun_TerminalMessageNoToolCall(t *testing.T) {
	tr := &scriptedTransport{responses: []string{"Just a plain answer, no tools needed."}}
	c := New(newTestRegistry(), tr, nil, Config{}, nil)

	var events []Event
	c.Run(context.Background(), &tool.ToolContext{WorkDir: t.TempDir()}, "s1", "system", []Message{{Role: "user", Content: "hi"}}, func(e Event) {
		events = append(events, e)
	})

	if len(events) == 0 || events[len(events)-1].Type != "done" {
		t.Fatalf("expected a terminal done event, got %+v", events)
	}
}

func TestRun_ReadonlyToolExecutesInline(t *testing.T) {
	dir := t.TempDir()
	tr := &scriptedTransport{responses: []string{
		"[TOOL:list_dir]\n```json\n{\"path\": \".\"}\n```\n",
		"All done looking around.",
	}}
	c := New(newTestRegistry(), tr, nil, Config{}, nil)

	var sawExecuting, sawDone bool
	c.Run(context.Background(), &tool.ToolContext{WorkDir: dir}, "s1", "system", []Message{{Role: "user", Content: "list files"}}, func(e Event) {
		if e.Type == "tool_executing" && e.ToolName == "list_dir" {
			sawExecuting = true
		}
		if e.Type == "done" {
			sawDone = true
		}
	})

	if !sawExecuting {
		t.Error("expected list_dir to execute inline without suspension")
	}
	if !sawDone {
		t.Error("expected the loop to terminate after the model's final message")
	}
}

func TestRun_DestructiveToolSuspendsForConfirmation(t *testing.T) {
	dir := t.TempDir()
	tr := &scriptedTransport{responses: []string{
		"[TOOL:write_file]\n```json\n{\"file_path\": \"a.txt\", \"content\": \"hi\"}\n```\n",
	}}
	c := New(newTestRegistry(), tr, nil, Config{}, nil)

	var confirmID string
	c.Run(context.Background(), &tool.ToolContext{WorkDir: dir}, "s1", "system", []Message{{Role: "user", Content: "write a.txt"}}, func(e Event) {
		if e.Type == "tool_confirm_request" {
			confirmID = e.ConfirmationID
		}
	})

	if confirmID == "" {
		t.Fatal("expected a tool_confirm_request for a destructive tool")
	}

	var sawResult bool
	var resultErr bool
	var resultContent string
	c.Resume(context.Background(), &tool.ToolContext{WorkDir: dir}, confirmID, true, "", func(e Event) {
		if e.Type == "tool_result" {
			sawResult = true
			resultErr = e.IsError
			resultContent = e.Content
		}
	})
	if !sawResult {
		t.Error("expected resuming an approved confirmation to execute the tool")
	}
	if resultErr {
		t.Errorf("expected write_file to execute successfully, got an error result: %s", resultContent)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Errorf("expected a.txt to be written to disk: %v", err)
	}
}

func TestExplorationBudget_Enforced(t *testing.T) {
	dir := t.TempDir()
	var responses []string
	for i := 0; i < 5; i++ {
		responses = append(responses, "[TOOL:list_dir]\n```json\n{\"path\": \".\"}\n```\n")
	}
	tr := &scriptedTransport{responses: responses}
	c := New(newTestRegistry(), tr, nil, Config{MaxIterations: 99, MaxExploration: 2}, nil)

	executions := 0
	c.Run(context.Background(), &tool.ToolContext{WorkDir: dir}, "s1", "system", []Message{{Role: "user", Content: "explore"}}, func(e Event) {
		if e.Type == "tool_executing" && e.ToolName == "list_dir" {
			executions++
		}
	})
	if executions > 2 {
		t.Errorf("expected at most MaxExploration=2 list_dir executions, got %d", executions)
	}
}

func TestEstimateTokens_WeightsKorean(t *testing.T) {
	ascii := EstimateTokens("aaaa")
	korean := EstimateTokens("가가가가")
	if korean <= ascii {
		t.Errorf("expected Korean text to estimate higher token weight: korean=%d ascii=%d", korean, ascii)
	}
}

func TestSummarize_ReturnsDigest(t *testing.T) {
	tr := &scriptedTransport{responses: []string{"files touched: a.go, b.go; decided to use gorilla/websocket"}}
	c := New(newTestRegistry(), tr, nil, Config{}, nil)

	digest, err := c.Summarize(context.Background(), []Message{
		{Role: "user", Content: "wire up the websocket handler"},
		{Role: "assistant", Content: "done"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if digest == "" {
		t.Error("expected a non-empty digest")
	}
}

func TestSummarize_PropagatesTransportError(t *testing.T) {
	tr := &erroringTransport{}
	c := New(newTestRegistry(), tr, nil, Config{}, nil)

	if _, err := c.Summarize(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Error("expected an error when the transport reports one")
	}
}

type erroringTransport struct{}

func (erroringTransport) StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) transport.StreamResult {
	return transport.StreamResult{Status: "error", Err: errors.New("backend unreachable")}
}
func (erroringTransport) Abort(ctx context.Context) {}
