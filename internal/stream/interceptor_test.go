package stream

import "testing"

func TestInterceptor_PlainProseNoTool(t *testing.T) {
	var out string
	ic := New(func(s string) { out += s })
	ic.Feed("Hello, ")
	ic.Feed("world.")
	ic.Flush()
	if ic.Done() {
		t.Fatal("should not detect a tool call in plain prose")
	}
	if out != "Hello, world." {
		t.Errorf("expected full prose forwarded, got %q", out)
	}
}

func TestInterceptor_ParsesToolCall(t *testing.T) {
	var out string
	ic := New(func(s string) { out += s })
	chunks := []string{
		"Let me check that file.\n",
		"[TOOL:read_file]\n```json\n",
		`{"file_path": "main.go"}`,
		"\n```\n",
	}
	var done bool
	for _, c := range chunks {
		if ic.Feed(c) {
			done = true
			break
		}
	}
	if !done {
		t.Fatal("expected tool call to be detected")
	}
	res := ic.Result()
	if res == nil {
		t.Fatal("expected non-nil result")
	}
	if res.Name != "read_file" {
		t.Errorf("expected tool name read_file, got %q", res.Name)
	}
	if res.Input["file_path"] != "main.go" {
		t.Errorf("expected file_path main.go, got %v", res.Input["file_path"])
	}
	if out != "Let me check that file.\n" {
		t.Errorf("expected only preceding prose forwarded, got %q", out)
	}
}

func TestInterceptor_SentinelSplitAcrossFeeds(t *testing.T) {
	var out string
	ic := New(func(s string) { out += s })
	ic.Feed("prefix [TOO")
	if ic.Done() {
		t.Fatal("should not be done yet")
	}
	ic.Feed("L:bash]\n```json\n{\"command\":\"ls\"}\n```\n")
	if !ic.Done() {
		t.Fatal("expected tool call detected after sentinel completes across feeds")
	}
	if out != "prefix " {
		t.Errorf("expected 'prefix ' forwarded without leaking partial sentinel, got %q", out)
	}
}

func TestInterceptor_MalformedJSONDegradesToProse(t *testing.T) {
	var out string
	ic := New(func(s string) { out += s })
	ic.Feed("[TOOL:bash]\n```json\n{not valid json\n```\n")
	if ic.Done() {
		t.Fatal("malformed JSON should not produce a tool call")
	}
	if out == "" {
		t.Error("expected degraded content to be flushed as prose")
	}
}

func TestInterceptor_AltToolSyntax(t *testing.T) {
	ic := New(func(string) {})
	ic.Feed("```tool:grep {\"pattern\": \"foo\"}\n```\n")
	if !ic.Done() {
		t.Fatal("expected alt-syntax tool call to be detected")
	}
	if ic.Result().Name != "grep" {
		t.Errorf("expected tool name grep, got %q", ic.Result().Name)
	}
}
