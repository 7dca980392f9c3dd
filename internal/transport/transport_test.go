package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestIsContextOverflow(t *testing.T) {
	if !IsContextOverflow("Error: maximum context length exceeded") {
		t.Error("expected overflow detection")
	}
	if IsContextOverflow("everything is fine") {
		t.Error("unexpected overflow detection on normal message")
	}
}

func TestClassifyError_RateLimit(t *testing.T) {
	ce := ClassifyError(errString("rate_limit hit"), 429, "")
	if ce.Type != ErrorTypeRateLimit || !ce.IsRetryable {
		t.Errorf("expected retryable rate_limit classification, got %+v", ce)
	}
}

func TestClassifyError_Auth(t *testing.T) {
	ce := ClassifyError(errString("denied"), 401, "")
	if ce.Type != ErrorTypeAuth || ce.IsRetryable {
		t.Errorf("expected non-retryable auth classification, got %+v", ce)
	}
}

func TestComputeRetryDelay_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffFactor: 1.0, MaxAttempts: 5}
	d := ComputeRetryDelay(10, cfg)
	if d != cfg.MaxDelay {
		t.Errorf("expected delay capped at %v, got %v", cfg.MaxDelay, d)
	}
}

func TestExtractChunk_Shapes(t *testing.T) {
	cases := map[string]string{
		`{"content":"hello"}`:                              "hello",
		`{"text":"world"}`:                                 "world",
		`{"delta":{"content":"x"}}`:                         "x",
		`{"choices":[{"delta":{"content":"y"}}]}`:           "y",
		`not json at all`:                                  "not json at all",
	}
	for payload, want := range cases {
		if got := extractChunk(payload); got != want {
			t.Errorf("extractChunk(%q) = %q, want %q", payload, got, want)
		}
	}
}

func TestStreamMessage_ParsesSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, chunk := range []string{"hel", "lo"} {
			b, _ := json.Marshal(map[string]string{"content": chunk})
			w.Write([]byte("data: " + string(b) + "\n\n"))
			if flusher != nil {
				flusher.Flush()
			}
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	var got strings.Builder
	result := c.StreamMessage(context.Background(), "hi", "", func(chunk string) { got.WriteString(chunk) })
	if result.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", result)
	}
	if got.String() != "hello" {
		t.Errorf("expected accumulated 'hello', got %q", got.String())
	}
}

func TestHealth_FallsBackToRoot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, nil)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("expected health fallback to succeed, got %v", err)
	}
}

type errString string

func (e errString) Error() string { return string(e) }
