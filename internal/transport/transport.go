// Package transport speaks to the single configured LLM backend over HTTP,
// adapted from internal/provider's multi-vendor client down to the one
// fixed backend this deployment talks to (no vendor selection, no API-key
// precedence chain — just Transport.BaseURL).
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/maeum-labs/maeum-ide/internal/logging"
	"go.uber.org/zap"
)

// ErrorType classifies a transport failure for retry/backoff decisions.
type ErrorType string

const (
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeAPIError        ErrorType = "api_error"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeAuth            ErrorType = "auth_error"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTimeout         ErrorType = "timeout"
)

// ClassifiedError wraps a backend error with a classification used to decide
// whether LoopController/Transport should retry.
type ClassifiedError struct {
	Type        ErrorType
	Message     string
	StatusCode  int
	IsRetryable bool
	Original    error
}

func (e *ClassifiedError) Error() string { return e.Message }
func (e *ClassifiedError) Unwrap() error { return e.Original }

var overflowPatterns = []*regexp.Regexp{
	regexp.MustCompile(`prompt is too long`),
	regexp.MustCompile(`exceeds the model'?s maximum context`),
	regexp.MustCompile(`content exceeds model token limit`),
	regexp.MustCompile(`maximum context length`),
	regexp.MustCompile(`context_length_exceeded`),
	regexp.MustCompile(`(?i)context.*(?:too long|overflow|exceeded|limit)`),
	regexp.MustCompile(`(?i)token.*(?:limit|exceeded|maximum)`),
}

// IsContextOverflow reports whether a message matches a known
// context-window-exceeded phrasing.
func IsContextOverflow(msg string) bool {
	for _, pat := range overflowPatterns {
		if pat.MatchString(msg) {
			return true
		}
	}
	return false
}

// ClassifyError turns a raw transport error into a ClassifiedError.
func ClassifyError(err error, statusCode int, responseBody string) *ClassifiedError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ClassifiedError); ok {
		return ce
	}
	msg := err.Error()
	if responseBody != "" {
		msg += " " + responseBody
	}
	switch {
	case IsContextOverflow(msg):
		return &ClassifiedError{Type: ErrorTypeContextOverflow, Message: "context window exceeded", StatusCode: statusCode, IsRetryable: false, Original: err}
	case statusCode == 429 || strings.Contains(strings.ToLower(msg), "rate_limit"):
		return &ClassifiedError{Type: ErrorTypeRateLimit, Message: "rate limited by backend, retrying", StatusCode: statusCode, IsRetryable: true, Original: err}
	case statusCode == 401 || statusCode == 403:
		return &ClassifiedError{Type: ErrorTypeAuth, Message: fmt.Sprintf("authentication error (%d)", statusCode), StatusCode: statusCode, IsRetryable: false, Original: err}
	case statusCode == 404:
		return &ClassifiedError{Type: ErrorTypeNotFound, Message: "backend endpoint not found", StatusCode: statusCode, IsRetryable: false, Original: err}
	case statusCode >= 500:
		return &ClassifiedError{Type: ErrorTypeAPIError, Message: fmt.Sprintf("backend server error (%d)", statusCode), StatusCode: statusCode, IsRetryable: true, Original: err}
	case strings.Contains(strings.ToLower(msg), "timeout") || strings.Contains(strings.ToLower(msg), "deadline exceeded"):
		return &ClassifiedError{Type: ErrorTypeTimeout, Message: "request timed out", StatusCode: statusCode, IsRetryable: false, Original: err}
	default:
		return &ClassifiedError{Type: ErrorTypeAPIError, Message: err.Error(), StatusCode: statusCode, IsRetryable: statusCode == 0, Original: err}
	}
}

// RetryConfig controls backoff between retried stream connection attempts.
type RetryConfig struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	MaxAttempts   int
}

// DefaultRetryConfig applies linear backoff for up to 3 attempts on
// connection errors.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{InitialDelay: 1 * time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 1.0, MaxAttempts: 3}
}

// ComputeRetryDelay returns the delay before the next attempt.
func ComputeRetryDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := time.Duration(float64(cfg.InitialDelay) * (1 + cfg.BackoffFactor*float64(attempt-1)))
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}

// StreamResult is the outcome of a completed (possibly aborted) stream call.
type StreamResult struct {
	Status     string // "ok" | "error" | "aborted"
	Content    string
	Elapsed    time.Duration
	TokenCount int
	Err        error
}

// Client is the single-backend ClientTransport.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	streamingDisabled bool
}

// Config controls Client construction.
type Config struct {
	BaseURL             string
	StreamConnectTimeout time.Duration
	StreamIdleTimeout    time.Duration
	MaxRetryAttempts     int
}

// New constructs a Client against baseURL.
func New(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	connectTimeout := cfg.StreamConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: 0}, // streaming: no blanket timeout; StreamIdleTimeout is not applied, so a stalled stream ends only when ctx is cancelled
		log:     log,
	}
}

// Health probes /api/health, falling back to a root GET per §4.7.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 400 {
			return nil
		}
	}

	req2, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp2, err := c.http.Do(req2)
	if err != nil {
		return err
	}
	defer resp2.Body.Close()
	return nil
}

// Abort fires a best-effort POST to /api/extra/abort to ask the backend to
// stop a generation in progress. Issued by LoopController the moment
// StreamInterceptor detects a tool block mid-stream.
func (c *Client) Abort(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/extra/abort", nil)
	if err != nil {
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("abort request failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

type chatRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Stream       bool   `json:"stream"`
}

// StreamMessage posts to /api/chat/stream and parses Server-Sent Events,
// forwarding each decoded chunk to onChunk. Retryable errors retry with
// linear backoff up to DefaultRetryConfig().MaxAttempts; Config.MaxRetryAttempts
// is not consulted. A timeout does not retry.
func (c *Client) StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) StreamResult {
	if c.streamingDisabled {
		return c.generateAsStream(ctx, message, systemPrompt, onChunk)
	}

	start := time.Now()
	cfg := DefaultRetryConfig()
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := c.doStream(ctx, message, systemPrompt, onChunk)
		if err == nil {
			result.Elapsed = time.Since(start)
			return result
		}
		lastErr = err

		classified := ClassifyError(err, 0, "")
		if classified.Type == ErrorTypeTimeout || !classified.IsRetryable {
			return StreamResult{Status: "error", Err: classified, Elapsed: time.Since(start)}
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		delay := ComputeRetryDelay(attempt, cfg)
		logging.RetryAttempt(c.log, attempt, delay.Milliseconds(), classified.Message)
		select {
		case <-ctx.Done():
			return StreamResult{Status: "error", Err: ctx.Err(), Elapsed: time.Since(start)}
		case <-time.After(delay):
		}
	}
	return StreamResult{Status: "error", Err: lastErr, Elapsed: time.Since(start)}
}

func (c *Client) doStream(ctx context.Context, message, systemPrompt string, onChunk func(string)) (StreamResult, error) {
	body, err := json.Marshal(chatRequest{Message: message, SystemPrompt: systemPrompt, Stream: true})
	if err != nil {
		return StreamResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return StreamResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return StreamResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StreamResult{}, ClassifyError(fmt.Errorf("stream request failed"), resp.StatusCode, string(respBody))
	}

	var full strings.Builder
	tokenCount := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}
		chunk := extractChunk(payload)
		if chunk == "" {
			continue
		}
		full.WriteString(chunk)
		tokenCount++
		onChunk(chunk)
	}
	if err := scanner.Err(); err != nil {
		return StreamResult{}, err
	}
	return StreamResult{Status: "ok", Content: full.String(), TokenCount: tokenCount}, nil
}

// extractChunk decodes one SSE data payload, trying progressively looser
// shapes before falling back to the raw payload text.
func extractChunk(payload string) string {
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return payload
	}
	for _, key := range []string{"content", "text", "response"} {
		if v, ok := generic[key].(string); ok {
			return v
		}
	}
	if delta, ok := generic["delta"].(map[string]interface{}); ok {
		if v, ok := delta["content"].(string); ok {
			return v
		}
	}
	if choices, ok := generic["choices"].([]interface{}); ok && len(choices) > 0 {
		if first, ok := choices[0].(map[string]interface{}); ok {
			if delta, ok := first["delta"].(map[string]interface{}); ok {
				if v, ok := delta["content"].(string); ok {
					return v
				}
			}
		}
	}
	return payload
}

// Generate performs a non-streaming request to /api/chat.
func (c *Client) Generate(ctx context.Context, message, systemPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message, SystemPrompt: systemPrompt, Stream: false})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", ClassifyError(fmt.Errorf("generate request failed"), resp.StatusCode, string(respBody))
	}

	var decoded struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(respBody, &decoded); err == nil && decoded.Content != "" {
		return decoded.Content, nil
	}
	return string(respBody), nil
}

// generateAsStream fakes streaming by performing a single non-streaming
// Generate call and delivering it to onChunk as one chunk, used once
// SmartClient has downgraded for the session.
func (c *Client) generateAsStream(ctx context.Context, message, systemPrompt string, onChunk func(string)) StreamResult {
	start := time.Now()
	text, err := c.Generate(ctx, message, systemPrompt)
	if err != nil {
		return StreamResult{Status: "error", Err: err, Elapsed: time.Since(start)}
	}
	onChunk(text)
	return StreamResult{Status: "ok", Content: text, Elapsed: time.Since(start), TokenCount: approxTokenCount(text)}
}

func approxTokenCount(s string) int {
	return int(math.Ceil(float64(len(s)) / 4))
}

// SmartClient wraps Client with a one-time streaming-capability probe: after
// a streaming failure it downgrades to non-streaming generate-and-deliver
// for the remainder of the session rather than retrying a dead streaming
// endpoint on every turn.
type SmartClient struct {
	*Client
}

// NewSmartClient constructs a SmartClient around cfg.
func NewSmartClient(cfg Config, log *zap.Logger) *SmartClient {
	return &SmartClient{Client: New(cfg, log)}
}

// StreamMessage tries streaming once per SmartClient lifetime; on failure it
// flips streamingDisabled so every subsequent call in this session uses the
// non-streaming fallback instead of retrying a broken stream endpoint.
func (s *SmartClient) StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) StreamResult {
	if s.streamingDisabled {
		return s.generateAsStream(ctx, message, systemPrompt, onChunk)
	}
	result := s.Client.StreamMessage(ctx, message, systemPrompt, onChunk)
	if result.Status == "error" {
		s.log.Info("downgrading to non-streaming for remainder of session", zap.Error(result.Err))
		s.streamingDisabled = true
		return s.generateAsStream(ctx, message, systemPrompt, onChunk)
	}
	return result
}
