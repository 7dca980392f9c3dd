// Package loop drives a single user turn through the agentic tool-use
// cycle: stream a response, detect an embedded tool call via
// internal/stream, classify and execute (or suspend) it, append an
// observation, and iterate. Adapted from internal/session's PromptEngine,
// replacing its native tool_use parsing with internal/stream.Interceptor
// and its synchronous permission callback with an explicit suspend/resume
// ParkedLoopState, since a WebSocket IDE can't block a goroutine on a
// human's answer the way a TUI's blocking prompt can.
package loop

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/maeum-labs/maeum-ide/internal/logging"
	"github.com/maeum-labs/maeum-ide/internal/permission"
	"github.com/maeum-labs/maeum-ide/internal/stream"
	"github.com/maeum-labs/maeum-ide/internal/tool"
	"github.com/maeum-labs/maeum-ide/internal/transport"
	"go.uber.org/zap"
)

// exploreToolBudgeted lists the readonly/exploration tool names that count against
// the per-turn exploration budget.
var exploreToolBudgeted = map[string]bool{
	"read_file": true, "list_dir": true, "search_code": true, "grep": true,
	"glob": true, "find_symbol": true, "find_references": true,
	"find_definition": true, "git_status": true, "git_diff": true,
	"git_log": true, "project_structure": true, "find_files_by_content": true,
	"analyze_code": true, "explain_code": true, "read_project_memory": true,
}

// Transport is the subset of transport.Client/SmartClient the loop depends on.
type Transport interface {
	StreamMessage(ctx context.Context, message, systemPrompt string, onChunk func(string)) transport.StreamResult
	Abort(ctx context.Context)
}

// Message is one turn of conversation history.
type Message struct {
	Role    string // "user" | "assistant" | "tool"
	Content string
}

// Event is emitted to the UI over the course of a turn.
type Event struct {
	Type             string // token|tool_detected|tool_executing|tool_result|tool_confirm_request|waiting_confirmation|done|error|cancelled|system
	Content          string
	ToolName         string
	ConfirmationID   string
	Iteration        int
	ExplorationCount int
	DiffData         *tool.DiffData
	DiffDataList     []*tool.DiffData
	IsError          bool
}

// ParkedLoopState captures everything needed to resume a suspended turn
// after the UI delivers a confirmation or an ask_user answer.
type ParkedLoopState struct {
	SessionID        string
	ToolName         string
	Input            map[string]interface{}
	History          []Message
	SystemPrompt     string
	Iteration        int
	ExplorationCount int
	RunningResponse  string
	CreatedAt        time.Time
}

// Config controls a Controller's budgets.
type Config struct {
	MaxIterations  int
	MaxExploration int
}

func defaultConfig() Config {
	return Config{MaxIterations: 99, MaxExploration: 20}
}

// Controller drives turns for a single workspace session.
type Controller struct {
	registry  *tool.Registry
	transport Transport
	perm      *permission.Engine
	cfg       Config
	log       *zap.Logger

	mu     sync.Mutex
	parked map[string]*ParkedLoopState
}

// New constructs a Controller.
func New(registry *tool.Registry, tr Transport, perm *permission.Engine, cfg Config, log *zap.Logger) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg = defaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		registry:  registry,
		transport: tr,
		perm:      perm,
		cfg:       cfg,
		log:       log,
		parked:    make(map[string]*ParkedLoopState),
	}
}

func newConfirmationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "confirm_" + hex.EncodeToString(b)
}

// Run drives a turn starting from history (with the latest user message
// already appended) until the model produces a terminal message, a tool
// suspends, the turn is cancelled, or max_iterations is hit.
func (c *Controller) Run(ctx context.Context, tc *tool.ToolContext, sessionID, systemPrompt string, history []Message, emit func(Event)) {
	c.runLoop(ctx, tc, sessionID, systemPrompt, history, 0, 0, "", emit)
}

// Resume re-enters the loop from a parked state after the UI supplies a
// confirmation decision or an ask_user answer.
func (c *Controller) Resume(ctx context.Context, tc *tool.ToolContext, confirmationID string, approved bool, answer string, emit func(Event)) {
	c.mu.Lock()
	state, ok := c.parked[confirmationID]
	if ok {
		delete(c.parked, confirmationID)
	}
	c.mu.Unlock()
	if !ok {
		emit(Event{Type: "error", Content: fmt.Sprintf("unknown confirmation id: %s", confirmationID), IsError: true})
		return
	}

	if !approved {
		emit(Event{Type: "done", Content: fmt.Sprintf("rejected %s", state.ToolName)})
		return
	}

	input := state.Input
	if state.ToolName == "ask_user" {
		if input == nil {
			input = map[string]interface{}{}
		}
		input["_answer"] = answer
	}

	result, err := c.execute(ctx, tc, state.ToolName, input, "destructive")
	if err != nil {
		emit(Event{Type: "error", Content: err.Error(), IsError: true})
		return
	}
	emit(toolResultEvent(result))

	observation := renderObservation(state.ToolName, result)
	history := append(state.History, Message{Role: "tool", Content: observation})
	c.runLoop(ctx, tc, state.SessionID, state.SystemPrompt, history, state.Iteration+1, state.ExplorationCount, state.RunningResponse, emit)
}

func (c *Controller) runLoop(ctx context.Context, tc *tool.ToolContext, sessionID, systemPrompt string, history []Message, iteration, explorationCount int, runningResponse string, emit func(Event)) {
	for {
		if ctx.Err() != nil {
			emit(Event{Type: "cancelled"})
			return
		}
		if iteration >= c.cfg.MaxIterations {
			emit(Event{Type: "done", Content: runningResponse})
			return
		}

		logging.Iteration(c.log, sessionID, iteration, explorationCount)

		message := renderPrompt(history)
		ic := stream.New(func(text string) {
			runningResponse += text
			emit(Event{Type: "token", Content: text, Iteration: iteration})
		})

		streamCtx, cancelStream := context.WithCancel(ctx)
		result := c.transport.StreamMessage(streamCtx, message, systemPrompt, func(chunk string) {
			if ic.Feed(chunk) {
				cancelStream()
			}
		})
		cancelStream()

		if result.Status == "error" {
			emit(Event{Type: "error", Content: result.Err.Error(), IsError: true})
			return
		}
		if !ic.Done() {
			ic.Flush()
		}

		call := ic.Result()
		if call == nil {
			emit(Event{Type: "done", Content: runningResponse})
			return
		}

		emit(Event{Type: "tool_detected", ToolName: call.Name, Iteration: iteration})

		class := c.registry.Classify(call.Name)
		switch class {
		case tool.ClassReadonly:
			if exploreToolBudgeted[call.Name] {
				explorationCount++
				if explorationCount > c.cfg.MaxExploration {
					note := fmt.Sprintf("Exploration budget of %d read-only calls exhausted for this turn; synthesize an answer from what has already been gathered or proceed with a concrete change.", c.cfg.MaxExploration)
					history = append(history, Message{Role: "assistant", Content: runningResponse}, Message{Role: "tool", Content: note})
					iteration++
					runningResponse = ""
					continue
				}
			}
			c.transport.Abort(ctx)
			emit(Event{Type: "tool_executing", ToolName: call.Name})
			res, err := c.execute(ctx, tc, call.Name, call.Input, string(tool.ClassReadonly))
			if err != nil {
				emit(Event{Type: "error", Content: err.Error(), IsError: true})
				return
			}
			emit(toolResultEvent(res))
			history = append(history, Message{Role: "assistant", Content: runningResponse}, Message{Role: "tool", Content: renderObservation(call.Name, res)})
			iteration++
			runningResponse = ""
			continue

		case tool.ClassInteractive:
			c.transport.Abort(ctx)
			confID := newConfirmationID()
			c.mu.Lock()
			c.parked[confID] = &ParkedLoopState{
				SessionID: sessionID, ToolName: call.Name, Input: call.Input,
				History: append(history, Message{Role: "assistant", Content: runningResponse}),
				SystemPrompt: systemPrompt, Iteration: iteration, ExplorationCount: explorationCount,
				RunningResponse: "", CreatedAt: time.Now(),
			}
			c.mu.Unlock()
			question, _ := call.Input["question"].(string)
			emit(Event{Type: "waiting_confirmation", ToolName: call.Name, ConfirmationID: confID, Content: question})
			return

		default: // ClassDestructive, and anything unrecognized fails closed here too
			c.transport.Abort(ctx)
			if c.autoAllowed(call.Name, call.Input, tc) {
				emit(Event{Type: "tool_executing", ToolName: call.Name})
				res, err := c.execute(ctx, tc, call.Name, call.Input, string(tool.ClassDestructive))
				if err != nil {
					emit(Event{Type: "error", Content: err.Error(), IsError: true})
					return
				}
				emit(toolResultEvent(res))
				history = append(history, Message{Role: "assistant", Content: runningResponse}, Message{Role: "tool", Content: renderObservation(call.Name, res)})
				iteration++
				runningResponse = ""
				continue
			}

			confID := newConfirmationID()
			c.mu.Lock()
			c.parked[confID] = &ParkedLoopState{
				SessionID: sessionID, ToolName: call.Name, Input: call.Input,
				History: append(history, Message{Role: "assistant", Content: runningResponse}),
				SystemPrompt: systemPrompt, Iteration: iteration, ExplorationCount: explorationCount,
				RunningResponse: "", CreatedAt: time.Now(),
			}
			c.mu.Unlock()
			emit(Event{Type: "tool_confirm_request", ToolName: call.Name, ConfirmationID: confID})
			return
		}
	}
}

// execute runs a tool through the registry, timing the call and emitting a
// structured tool.execute log entry regardless of outcome.
func (c *Controller) execute(ctx context.Context, tc *tool.ToolContext, name string, input map[string]interface{}, classification string) (*tool.ToolResult, error) {
	start := time.Now()
	res, err := c.registry.Execute(ctx, tc, name, input)
	success := err == nil && (res == nil || !res.IsError)
	logging.ToolExecution(c.log, name, classification, success, time.Since(start).Milliseconds())
	return res, err
}

// autoAllowed consults the permission engine (when wired) for a destructive
// call that might already be covered by an allow rule (e.g. bash safe-command
// detection, or a path glob the user previously approved), letting the loop
// skip a redundant confirmation round-trip.
func (c *Controller) autoAllowed(toolName string, input map[string]interface{}, tc *tool.ToolContext) bool {
	if c.perm == nil {
		return false
	}
	action, path := permissionRequestFor(toolName, input)
	if action == "" {
		return false
	}
	resp, err := c.perm.Check(context.Background(), &permission.Request{Action: action, Path: path})
	if err != nil || resp == nil {
		return false
	}
	return resp.Allowed
}

func permissionRequestFor(toolName string, input map[string]interface{}) (permission.Action, string) {
	switch toolName {
	case "bash":
		cmd, _ := input["command"].(string)
		return permission.ActionBash, cmd
	case "write_file":
		p, _ := input["file_path"].(string)
		return permission.ActionWrite, p
	case "edit_file":
		p, _ := input["file_path"].(string)
		return permission.ActionEdit, p
	case "multi_edit":
		p, _ := input["path"].(string)
		return permission.ActionEdit, p
	case "delete_file":
		p, _ := input["path"].(string)
		return permission.ActionDelete, p
	default:
		return "", ""
	}
}

func toolResultEvent(res *tool.ToolResult) Event {
	return Event{
		Type:         "tool_result",
		Content:      res.Output,
		IsError:      res.IsError,
		DiffData:     res.DiffData,
		DiffDataList: res.DiffDataList,
	}
}

// renderObservation formats a tool result as the synthetic "tool" turn
// appended to history, truncated to a reasonable bound so one large tool
// output doesn't dominate every subsequent prompt.
const maxObservationChars = 8000

func renderObservation(toolName string, res *tool.ToolResult) string {
	out := res.Output
	if len(out) > maxObservationChars {
		out = out[:maxObservationChars] + fmt.Sprintf("\n... [truncated %d more characters]", len(out)-maxObservationChars)
	}
	status := "ok"
	if res.IsError {
		status = "error"
	}
	return fmt.Sprintf("Result of %s (%s):\n%s\n\nContinue the task. If you're done, respond with a final message and no tool call.", toolName, status, out)
}

// renderPrompt flattens conversation history into the single message string
// the transport sends; system_prompt travels separately.
func renderPrompt(history []Message) string {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(strings.ToUpper(m.Role[:1]))
		sb.WriteString(m.Role[1:])
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// CompactionSystemPrompt is the fixed system prompt used for the one-shot
// summarization request a Controller issues when a caller decides history
// has grown past its token budget.
const CompactionSystemPrompt = "You summarize coding-assistant conversation history. Produce a 5-10 line digest covering files touched, decisions made, and unresolved issues, written for another instance of yourself that will pick the task back up with no other context. Be terse."

// Summarize asks the backend for a short digest of history. It drains a
// non-streaming request through the same StreamMessage the turn loop uses
// rather than a second transport method, since Transport only exposes
// StreamMessage/Abort; callers outside a turn (e.g. a compaction trigger at
// the top of a new turn) use this to shrink history before calling Run.
func (c *Controller) Summarize(ctx context.Context, history []Message) (string, error) {
	message := renderPrompt(history) + "\nUSER: Summarize the conversation above in 5-10 lines.\n"
	var sb strings.Builder
	result := c.transport.StreamMessage(ctx, message, CompactionSystemPrompt, func(chunk string) {
		sb.WriteString(chunk)
	})
	if result.Status == "error" {
		return "", result.Err
	}
	return sb.String(), nil
}

// EstimateTokens approximates token count, weighting Korean characters
// (which tokenize less efficiently) more heavily than other characters.
func EstimateTokens(text string) int {
	var korean, other float64
	for _, r := range text {
		if (r >= 0xAC00 && r <= 0xD7A3) || (r >= 0x1100 && r <= 0x11FF) {
			korean++
		} else {
			other++
		}
	}
	return int(math.Ceil(1.5*korean + 0.25*other))
}
