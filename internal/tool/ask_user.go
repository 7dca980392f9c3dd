package tool

import (
	"context"
	"fmt"
	"strings"
)

// AskUserTool asks the human a question and waits for an answer. It is
// classified interactive: the loop controller never calls Execute directly on
// first encounter — it suspends under a ParkedLoopState, surfaces the
// question to the IDE over the websocket, and resumes by re-invoking Execute
// with the answer already present in input["_answer"], the same process-level
// suspend/resume the rest of the loop uses for confirmations rather than a
// synchronous channel-wait.
func AskUserTool() *ToolDef {
	return &ToolDef{
		Name:           "ask_user",
		Classification: ClassInteractive,
		Description:    "Ask the user a clarifying question. Suspends the loop until answered.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"question": map[string]interface{}{"type": "string", "description": "The question to ask"},
				"options":  map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Optional suggested answers"},
				"default":  map[string]interface{}{"type": "string", "description": "Optional default answer if the user doesn't pick an option"},
			},
			"required": []string{"question"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			question, _ := input["question"].(string)
			if question == "" {
				return &ToolResult{Output: "Error: question is required", IsError: true}, nil
			}

			if answer, ok := input["_answer"].(string); ok {
				return &ToolResult{Output: answer}, nil
			}

			// Not yet resumed. A loop controller should never call Execute in
			// this state (it parks instead) — this path only fires for direct
			// callers (tests, a non-loop harness) and degrades to the default.
			if def, ok := input["default"].(string); ok && def != "" {
				return &ToolResult{Output: def}, nil
			}
			var opts []string
			if raw, ok := input["options"].([]interface{}); ok {
				opts = interfaceSliceToStringSlice(raw)
			}
			msg := fmt.Sprintf("waiting for user answer to: %s", question)
			if len(opts) > 0 {
				msg += fmt.Sprintf(" (options: %s)", strings.Join(opts, ", "))
			}
			return &ToolResult{Output: msg, IsError: true}, nil
		},
	}
}
