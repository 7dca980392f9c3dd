package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TodoItem is a single persisted task entry.
type TodoItem struct {
	Content  string `json:"content"`
	Status   string `json:"status"`   // pending | in_progress | completed
	Priority string `json:"priority"` // high | medium | low
}

func todosPath(tc *ToolContext) string {
	return filepath.Join(tc.WorkDir, ".maeum_todos.json")
}

func loadTodos(tc *ToolContext) ([]TodoItem, error) {
	data, err := os.ReadFile(todosPath(tc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var todos []TodoItem
	if err := json.Unmarshal(data, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func saveTodos(tc *ToolContext, todos []TodoItem) error {
	data, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(todosPath(tc), data, 0644)
}

// TodoWriteTool replaces the persisted todo list for the workspace.
func TodoWriteTool() *ToolDef {
	return &ToolDef{
		Name:           "todo_write",
		Classification: ClassReadonly,
		Description:    "Replace the persisted task list for this workspace (.maeum_todos.json).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"todos": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"content":  map[string]interface{}{"type": "string"},
							"status":   map[string]interface{}{"type": "string", "enum": []string{"pending", "in_progress", "completed"}},
							"priority": map[string]interface{}{"type": "string", "enum": []string{"high", "medium", "low"}},
						},
						"required": []string{"content", "status"},
					},
				},
			},
			"required": []string{"todos"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			raw, ok := input["todos"]
			if !ok {
				return &ToolResult{Output: "Error: todos is required", IsError: true}, nil
			}
			b, _ := json.Marshal(raw)
			var todos []TodoItem
			if err := json.Unmarshal(b, &todos); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error parsing todos: %v", err), IsError: true}, nil
			}
			for i := range todos {
				if todos[i].Priority == "" {
					todos[i].Priority = "medium"
				}
			}
			if err := saveTodos(tc, todos); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error saving todos: %v", err), IsError: true}, nil
			}

			stats := map[string]int{}
			for _, t := range todos {
				stats[t.Status]++
			}
			return &ToolResult{Output: fmt.Sprintf("Saved %d todos (pending: %d, in_progress: %d, completed: %d)",
				len(todos), stats["pending"], stats["in_progress"], stats["completed"])}, nil
		},
	}
}

// TodoReadTool returns the current persisted todo list.
func TodoReadTool() *ToolDef {
	return &ToolDef{
		Name:           "todo_read",
		Classification: ClassReadonly,
		Description:    "Read the persisted task list for this workspace.",
		Parameters:     map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			todos, err := loadTodos(tc)
			if err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error reading todos: %v", err), IsError: true}, nil
			}
			if len(todos) == 0 {
				return &ToolResult{Output: "No todos"}, nil
			}
			icons := map[string]string{"pending": "○", "in_progress": "◐", "completed": "●"}
			var sb strings.Builder
			for _, t := range todos {
				sb.WriteString(fmt.Sprintf("%s [%s] %s\n", icons[t.Status], t.Priority, t.Content))
			}
			return &ToolResult{Output: sb.String()}, nil
		},
	}
}

// PlanStep is one step of a persisted plan.
type PlanStep struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

// Plan is the single persisted planning object for the workspace.
type Plan struct {
	Task            string     `json:"task"`
	Status          string     `json:"status"` // drafting | active | completed | abandoned
	FilesToExamine  []string   `json:"files_to_examine"`
	Considerations  []string   `json:"considerations"`
	CreatedAt       string     `json:"created_at"`
	Steps           []PlanStep `json:"steps"`
}

func planPath(tc *ToolContext) string {
	return filepath.Join(tc.WorkDir, ".maeum_plan.json")
}

// PlanTaskTool creates or updates the workspace's single persisted plan
// object, a durable artifact the IDE's sidebar can render independent of
// the loop's current permission mode.
func PlanTaskTool() *ToolDef {
	return &ToolDef{
		Name:           "plan_task",
		Classification: ClassReadonly,
		Description:    "Create or update the persisted plan for the current task (.maeum_plan.json).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task":             map[string]interface{}{"type": "string", "description": "One-line description of the task being planned"},
				"status":           map[string]interface{}{"type": "string", "enum": []string{"drafting", "active", "completed", "abandoned"}},
				"files_to_examine": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"considerations":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"steps": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"description": map[string]interface{}{"type": "string"},
							"done":        map[string]interface{}{"type": "boolean"},
						},
						"required": []string{"description"},
					},
				},
			},
			"required": []string{"task", "status"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			task, _ := input["task"].(string)
			status, _ := input["status"].(string)
			if task == "" || status == "" {
				return &ToolResult{Output: "Error: task and status are required", IsError: true}, nil
			}

			plan := Plan{
				Task:      task,
				Status:    status,
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			if existing, err := os.ReadFile(planPath(tc)); err == nil {
				var prev Plan
				if json.Unmarshal(existing, &prev) == nil && prev.CreatedAt != "" {
					plan.CreatedAt = prev.CreatedAt
				}
			}
			if raw, ok := input["files_to_examine"].([]interface{}); ok {
				plan.FilesToExamine = interfaceSliceToStringSlice(raw)
			}
			if raw, ok := input["considerations"].([]interface{}); ok {
				plan.Considerations = interfaceSliceToStringSlice(raw)
			}
			if raw, ok := input["steps"]; ok {
				b, _ := json.Marshal(raw)
				json.Unmarshal(b, &plan.Steps)
			}

			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			if err := os.WriteFile(planPath(tc), data, 0644); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error saving plan: %v", err), IsError: true}, nil
			}
			return &ToolResult{Output: fmt.Sprintf("Plan saved: %s (%s, %d steps)", task, status, len(plan.Steps))}, nil
		},
	}
}

// maeumSections are the fixed top-level headings of MAEUM.md.
var maeumSections = []string{"Architecture", "Patterns", "Rules", "Context", "Decisions"}

func maeumPath(tc *ToolContext) string {
	return filepath.Join(tc.WorkDir, "MAEUM.md")
}

func ensureMaeumSkeleton() string {
	var sb strings.Builder
	for _, s := range maeumSections {
		sb.WriteString(fmt.Sprintf("## %s\n\n", s))
	}
	return sb.String()
}

// ReadProjectMemoryTool returns the workspace's MAEUM.md, creating the
// section skeleton if the file does not exist yet.
func ReadProjectMemoryTool() *ToolDef {
	return &ToolDef{
		Name:           "read_project_memory",
		Classification: ClassReadonly,
		Description:    "Read the persisted project memory file (MAEUM.md): architecture notes, patterns, rules, context, decisions.",
		Parameters:     map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			data, err := os.ReadFile(maeumPath(tc))
			if err != nil {
				if os.IsNotExist(err) {
					return &ToolResult{Output: ensureMaeumSkeleton()}, nil
				}
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: string(data)}, nil
		},
	}
}

// UpdateProjectMemoryTool appends a timestamped bullet to one of MAEUM.md's
// fixed sections, creating the file and its section skeleton on first use.
func UpdateProjectMemoryTool() *ToolDef {
	return &ToolDef{
		Name:           "update_project_memory",
		Classification: ClassDestructive,
		Description:    "Append a timestamped note to a section of MAEUM.md (Architecture, Patterns, Rules, Context, Decisions).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"section": map[string]interface{}{"type": "string", "enum": []string{"Architecture", "Patterns", "Rules", "Context", "Decisions"}},
				"note":    map[string]interface{}{"type": "string", "description": "The note to record"},
			},
			"required": []string{"section", "note"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			section, _ := input["section"].(string)
			note, _ := input["note"].(string)
			if section == "" || note == "" {
				return &ToolResult{Output: "Error: section and note are required", IsError: true}, nil
			}
			valid := false
			for _, s := range maeumSections {
				if s == section {
					valid = true
					break
				}
			}
			if !valid {
				return &ToolResult{Output: fmt.Sprintf("Error: unknown section %q", section), IsError: true}, nil
			}

			content := ensureMaeumSkeleton()
			if data, err := os.ReadFile(maeumPath(tc)); err == nil {
				content = string(data)
			}

			bullet := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("2006-01-02 15:04"), note)
			header := "## " + section
			idx := strings.Index(content, header)
			if idx == -1 {
				content += "\n" + header + "\n\n- " + bullet + "\n"
			} else {
				rest := content[idx+len(header):]
				nextIdx := strings.Index(rest, "\n## ")
				insertAt := idx + len(header) + len(rest)
				if nextIdx != -1 {
					insertAt = idx + len(header) + nextIdx
				}
				content = content[:insertAt] + "\n- " + bullet + content[insertAt:]
			}

			if err := os.WriteFile(maeumPath(tc), []byte(content), 0644); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error saving memory: %v", err), IsError: true}, nil
			}
			return &ToolResult{Output: fmt.Sprintf("Recorded note under %s", section)}, nil
		},
	}
}
