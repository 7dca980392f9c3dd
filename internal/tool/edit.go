package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EditTool performs an exact string replacement in a file. Rather than
// falling back to fuzzy matching, a match must occur exactly once (or be
// forced with replace_all) — ambiguous or absent matches fail closed so the
// model is forced to supply more context rather than silently editing the
// wrong occurrence.
func EditTool() *ToolDef {
	return &ToolDef{
		Name:           "edit_file",
		Classification: ClassDestructive,
		Description:    "Exact find-and-replace in a file. old_string must match exactly once unless replace_all is set. Read the file first.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path":   map[string]interface{}{"type": "string", "description": "The file path to edit"},
				"old_string":  map[string]interface{}{"type": "string", "description": "The exact string to find and replace"},
				"new_string":  map[string]interface{}{"type": "string", "description": "The replacement string"},
				"replace_all": map[string]interface{}{"type": "boolean", "description": "Replace all occurrences instead of requiring exactly one. Default: false"},
				"start_line":  map[string]interface{}{"type": "integer", "description": "Range mode: first line to replace (1-based, inclusive). Mutually exclusive with old_string."},
				"end_line":    map[string]interface{}{"type": "integer", "description": "Range mode: last line to replace (1-based, inclusive)."},
				"new_content": map[string]interface{}{"type": "string", "description": "Range mode: content to substitute for the given line range."},
			},
			"required": []string{"file_path"},
		},
		Execute: executeEdit,
	}
}

func executeEdit(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
	path, _ := input["file_path"].(string)
	if path == "" {
		return &ToolResult{Output: "Error: file_path is required", IsError: true}, nil
	}
	if !filepath.IsAbs(path) && tc.WorkDir != "" {
		path = filepath.Join(tc.WorkDir, path)
	}

	if _, hasStart := input["start_line"]; hasStart {
		return executeRangeEdit(path, input)
	}

	oldString, _ := input["old_string"].(string)
	newString, _ := input["new_string"].(string)
	replaceAll, _ := input["replace_all"].(bool)
	if oldString == "" {
		return &ToolResult{Output: "Error: old_string is required (or use start_line/end_line/new_content for range mode)", IsError: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &ToolResult{Output: fmt.Sprintf("Error reading file: %v", err), IsError: true}, nil
	}
	content := string(data)

	count := strings.Count(content, oldString)
	if count == 0 {
		return &ToolResult{Output: fmt.Sprintf("old_string not found in %s", path), IsError: true}, nil
	}
	if count > 1 && !replaceAll {
		return &ToolResult{Output: fmt.Sprintf("old_string matches %d locations in %s; add more context or set replace_all", count, path), IsError: true}, nil
	}

	var newContent string
	if replaceAll {
		newContent = strings.ReplaceAll(content, oldString, newString)
	} else {
		newContent = strings.Replace(content, oldString, newString, 1)
	}

	if err := os.WriteFile(path, []byte(newContent), 0644); err != nil {
		return &ToolResult{Output: fmt.Sprintf("Error writing file: %v", err), IsError: true}, nil
	}

	return &ToolResult{
		Output: fmt.Sprintf("Edited %s (%d replacement%s)", path, count, plural(count)),
		DiffData: &DiffData{
			OldContent: oldString,
			NewContent: newString,
			FilePath:   path,
			Language:   inferLanguage(path),
			IsFragment: true,
		},
	}, nil
}

func executeRangeEdit(path string, input map[string]interface{}) (*ToolResult, error) {
	startF, _ := input["start_line"].(float64)
	endF, _ := input["end_line"].(float64)
	newContent, _ := input["new_content"].(string)
	start, end := int(startF), int(endF)
	if start < 1 || end < start {
		return &ToolResult{Output: "Error: start_line must be >= 1 and end_line >= start_line", IsError: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &ToolResult{Output: fmt.Sprintf("Error reading file: %v", err), IsError: true}, nil
	}
	lines := strings.Split(string(data), "\n")
	if start > len(lines) {
		return &ToolResult{Output: fmt.Sprintf("start_line %d exceeds file length (%d lines)", start, len(lines)), IsError: true}, nil
	}
	if end > len(lines) {
		end = len(lines)
	}

	oldSlice := strings.Join(lines[start-1:end], "\n")
	replacement := strings.Split(newContent, "\n")

	result := make([]string, 0, len(lines))
	result = append(result, lines[:start-1]...)
	result = append(result, replacement...)
	result = append(result, lines[end:]...)
	joined := strings.Join(result, "\n")

	if err := os.WriteFile(path, []byte(joined), 0644); err != nil {
		return &ToolResult{Output: fmt.Sprintf("Error writing file: %v", err), IsError: true}, nil
	}

	return &ToolResult{
		Output: fmt.Sprintf("Replaced lines %d-%d in %s", start, end, path),
		DiffData: &DiffData{
			OldContent: oldSlice,
			NewContent: newContent,
			FilePath:   path,
			Language:   inferLanguage(path),
			IsFragment: true,
		},
	}, nil
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// MultiEditTool applies several edits to one file as a single all-or-nothing
// transaction: every edit is validated against an in-memory copy of the file
// before anything is written to disk, so a failing edit midway never leaves
// the file in a partially-edited state.
func MultiEditTool() *ToolDef {
	return &ToolDef{
		Name:           "multi_edit",
		Classification: ClassDestructive,
		Description:    "Apply multiple exact find-and-replace edits to one file atomically. If any edit fails to match, none are applied.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "The file path to edit"},
				"edits": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"old_string": map[string]interface{}{"type": "string"},
							"new_string": map[string]interface{}{"type": "string"},
						},
						"required": []string{"old_string", "new_string"},
					},
					"description": "Edits applied in order against the result of the previous edit",
				},
			},
			"required": []string{"path", "edits"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			path, _ := input["path"].(string)
			if path == "" {
				return &ToolResult{Output: "Error: path is required", IsError: true}, nil
			}
			if !filepath.IsAbs(path) && tc.WorkDir != "" {
				path = filepath.Join(tc.WorkDir, path)
			}

			editsRaw, ok := input["edits"]
			if !ok {
				return &ToolResult{Output: "Error: edits array is required", IsError: true}, nil
			}
			editsJSON, _ := json.Marshal(editsRaw)
			var edits []struct {
				OldString string `json:"old_string"`
				NewString string `json:"new_string"`
			}
			if err := json.Unmarshal(editsJSON, &edits); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error parsing edits: %v", err), IsError: true}, nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error reading file: %v", err), IsError: true}, nil
			}

			content := string(data)
			var diffList []*DiffData
			for i, edit := range edits {
				count := strings.Count(content, edit.OldString)
				if count != 1 {
					return &ToolResult{
						Output:  fmt.Sprintf("Aborted: edit %d old_string matches %d locations in %s (must match exactly once); no edits applied", i+1, count, path),
						IsError: true,
					}, nil
				}
				content = strings.Replace(content, edit.OldString, edit.NewString, 1)
				diffList = append(diffList, &DiffData{
					OldContent: edit.OldString,
					NewContent: edit.NewString,
					FilePath:   path,
					Language:   inferLanguage(path),
					IsFragment: true,
				})
			}

			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error writing file: %v", err), IsError: true}, nil
			}

			return &ToolResult{
				Output:       fmt.Sprintf("Applied %d edits to %s", len(edits), path),
				DiffDataList: diffList,
			}, nil
		},
	}
}
