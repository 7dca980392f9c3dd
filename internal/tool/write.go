package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteTool writes content to a file, creating parent directories as needed.
func WriteTool() *ToolDef {
	return &ToolDef{
		Name:           "write_file",
		Classification: ClassDestructive,
		Description:    "Write content to a file. Creates parent directories if needed. Overwrites existing content.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{"type": "string", "description": "The file path to write to"},
				"content":   map[string]interface{}{"type": "string", "description": "The full content to write to the file"},
			},
			"required": []string{"file_path", "content"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			path, _ := input["file_path"].(string)
			content, _ := input["content"].(string)
			if path == "" {
				return &ToolResult{Output: "Error: file_path is required", IsError: true}, nil
			}
			if !filepath.IsAbs(path) && tc.WorkDir != "" {
				path = filepath.Join(tc.WorkDir, path)
			}

			dir := filepath.Dir(path)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error creating directories: %v", err), IsError: true}, nil
			}

			existed := false
			var oldContent string
			if data, err := os.ReadFile(path); err == nil {
				existed = true
				oldContent = string(data)
			}

			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error writing file: %v", err), IsError: true}, nil
			}

			lines := strings.Count(content, "\n") + 1
			action := "Created"
			if existed {
				action = "Updated"
			}

			result := &ToolResult{Output: fmt.Sprintf("%s %s (%d lines, %d bytes)", action, path, lines, len(content))}
			if existed {
				result.DiffData = &DiffData{
					OldContent: oldContent,
					NewContent: content,
					FilePath:   path,
					Language:   inferLanguage(path),
					IsFragment: false,
				}
			}
			return result, nil
		},
	}
}

// DeleteFileTool removes a file from the workspace.
func DeleteFileTool() *ToolDef {
	return &ToolDef{
		Name:           "delete_file",
		Classification: ClassDestructive,
		Description:    "Delete a file from the workspace.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string", "description": "The file path to delete"}},
			"required":   []string{"path"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			path, _ := input["path"].(string)
			if path == "" {
				return &ToolResult{Output: "Error: path is required", IsError: true}, nil
			}
			if !filepath.IsAbs(path) && tc.WorkDir != "" {
				path = filepath.Join(tc.WorkDir, path)
			}
			if err := os.Remove(path); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error deleting file: %v", err), IsError: true}, nil
			}
			return &ToolResult{Output: fmt.Sprintf("Deleted %s", path)}, nil
		},
	}
}

// RenameFileTool moves or renames a file within the workspace.
func RenameFileTool() *ToolDef {
	return &ToolDef{
		Name:           "rename_file",
		Classification: ClassDestructive,
		Description:    "Rename or move a file within the workspace.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"old_path": map[string]interface{}{"type": "string", "description": "Current file path"},
				"new_path": map[string]interface{}{"type": "string", "description": "Destination file path"},
			},
			"required": []string{"old_path", "new_path"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			oldPath, _ := input["old_path"].(string)
			newPath, _ := input["new_path"].(string)
			if oldPath == "" || newPath == "" {
				return &ToolResult{Output: "Error: old_path and new_path are required", IsError: true}, nil
			}
			if !filepath.IsAbs(oldPath) && tc.WorkDir != "" {
				oldPath = filepath.Join(tc.WorkDir, oldPath)
			}
			if !filepath.IsAbs(newPath) && tc.WorkDir != "" {
				newPath = filepath.Join(tc.WorkDir, newPath)
			}
			if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error creating directories: %v", err), IsError: true}, nil
			}
			if err := os.Rename(oldPath, newPath); err != nil {
				return &ToolResult{Output: fmt.Sprintf("Error renaming file: %v", err), IsError: true}, nil
			}
			return &ToolResult{Output: fmt.Sprintf("Renamed %s -> %s", oldPath, newPath)}, nil
		},
	}
}
