package tool

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	gitReadTimeout   = 10 * time.Second
	gitCommitTimeout = 30 * time.Second
)

func runGit(ctx context.Context, workDir string, timeout time.Duration, args ...string) (*ToolResult, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "git", args...)
	cmd.Dir = workDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return &ToolResult{Output: fmt.Sprintf("git %s timed out after %s", strings.Join(args, " "), timeout), IsError: true}, nil
		}
		return &ToolResult{Output: fmt.Sprintf("git error: %s\n%s", err, string(output)), IsError: true}, nil
	}
	return &ToolResult{Output: string(output)}, nil
}

// GitStatusTool shows the working tree status.
func GitStatusTool() *ToolDef {
	return &ToolDef{
		Name:           "git_status",
		Classification: ClassReadonly,
		Description:    "Show git working tree status (short format).",
		Parameters:     map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			return runGit(ctx, tc.WorkDir, gitReadTimeout, "status", "--short", "--branch")
		},
	}
}

// GitDiffTool shows uncommitted changes, optionally scoped to files.
func GitDiffTool() *ToolDef {
	return &ToolDef{
		Name:           "git_diff",
		Classification: ClassReadonly,
		Description:    "Show uncommitted changes. Optionally scoped to specific files.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"files":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Files to diff (default: all)"},
				"staged":  map[string]interface{}{"type": "boolean", "description": "Show staged changes (git diff --cached)"},
			},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			args := []string{"diff"}
			if staged, _ := input["staged"].(bool); staged {
				args = append(args, "--cached")
			}
			if files, ok := input["files"].([]interface{}); ok && len(files) > 0 {
				args = append(args, "--")
				args = append(args, interfaceSliceToStringSlice(files)...)
			}
			return runGit(ctx, tc.WorkDir, gitReadTimeout, args...)
		},
	}
}

// GitLogTool shows recent commit history.
func GitLogTool() *ToolDef {
	return &ToolDef{
		Name:           "git_log",
		Classification: ClassReadonly,
		Description:    "Show recent commit history (oneline, decorated, last 20 by default).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"max_count": map[string]interface{}{"type": "integer", "description": "Number of commits to show (default: 20)"},
				"path":      map[string]interface{}{"type": "string", "description": "Limit history to a path"},
			},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			n := 20
			if v, ok := input["max_count"].(float64); ok && v > 0 {
				n = int(v)
			}
			args := []string{"log", "--oneline", "--decorate", fmt.Sprintf("-%d", n)}
			if p, ok := input["path"].(string); ok && p != "" {
				args = append(args, "--", p)
			}
			return runGit(ctx, tc.WorkDir, gitReadTimeout, args...)
		},
	}
}

// GitCommitTool stages and commits files. Classified destructive: it mutates
// repository history and is always routed through confirmation.
func GitCommitTool() *ToolDef {
	return &ToolDef{
		Name:           "git_commit",
		Classification: ClassDestructive,
		Description:    "Stage files and create a commit.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string", "description": "Commit message"},
				"files":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "Files to stage; default: all modified/tracked files (git add -A)"},
			},
			"required": []string{"message"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			message, _ := input["message"].(string)
			if message == "" {
				return &ToolResult{Output: "Error: message is required", IsError: true}, nil
			}

			addArgs := []string{"add"}
			if files, ok := input["files"].([]interface{}); ok && len(files) > 0 {
				addArgs = append(addArgs, interfaceSliceToStringSlice(files)...)
			} else {
				addArgs = append(addArgs, "-A")
			}
			if res, err := runGit(ctx, tc.WorkDir, gitCommitTimeout, addArgs...); err != nil || res.IsError {
				return res, err
			}

			return runGit(ctx, tc.WorkDir, gitCommitTimeout, "commit", "-m", message)
		},
	}
}

func interfaceSliceToStringSlice(slice []interface{}) []string {
	result := make([]string, len(slice))
	for i, v := range slice {
		if str, ok := v.(string); ok {
			result[i] = str
		} else {
			result[i] = fmt.Sprintf("%v", v)
		}
	}
	return result
}

func isGitRepo(workDir string) bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = workDir
	return cmd.Run() == nil
}
