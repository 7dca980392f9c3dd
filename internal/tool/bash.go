package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const defaultBashTimeoutSeconds = 30

// bashDenylist matches commands judged too destructive to ever run unattended,
// regardless of the caller's timeout or confirmation state.
var bashDenylist = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*f\b`),
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*f[a-zA-Z]*r\b`),
	regexp.MustCompile(`\brm\s+-r\s+/`),
	regexp.MustCompile(`\bsudo\s+rm\b`),
	regexp.MustCompile(`>\s*/dev\b`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;`), // fork bomb
}

func isDenied(command string) (bool, string) {
	for _, re := range bashDenylist {
		if re.MatchString(command) {
			return true, re.String()
		}
	}
	return false, ""
}

// BashTool executes shell commands in the workspace directory. Classified as
// destructive since it can touch anything on disk; the loop controller always
// routes it through confirmation unless the permission engine auto-allows it.
func BashTool() *ToolDef {
	return &ToolDef{
		Name:           "bash",
		Classification: ClassDestructive,
		Description:    "Execute a shell command in the project directory. Default timeout: 30s.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command":     map[string]interface{}{"type": "string", "description": "The shell command to execute"},
				"timeout":     map[string]interface{}{"type": "integer", "description": "Timeout in seconds (default: 30)"},
				"description": map[string]interface{}{"type": "string", "description": "Brief description of what the command does"},
			},
			"required": []string{"command"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			command, _ := input["command"].(string)
			if command == "" {
				return &ToolResult{Output: "Error: command is required", IsError: true}, nil
			}

			if denied, pattern := isDenied(command); denied {
				return &ToolResult{
					Output:  fmt.Sprintf("Refused: command matches a denylisted pattern (%s). This operation is never executed.", pattern),
					IsError: true,
				}, nil
			}

			timeoutSecs := defaultBashTimeoutSeconds
			if v, ok := input["timeout"].(float64); ok && v > 0 {
				timeoutSecs = int(v)
			}

			workDir := tc.WorkDir
			if workDir == "" {
				workDir = "."
			}

			timeout := time.Duration(timeoutSecs) * time.Second
			cmdCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(cmdCtx, "bash", "-c", command)
			cmd.Dir, _ = filepath.Abs(workDir)

			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			err := cmd.Run()

			output := stdout.String()
			if errOutput := stderr.String(); errOutput != "" {
				output += "\n" + errOutput
			}

			if len(output) > 30*1024 {
				output = output[:15*1024] + "\n\n... (output truncated) ...\n\n" + output[len(output)-15*1024:]
			}

			if err != nil {
				if cmdCtx.Err() == context.DeadlineExceeded {
					return &ToolResult{
						Output:  fmt.Sprintf("Command timed out after %d seconds.\nPartial output:\n%s", timeoutSecs, output),
						IsError: true,
					}, nil
				}
				exitCode := -1
				if exitErr, ok := err.(*exec.ExitError); ok {
					exitCode = exitErr.ExitCode()
				}
				return &ToolResult{
					Output:  fmt.Sprintf("Command failed (exit code %d):\n%s", exitCode, output),
					IsError: true,
				}, nil
			}

			if strings.TrimSpace(output) == "" {
				output = "(no output)"
			}
			return &ToolResult{Output: output}, nil
		},
	}
}
