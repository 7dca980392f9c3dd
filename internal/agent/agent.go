// Package agent builds the system prompt handed to the LLM backend at the
// start of every loop turn: the assistant's core instructions plus
// environment context (working directory, git state, project-local
// instruction files) gathered fresh each time a session starts. There is
// exactly one persona here — no planner/explorer/subagent roster, since a
// local IDE assistant doesn't need an agent-switching UI.
package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/maeum-labs/maeum-ide/internal/tool"
)

// PromptContext carries the per-turn IDE state layered onto the fixed role
// preamble and environment block: the tool catalog, a workspace tree, the
// optional current-file/open-tabs/recent-context hints the client attaches
// to a chat frame, and a symbol summary for files already read this session.
type PromptContext struct {
	Tools            []tool.ToolDescription
	WorkspaceTree    string
	CurrentFile      string
	CurrentFileLang  string
	CurrentFileLines int
	CursorLine       int
	OpenTabs         []string
	RecentContext    string
	SymbolSummary    string
}

// SystemPrompt returns the full system prompt for a session rooted at
// workdir: the base coding-assistant instructions, live environment context,
// any project-local instruction files found above workdir, the workspace
// tree, the tool catalog, and whatever IDE-state hints pc carries.
func SystemPrompt(workdir string, pc PromptContext) string {
	prompt := buildPromptWithContext(CoderPrompt, workdir)

	if pc.WorkspaceTree != "" {
		prompt += "\n\n## Workspace\n\n```\n" + pc.WorkspaceTree + "\n```"
	}

	prompt += renderToolCatalog(pc.Tools)

	if pc.CurrentFile != "" {
		hint := fmt.Sprintf("\n\n## Current File\n\npath: %s", pc.CurrentFile)
		if pc.CurrentFileLang != "" {
			hint += fmt.Sprintf("\nlanguage: %s", pc.CurrentFileLang)
		}
		if pc.CurrentFileLines > 0 {
			hint += fmt.Sprintf("\ntotal_lines: %d", pc.CurrentFileLines)
		}
		if pc.CursorLine > 0 {
			hint += fmt.Sprintf("\ncursor_line: %d", pc.CursorLine)
		}
		prompt += hint
	}

	if len(pc.OpenTabs) > 0 {
		prompt += "\n\n## Open Tabs\n\n- " + strings.Join(pc.OpenTabs, "\n- ")
	}

	if pc.RecentContext != "" {
		prompt += "\n\n## Recent User Context\n\n" + pc.RecentContext
	}

	if pc.SymbolSummary != "" {
		prompt += "\n\n## Symbol Summary\n\n" + pc.SymbolSummary
	}

	return prompt
}

// renderToolCatalog lists every available tool by name and description with
// a canonical [TOOL:name] invocation example, so the model is told the real
// registered name, schema, and call form rather than inferring it.
func renderToolCatalog(tools []tool.ToolDescription) string {
	if len(tools) == 0 {
		return ""
	}
	sorted := append([]tool.ToolDescription(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var sb strings.Builder
	sb.WriteString("\n\n## Tools\n\n")
	for _, t := range sorted {
		sb.WriteString(fmt.Sprintf("### %s (%s)\n\n%s\n\n", t.Name, t.Classification, t.Description))
		sb.WriteString(fmt.Sprintf("[TOOL:%s]\n```json\n%s\n```\n\n", t.Name, exampleInvocation(t.InputSchema)))
	}
	return sb.String()
}

// exampleInvocation synthesizes a plausible call for a tool's schema by
// filling its required properties (or all properties, if none are marked
// required) with a type-appropriate placeholder value.
func exampleInvocation(schema map[string]interface{}) string {
	props, _ := schema["properties"].(map[string]interface{})
	var required []string
	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []interface{}:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	if len(required) == 0 {
		for name := range props {
			required = append(required, name)
		}
		sort.Strings(required)
	}

	example := make(map[string]interface{}, len(required))
	for _, name := range required {
		spec, _ := props[name].(map[string]interface{})
		example[name] = placeholderFor(name, spec)
	}
	b, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func placeholderFor(name string, spec map[string]interface{}) interface{} {
	t, _ := spec["type"].(string)
	switch t {
	case "integer", "number":
		return 1
	case "boolean":
		return true
	case "array":
		return []interface{}{}
	case "object":
		return map[string]interface{}{}
	default:
		return "<" + name + ">"
	}
}

func buildPromptWithContext(basePrompt, workdir string) string {
	platform := runtime.GOOS + "/" + runtime.GOARCH
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}

	gitBranch := ""
	gitStatus := ""
	isGitRepo := false
	if out, err := exec.Command("git", "-C", workdir, "branch", "--show-current").Output(); err == nil {
		gitBranch = strings.TrimSpace(string(out))
		isGitRepo = true
	}
	if out, err := exec.Command("git", "-C", workdir, "status", "--porcelain").Output(); err == nil {
		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		if len(lines) > 0 && lines[0] != "" {
			gitStatus = fmt.Sprintf("%d modified files", len(lines))
		} else {
			gitStatus = "clean"
		}
	}

	customInstructions := loadCustomInstructions(workdir)

	envBlock := fmt.Sprintf(`

## Environment

<env>
  Working directory: %s
  Is directory a git repo: %v
  Platform: %s
  Shell: %s
  Today's date: %s
</env>`, workdir, isGitRepo, platform, shell, time.Now().Format("Mon Jan 2 2006"))

	if gitBranch != "" {
		envBlock += fmt.Sprintf("\n- Git Branch: %s", gitBranch)
	}
	if gitStatus != "" {
		envBlock += fmt.Sprintf("\n- Git Status: %s", gitStatus)
	}

	if customInstructions != "" {
		envBlock += "\n\n## Project Instructions\n\n" + customInstructions
	}

	return basePrompt + envBlock
}

// loadCustomInstructions walks up from workdir collecting any
// AGENTS.md/CLAUDE.md-style instruction files it finds along the way,
// most specific (closest to workdir) first.
func loadCustomInstructions(workdir string) string {
	var instructions []string

	dir := workdir
	for {
		candidates := []string{
			filepath.Join(dir, ".maeum-ide", "instructions.md"),
			filepath.Join(dir, "AGENTS.md"),
			filepath.Join(dir, "CLAUDE.md"),
			filepath.Join(dir, ".github", "AGENTS.md"),
		}

		for _, path := range candidates {
			if data, err := os.ReadFile(path); err == nil {
				content := strings.TrimSpace(string(data))
				if content != "" {
					instructions = append(instructions, fmt.Sprintf("Instructions from: %s\n%s", path, content))
				}
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return strings.Join(instructions, "\n\n")
}

// CoderPrompt is the base system prompt for the coding assistant.
const CoderPrompt = `You are an AI coding assistant embedded in a local IDE. You help developers with software engineering tasks using tools for reading, writing, searching code, and executing commands.

## Core Rules

1. **Propose tool calls explicitly** — when you need to act, emit a single ` + "`[TOOL:<name>]`" + ` call with its JSON input and stop; wait for the result before continuing.
2. **Always read before editing** — use exact string matching with enough context for a unique match. Preserve indentation.
3. **Search effectively** — use the workspace search tool's exact/fuzzy/regex/semantic/symbol modes depending on what you're looking for.
4. **Execute carefully** — quote paths with spaces, chain shell commands with &&, and expect destructive operations to require confirmation.
5. **Solve problems systematically** — break complex tasks into steps, track progress, and verify changes before declaring them done.
6. **Handle errors gracefully** — if a tool fails or a tool call fails to parse, explain what happened and try an alternative approach rather than repeating the same call.
7. **Write quality code** — follow the project's existing conventions and idioms; consider edge cases.`
