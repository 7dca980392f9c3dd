package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// toRawSchema round-trips a Go map schema literal through JSON so the
// jsonschema compiler sees a plain decoded document rather than Go types
// (e.g. []string for "required", which the compiler expects as []interface{}).
func toRawSchema(params map[string]interface{}) (*bytes.Reader, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}

// DiffData holds before/after content for rendering side-by-side diffs in the IDE.
type DiffData struct {
	OldContent string `json:"old_content"`
	NewContent string `json:"new_content"`
	FilePath   string `json:"file_path,omitempty"`
	Language   string `json:"language,omitempty"`
	IsFragment bool   `json:"is_fragment,omitempty"`
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Output       string           `json:"output"`
	IsError      bool             `json:"is_error"`
	Title        string           `json:"title,omitempty"`
	Attachments  []FileAttachment `json:"attachments,omitempty"`
	DiffData     *DiffData        `json:"diff_data,omitempty"`
	DiffDataList []*DiffData      `json:"diff_data_list,omitempty"`
}

// FileAttachment represents a base64-encoded file attachment.
type FileAttachment struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Type      string `json:"type"`
	MIME      string `json:"mime"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
}

// ToolContext provides context for tool execution. Interactive tools (e.g.
// ask_user) don't get a synchronous callback here the way a TUI's blocking
// prompt would take one — internal/loop suspends the whole turn under a
// ParkedLoopState and re-invokes Execute with the answer already present in
// input["_answer"] once the IDE resumes it.
type ToolContext struct {
	SessionID string
	MessageID string
	WorkDir   string
	Abort     context.Context
	Index     WorkspaceSearcher
	Txn       TransactionRunner
	WebSearch WebSearcher
}

// WebSearcher is the subset of internal/transport.Client that web_search
// delegates to: the LLM backend's own web-search endpoint, when it exposes
// one, per the "delegate to the LLM backend's web endpoint" contract. When no
// backend is wired the tool falls back to its own direct DuckDuckGo fetch.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) (string, error)
}

// WorkspaceSearcher is the subset of internal/index.Index that tools depend on.
// Declared here (rather than importing internal/index) to keep internal/tool free
// of a dependency cycle; internal/wsapi wires the concrete implementation in.
type WorkspaceSearcher interface {
	Search(ctx context.Context, mode, query string, opts map[string]interface{}) (string, error)
	Structure(ctx context.Context, path string, depth int) (string, error)
	Symbols(ctx context.Context, path string) (string, error)
}

// TransactionRunner is the subset of internal/txn.Manager tools depend on.
type TransactionRunner interface {
	Begin(description string) string
	Write(txnID, path, content string) error
	Edit(txnID, path, oldStr, newStr string, replaceAll bool) error
	EditRange(txnID, path string, startLine, endLine int, newContent string) error
	Delete(txnID, path string) error
	Rename(txnID, oldPath, newPath string) error
	Commit(txnID string, dryRun bool) (*TxnCommitResult, error)
	Rollback(txnID string) error
	Undo() (*TxnCommitResult, error)
	Redo() (*TxnCommitResult, error)
}

// TxnCommitResult mirrors internal/txn.CommitResult without importing the package.
type TxnCommitResult struct {
	Changed []string
	Diffs   []*DiffData
}

// Classification buckets a tool by how the loop controller must treat it:
// readonly/exploration tools count against the exploration budget and never
// suspend; destructive tools always suspend for confirmation unless the
// permission engine auto-allows them; interactive tools suspend unconditionally
// to hand control back to the human.
type Classification string

const (
	ClassReadonly    Classification = "readonly"
	ClassDestructive Classification = "destructive"
	ClassInteractive Classification = "interactive"
)

// ToolDef defines a tool the agent loop can invoke.
type ToolDef struct {
	Name           string
	Description    string
	Parameters     map[string]interface{}
	Classification Classification
	Execute        func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error)

	schema *jsonschema.Schema
}

func (t *ToolDef) compileSchema() error {
	if t.Parameters == nil {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	const uri = "mem://schema.json"
	raw, err := toRawSchema(t.Parameters)
	if err != nil {
		return err
	}
	if err := compiler.AddResource(uri, raw); err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name, err)
	}
	sch, err := compiler.Compile(uri)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", t.Name, err)
	}
	t.schema = sch
	return nil
}

// Validate checks input against the tool's declared JSON schema, returning
// a "schema: <field>" style error on mismatch so the loop can feed it back
// to the model as an observation instead of letting a handler panic on a
// bad type assertion.
func (t *ToolDef) Validate(input map[string]interface{}) error {
	if t.schema == nil {
		return nil
	}
	if err := t.schema.Validate(input); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			if len(ve.Causes) > 0 {
				c := ve.Causes[0]
				field := strings.TrimPrefix(c.InstanceLocation, "/")
				if field == "" {
					field = "input"
				}
				return fmt.Errorf("schema: %s: %s", field, c.Message)
			}
		}
		return fmt.Errorf("schema: %v", err)
	}
	return nil
}

// Registry manages all available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDef
}

var (
	globalRegistry *Registry
	once           sync.Once
)

// GetRegistry returns the global tool registry, building it on first use.
func GetRegistry() *Registry {
	once.Do(func() {
		globalRegistry = &Registry{tools: make(map[string]*ToolDef)}
		registerBuiltinTools(globalRegistry)
	})
	return globalRegistry
}

// Register adds a tool to the registry, compiling its JSON schema eagerly so
// a malformed schema fails at startup rather than on the first invocation.
func (r *Registry) Register(tool *ToolDef) {
	if err := tool.compileSchema(); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// GetAll returns all registered tools.
func (r *Registry) GetAll() map[string]*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*ToolDef, len(r.tools))
	for k, v := range r.tools {
		result[k] = v
	}
	return result
}

// Classify returns the classification of a tool, defaulting to destructive
// (fail closed) for anything unregistered.
func (r *Registry) Classify(name string) Classification {
	if t, ok := r.Get(name); ok {
		return t.Classification
	}
	return ClassDestructive
}

// Execute validates input against the tool's schema, then runs it.
func (r *Registry) Execute(ctx context.Context, tc *ToolContext, name string, input map[string]interface{}) (*ToolResult, error) {
	t, ok := r.Get(name)
	if !ok {
		return &ToolResult{
			Output:  fmt.Sprintf("Unknown tool: %s. Available tools: %v", name, r.List()),
			IsError: true,
		}, nil
	}
	if err := t.Validate(input); err != nil {
		return &ToolResult{Output: err.Error(), IsError: true}, nil
	}
	return t.Execute(ctx, tc, input)
}

// Descriptions renders the tool catalog for embedding into the system prompt
// per the protocol section of the prompt layout: name, description, schema.
func (r *Registry) Descriptions(allowed []string) []ToolDescription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	if len(allowed) > 0 {
		names = allowed
	} else {
		for n := range r.tools {
			names = append(names, n)
		}
	}
	result := make([]ToolDescription, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		result = append(result, ToolDescription{
			Name:           t.Name,
			Description:    t.Description,
			InputSchema:    t.Parameters,
			Classification: t.Classification,
		})
	}
	return result
}

// ToolDescription is the catalog entry surfaced to the prompt builder.
type ToolDescription struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	InputSchema    map[string]interface{} `json:"input_schema"`
	Classification Classification         `json:"classification"`
}

// inferLanguage returns a language identifier based on file extension, used
// to tag diff payloads for the IDE's syntax-highlighted diff viewer.
func inferLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	langs := map[string]string{
		".go": "go", ".js": "javascript", ".ts": "typescript", ".tsx": "tsx",
		".jsx": "jsx", ".py": "python", ".rb": "ruby", ".rs": "rust",
		".java": "java", ".c": "c", ".cpp": "cpp", ".h": "c", ".hpp": "cpp",
		".cs": "csharp", ".swift": "swift", ".kt": "kotlin", ".lua": "lua",
		".sh": "bash", ".bash": "bash", ".zsh": "zsh", ".yaml": "yaml",
		".yml": "yaml", ".json": "json", ".toml": "toml", ".xml": "xml",
		".html": "html", ".css": "css", ".scss": "scss", ".sql": "sql",
		".md": "markdown",
	}
	if lang, ok := langs[ext]; ok {
		return lang
	}
	return ""
}

// registerBuiltinTools registers every tool the assistant protocol exposes.
func registerBuiltinTools(r *Registry) {
	// File operations
	r.Register(ReadTool())
	r.Register(WriteTool())
	r.Register(EditTool())
	r.Register(MultiEditTool())
	r.Register(DeleteFileTool())
	r.Register(RenameFileTool())

	// Exploration
	r.Register(ListDirTool())
	r.Register(GlobTool())
	r.Register(GrepTool())
	r.Register(SearchCodeTool())
	r.Register(ProjectStructureTool())
	r.Register(FindFilesByContentTool())
	r.Register(FindSymbolTool())
	r.Register(FindReferencesTool())
	r.Register(FindDefinitionTool())
	r.Register(AnalyzeCodeTool())
	r.Register(ExplainCodeTool())

	// Shell
	r.Register(BashTool())

	// Git
	r.Register(GitStatusTool())
	r.Register(GitDiffTool())
	r.Register(GitLogTool())
	r.Register(GitCommitTool())

	// Web
	r.Register(WebFetchTool())
	r.Register(WebSearchTool())

	// Memory / planning
	r.Register(TodoWriteTool())
	r.Register(TodoReadTool())
	r.Register(PlanTaskTool())
	r.Register(ReadProjectMemoryTool())
	r.Register(UpdateProjectMemoryTool())

	// Undo/redo surface exposed to the model as tools as well as REST
	r.Register(UndoTool())
	r.Register(RedoTool())

	// Interactive
	r.Register(AskUserTool())
}
