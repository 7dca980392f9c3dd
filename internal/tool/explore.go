package tool

import (
	"context"
	"fmt"
)

// ProjectStructureTool returns the indexed directory/file tree for a workspace
// subtree, backed by internal/index's parallel walk rather than a live os.ReadDir.
func ProjectStructureTool() *ToolDef {
	return &ToolDef{
		Name:           "project_structure",
		Classification: ClassReadonly,
		Description:    "Return the indexed project structure (files, directories, symbol counts) for a subtree.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":  map[string]interface{}{"type": "string", "description": "Subtree to describe (default: workspace root)"},
				"depth": map[string]interface{}{"type": "integer", "description": "Maximum depth (default: unlimited)"},
			},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			path, _ := input["path"].(string)
			depth := -1
			if v, ok := input["depth"].(float64); ok && v > 0 {
				depth = int(v)
			}
			out, err := tc.Index.Structure(ctx, path, depth)
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// FindFilesByContentTool runs a fuzzy/semantic content search over the
// indexed workspace, distinct from grep's exact regex search.
func FindFilesByContentTool() *ToolDef {
	return &ToolDef{
		Name:           "find_files_by_content",
		Classification: ClassReadonly,
		Description:    "Find files whose content is fuzzily or semantically related to a description, not an exact pattern.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string", "description": "Natural-language or keyword description of what to find"},
				"mode":  map[string]interface{}{"type": "string", "enum": []string{"fuzzy", "semantic"}, "description": "Search mode. Default: semantic"},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			query, _ := input["query"].(string)
			if query == "" {
				return &ToolResult{Output: "Error: query is required", IsError: true}, nil
			}
			mode, _ := input["mode"].(string)
			if mode == "" {
				mode = "semantic"
			}
			out, err := tc.Index.Search(ctx, mode, query, nil)
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// SearchCodeTool runs an exact substring search over the indexed workspace,
// distinct from grep's regex matching and find_files_by_content's
// fuzzy/semantic ranking.
func SearchCodeTool() *ToolDef {
	return &ToolDef{
		Name:           "search_code",
		Classification: ClassReadonly,
		Description:    "Search the indexed workspace for an exact substring, optionally restricted to files matching an include glob.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":   map[string]interface{}{"type": "string", "description": "Exact substring to search for"},
				"include": map[string]interface{}{"type": "string", "description": "Optional glob restricting which files are searched"},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			query, _ := input["query"].(string)
			if query == "" {
				return &ToolResult{Output: "Error: query is required", IsError: true}, nil
			}
			var opts map[string]interface{}
			if include, ok := input["include"].(string); ok && include != "" {
				opts = map[string]interface{}{"include": include}
			}
			out, err := tc.Index.Search(ctx, "exact", query, opts)
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// FindSymbolTool looks up symbols (functions, classes, methods) by name.
func FindSymbolTool() *ToolDef {
	return &ToolDef{
		Name:           "find_symbol",
		Classification: ClassReadonly,
		Description:    "Find symbol definitions (functions, classes, methods) by name across the indexed workspace.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string", "description": "Symbol name to search for"}},
			"required":   []string{"name"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			name, _ := input["name"].(string)
			if name == "" {
				return &ToolResult{Output: "Error: name is required", IsError: true}, nil
			}
			out, err := tc.Index.Search(ctx, "symbol", name, nil)
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// FindReferencesTool finds textual references to a symbol across the indexed
// workspace. This is a token-level approximation — it does not resolve scope
// or shadowing, unlike a real language-server "find references".
func FindReferencesTool() *ToolDef {
	return &ToolDef{
		Name:           "find_references",
		Classification: ClassReadonly,
		Description:    "Find textual references to a symbol name across the workspace (approximate, not scope-aware).",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string", "description": "Symbol name to search for references to"}},
			"required":   []string{"name"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			name, _ := input["name"].(string)
			if name == "" {
				return &ToolResult{Output: "Error: name is required", IsError: true}, nil
			}
			out, err := tc.Index.Search(ctx, "regex", fmt.Sprintf(`\b%s\b`, name), nil)
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// FindDefinitionTool resolves a symbol name to its defining file/line via the
// symbol index populated during the workspace walk; read_file does not add to it.
func FindDefinitionTool() *ToolDef {
	return &ToolDef{
		Name:           "find_definition",
		Classification: ClassReadonly,
		Description:    "Resolve a symbol name to the file and line where it is defined.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"name": map[string]interface{}{"type": "string", "description": "Symbol name to resolve"}},
			"required":   []string{"name"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			name, _ := input["name"].(string)
			if name == "" {
				return &ToolResult{Output: "Error: name is required", IsError: true}, nil
			}
			out, err := tc.Index.Search(ctx, "symbol", name, map[string]interface{}{"exact": true})
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// AnalyzeCodeTool returns the extracted symbol outline for a single file.
func AnalyzeCodeTool() *ToolDef {
	return &ToolDef{
		Name:           "analyze_code",
		Classification: ClassReadonly,
		Description:    "Return the extracted symbol outline (classes, functions, methods, TypeScript types; imports are not listed) for a file.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"path": map[string]interface{}{"type": "string", "description": "File to analyze"}},
			"required":   []string{"path"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Index == nil {
				return &ToolResult{Output: "workspace index is not available", IsError: true}, nil
			}
			path, _ := input["path"].(string)
			if path == "" {
				return &ToolResult{Output: "Error: path is required", IsError: true}, nil
			}
			out, err := tc.Index.Symbols(ctx, path)
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: out}, nil
		},
	}
}

// ExplainCodeTool is a thin readonly wrapper: it returns the file content plus
// its symbol outline so the model can produce a natural-language explanation
// from a single tool round-trip instead of chaining read + analyze_code.
func ExplainCodeTool() *ToolDef {
	return &ToolDef{
		Name:           "explain_code",
		Classification: ClassReadonly,
		Description:    "Return a file's content alongside its symbol outline, for the model to explain.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":       map[string]interface{}{"type": "string", "description": "File to explain"},
				"start_line": map[string]interface{}{"type": "integer", "description": "Optional: restrict to a line range"},
				"end_line":   map[string]interface{}{"type": "integer", "description": "Optional: restrict to a line range"},
			},
			"required": []string{"path"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			path, _ := input["path"].(string)
			if path == "" {
				return &ToolResult{Output: "Error: path is required", IsError: true}, nil
			}
			rt := ReadTool()
			readInput := map[string]interface{}{"file_path": path}
			if v, ok := input["start_line"]; ok {
				readInput["start_line"] = v
			}
			if v, ok := input["end_line"]; ok {
				readInput["end_line"] = v
			}
			content, rerr := rt.Execute(ctx, tc, readInput)
			if rerr != nil || (content != nil && content.IsError) {
				return content, rerr
			}
			out := content.Output
			if tc.Index != nil {
				if symbols, serr := tc.Index.Symbols(ctx, path); serr == nil {
					out += "\n\n## Symbols\n" + symbols
				}
			}
			return &ToolResult{Output: out}, nil
		},
	}
}
