package index

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Symbol extraction is regex-based rather than AST-based: the workspace can
// contain Python, JavaScript, and TypeScript sources and pulling in a real
// parser per language (tree-sitter bindings, go/ast-equivalents) is out of
// proportion to what project_structure/find_symbol/analyze_code need, which
// is a coarse top-level outline, not a semantically exact symbol table.
// Regex misses nested closures and decorated edge cases; that's an accepted
// tradeoff, documented alongside the rest of the indexing approach.

var (
	pyDef      = regexp.MustCompile(`^(\s*)def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	pyClass    = regexp.MustCompile(`^class\s+([A-Za-z_][A-Za-z0-9_]*)\s*[:\(]`)
	jsFunc     = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\(`)
	jsArrow    = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*(?::\s*[^=]+)?=\s*(?:async\s*)?\(?[^=]*\)?\s*=>`)
	jsClass    = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	jsMethod   = regexp.MustCompile(`^\s+(?:public\s+|private\s+|protected\s+|static\s+|async\s+)*([A-Za-z_$][A-Za-z0-9_$]*)\s*\([^)]*\)\s*(?::\s*[^\{]+)?\{`)
	tsInterface = regexp.MustCompile(`^(?:export\s+)?interface\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	tsType     = regexp.MustCompile(`^(?:export\s+)?type\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=`)
)

// ExtractSymbols returns a best-effort top-level symbol outline for rel,
// dispatching on file extension.
func ExtractSymbols(rel, content string) []Symbol {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".py":
		return extractPython(content)
	case ".js", ".jsx":
		return extractJSLike(content, false)
	case ".ts", ".tsx":
		return extractJSLike(content, true)
	default:
		return nil
	}
}

func extractPython(content string) []Symbol {
	var syms []Symbol
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if m := pyClass.FindStringSubmatch(line); m != nil {
			syms = append(syms, Symbol{Name: m[1], Kind: "class", Line: i + 1})
			continue
		}
		if m := pyDef.FindStringSubmatch(line); m != nil {
			kind := "function"
			if len(m[1]) > 0 {
				kind = "method"
			}
			syms = append(syms, Symbol{Name: m[2], Kind: kind, Line: i + 1})
		}
	}
	return syms
}

func extractJSLike(content string, typescript bool) []Symbol {
	var syms []Symbol
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		switch {
		case jsClass.MatchString(trimmed):
			m := jsClass.FindStringSubmatch(trimmed)
			syms = append(syms, Symbol{Name: m[1], Kind: "class", Line: i + 1})
		case jsFunc.MatchString(trimmed):
			m := jsFunc.FindStringSubmatch(trimmed)
			syms = append(syms, Symbol{Name: m[1], Kind: "function", Line: i + 1})
		case jsArrow.MatchString(trimmed):
			m := jsArrow.FindStringSubmatch(trimmed)
			syms = append(syms, Symbol{Name: m[1], Kind: "function", Line: i + 1})
		case typescript && tsInterface.MatchString(trimmed):
			m := tsInterface.FindStringSubmatch(trimmed)
			syms = append(syms, Symbol{Name: m[1], Kind: "type", Line: i + 1})
		case typescript && tsType.MatchString(trimmed):
			m := tsType.FindStringSubmatch(trimmed)
			syms = append(syms, Symbol{Name: m[1], Kind: "type", Line: i + 1})
		case jsMethod.MatchString(line):
			m := jsMethod.FindStringSubmatch(line)
			name := m[1]
			if name == "if" || name == "for" || name == "while" || name == "switch" || name == "catch" {
				continue
			}
			syms = append(syms, Symbol{Name: name, Kind: "method", Line: i + 1})
		}
	}
	return syms
}
