package index

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

const maxMatchesPerFile = 20
const maxSearchResults = 200

// Search dispatches to one of five modes: exact (substring), fuzzy
// (subsequence match against symbol/file names), regex (line-level pattern
// match, grep-equivalent but served from the in-memory index), semantic
// (token-overlap ranking against extracted symbol names — a stand-in for
// embedding search, not the real thing) and symbol (name lookup against the
// extracted symbol table). Results are cached by mode+query+opts since
// exploration traffic tends to repeat queries across turns.
func (idx *Index) Search(ctx context.Context, mode, query string, opts map[string]interface{}) (string, error) {
	cacheKey := fmt.Sprintf("%s|%s|%v", mode, query, opts)
	if cached, ok := idx.cache.Get(cacheKey); ok {
		return cached, nil
	}

	var (
		out string
		err error
	)
	switch mode {
	case "exact":
		out, err = idx.searchExact(query, opts)
	case "fuzzy":
		out, err = idx.searchFuzzy(query, opts)
	case "regex":
		out, err = idx.searchRegex(query, opts)
	case "semantic":
		out, err = idx.searchSemantic(query, opts)
	case "symbol":
		out, err = idx.searchSymbol(query, opts)
	default:
		return "", fmt.Errorf("unknown search mode: %s", mode)
	}
	if err != nil {
		return "", err
	}
	idx.cache.Add(cacheKey, out)
	return out, nil
}

func (idx *Index) snapshot() []*FileNode {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	nodes := make([]*FileNode, 0, len(idx.files))
	for _, n := range idx.files {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes
}

func includeGlob(opts map[string]interface{}) glob.Glob {
	if opts == nil {
		return nil
	}
	pattern, _ := opts["include"].(string)
	if pattern == "" {
		return nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil
	}
	return g
}

func (idx *Index) searchExact(query string, opts map[string]interface{}) (string, error) {
	g := includeGlob(opts)
	var sb strings.Builder
	count := 0
	for _, n := range idx.snapshot() {
		if g != nil && !g.Match(n.Path) {
			continue
		}
		matches := grepFileLines(n.AbsPath, func(line string) bool {
			return strings.Contains(line, query)
		})
		count += writeMatches(&sb, n.Path, matches)
		if count >= maxSearchResults {
			break
		}
	}
	if count == 0 {
		return fmt.Sprintf("no exact matches for %q", query), nil
	}
	return sb.String(), nil
}

func (idx *Index) searchRegex(pattern string, opts map[string]interface{}) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid regex: %w", err)
	}
	g := includeGlob(opts)
	var sb strings.Builder
	count := 0
	for _, n := range idx.snapshot() {
		if g != nil && !g.Match(n.Path) {
			continue
		}
		matches := grepFileLines(n.AbsPath, re.MatchString)
		count += writeMatches(&sb, n.Path, matches)
		if count >= maxSearchResults {
			break
		}
	}
	if count == 0 {
		return fmt.Sprintf("no regex matches for %q", pattern), nil
	}
	return sb.String(), nil
}

// searchFuzzy matches query as a subsequence of the file's relative path or any
// of its symbol names, ranked by match compactness.
func (idx *Index) searchFuzzy(query string, opts map[string]interface{}) (string, error) {
	type hit struct {
		path  string
		score int
	}
	qLower := strings.ToLower(query)
	var hits []hit
	for _, n := range idx.snapshot() {
		if score, ok := fuzzyScore(strings.ToLower(n.Path), qLower); ok {
			hits = append(hits, hit{n.Path, score})
			continue
		}
		for _, s := range n.Symbols {
			if score, ok := fuzzyScore(strings.ToLower(s.Name), qLower); ok {
				hits = append(hits, hit{fmt.Sprintf("%s (%s %s:%d)", n.Path, s.Kind, s.Name, s.Line), score})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score < hits[j].score })
	if len(hits) > maxSearchResults {
		hits = hits[:maxSearchResults]
	}
	if len(hits) == 0 {
		return fmt.Sprintf("no fuzzy matches for %q", query), nil
	}
	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(h.path)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// fuzzyScore returns (span length, true) if query is a subsequence of s, the
// span being the distance between the first and last matched character —
// tighter spans rank first.
func fuzzyScore(s, query string) (int, bool) {
	if query == "" {
		return 0, true
	}
	qi := 0
	start, end := -1, -1
	for i := 0; i < len(s) && qi < len(query); i++ {
		if s[i] == query[qi] {
			if start == -1 {
				start = i
			}
			end = i
			qi++
		}
	}
	if qi != len(query) {
		return 0, false
	}
	return end - start, true
}

func (idx *Index) searchSymbol(name string, opts map[string]interface{}) (string, error) {
	exact, _ := opts["exact"].(bool)
	var sb strings.Builder
	count := 0
	for _, n := range idx.snapshot() {
		for _, s := range n.Symbols {
			matched := false
			if exact {
				matched = s.Name == name
			} else {
				matched = strings.Contains(strings.ToLower(s.Name), strings.ToLower(name))
			}
			if matched {
				sb.WriteString(fmt.Sprintf("%s:%d: %s %s\n", n.Path, s.Line, s.Kind, s.Name))
				count++
			}
		}
	}
	if count == 0 {
		return fmt.Sprintf("no symbol matches for %q", name), nil
	}
	return sb.String(), nil
}

// searchSemantic ranks files by token overlap between the query and the
// file's extracted symbol names plus path components. This is an explicit
// stand-in for real embedding-based semantic search — no embedding model is
// available in this deployment — documented as such wherever it's surfaced.
func (idx *Index) searchSemantic(query string, opts map[string]interface{}) (string, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return "empty query", nil
	}
	type hit struct {
		path  string
		score int
	}
	var hits []hit
	for _, n := range idx.snapshot() {
		tokens := tokenize(n.Path)
		for _, s := range n.Symbols {
			tokens = append(tokens, tokenize(s.Name)...)
		}
		score := overlap(queryTokens, tokens)
		if score > 0 {
			hits = append(hits, hit{n.Path, score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > 30 {
		hits = hits[:30]
	}
	if len(hits) == 0 {
		return fmt.Sprintf("no semantic matches for %q (token-overlap heuristic, not embedding search)", query), nil
	}
	var sb strings.Builder
	for _, h := range hits {
		sb.WriteString(fmt.Sprintf("%s (score %d)\n", h.path, h.score))
	}
	return sb.String(), nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

func overlap(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	score := 0
	for _, t := range a {
		if set[t] {
			score++
		}
	}
	return score
}

func grepFileLines(path string, match func(string) bool) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if match(line) {
			out = append(out, fmt.Sprintf("%d: %s", lineNo, strings.TrimSpace(line)))
			if len(out) >= maxMatchesPerFile {
				break
			}
		}
	}
	return out
}

func writeMatches(sb *strings.Builder, relPath string, matches []string) int {
	if len(matches) == 0 {
		return 0
	}
	sb.WriteString(relPath)
	sb.WriteString(":\n")
	for _, m := range matches {
		sb.WriteString("  ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	return 1
}
