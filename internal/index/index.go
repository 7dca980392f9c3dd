// Package index maintains an in-memory map of a workspace's files and
// extracted symbols, refreshed by a bounded-concurrency walk, so search,
// symbol lookup, and project_structure don't pay a full filesystem walk on
// every tool invocation. It builds the index once and refreshes
// incrementally as internal/txn commits file changes.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// FileType classifies a file for prioritization in search and structure output.
type FileType string

const (
	FileTypeSource FileType = "source"
	FileTypeTest   FileType = "test"
	FileTypeConfig FileType = "config"
	FileTypeDoc    FileType = "doc"
	FileTypeOther  FileType = "other"
)

// Symbol is a named code entity extracted from a source file.
type Symbol struct {
	Name string
	Kind string // function | method | class | type
	Line int
}

// FileNode describes one indexed file.
type FileNode struct {
	Path     string // relative to workspace root
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Type     FileType
	Priority int
	Symbols  []Symbol
}

var ignoredDirNames = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".next": true,
	".cache": true, "dist": true, "build": true, "vendor": true, ".venv": true,
	"venv": true, ".tox": true, "target": true, ".idea": true, ".maeum-ide-backups": true,
}

const maxIndexedFileSize = 10 * 1024 * 1024 // 10 MiB

// Config controls index construction.
type Config struct {
	Root          string
	WorkerPoolMax int
	CacheSize     int
}

// Index holds the indexed workspace state and a result cache for repeated
// search queries.
type Index struct {
	root string
	log  *zap.Logger

	mu    sync.RWMutex
	files map[string]*FileNode // keyed by relative path

	cache *lru.Cache[string, string]
}

// New builds an Index by walking root with a bounded worker pool.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	poolSize := cfg.WorkerPoolMax
	if poolSize <= 0 {
		poolSize = runtime.NumCPU() + 4
		if poolSize > 32 {
			poolSize = 32
		}
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}

	idx := &Index{root: cfg.Root, log: log, files: make(map[string]*FileNode), cache: cache}
	if err := idx.Rebuild(ctx, poolSize); err != nil {
		return nil, err
	}
	return idx, nil
}

// Rebuild re-walks the workspace from scratch.
func (idx *Index) Rebuild(ctx context.Context, poolSize int) error {
	type job struct{ path string }
	jobs := make(chan job, 256)
	results := make(chan *FileNode, 256)

	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				node := buildFileNode(idx.root, j.path)
				if node != nil {
					results <- node
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for node := range results {
			idx.mu.Lock()
			idx.files[node.Path] = node
			idx.mu.Unlock()
		}
	}()

	walkErr := filepath.Walk(idx.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if ignoredDirNames[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > maxIndexedFileSize {
			return nil
		}
		rel, relErr := filepath.Rel(idx.root, path)
		if relErr != nil {
			return nil
		}
		jobs <- job{path: rel}
		return nil
	})
	close(jobs)
	wg.Wait()
	close(results)
	<-done

	idx.log.Info("workspace index built", zap.Int("files", idx.Count()), zap.Error(walkErr))
	return walkErr
}

// Count returns the number of indexed files.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.files)
}

// Refresh re-indexes a single file after a txn commit touches it, avoiding a
// full workspace rewalk for every edit.
func (idx *Index) Refresh(relPath string) {
	node := buildFileNode(idx.root, relPath)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if node == nil {
		delete(idx.files, relPath)
		return
	}
	idx.files[relPath] = node
	idx.cache.Purge()
}

func buildFileNode(root, rel string) *FileNode {
	abs := filepath.Join(root, rel)
	info, err := os.Stat(abs)
	if err != nil {
		return nil
	}
	node := &FileNode{
		Path:    filepath.ToSlash(rel),
		AbsPath: abs,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	node.Type = classifyFileType(rel)
	node.Priority = priorityFor(node.Type, rel)

	if isSymbolSource(rel) {
		if data, err := os.ReadFile(abs); err == nil {
			node.Symbols = ExtractSymbols(rel, string(data))
		}
	}
	return node
}

func classifyFileType(rel string) FileType {
	base := filepath.Base(rel)
	lower := strings.ToLower(base)
	ext := strings.ToLower(filepath.Ext(rel))

	switch {
	case strings.Contains(lower, "_test.") || strings.Contains(lower, ".test.") || strings.HasPrefix(lower, "test_"):
		return FileTypeTest
	case ext == ".md" || ext == ".rst" || ext == ".txt":
		return FileTypeDoc
	case ext == ".json" || ext == ".yaml" || ext == ".yml" || ext == ".toml" || lower == "dockerfile":
		return FileTypeConfig
	case ext == ".py" || ext == ".js" || ext == ".ts" || ext == ".jsx" || ext == ".tsx" || ext == ".go" || ext == ".rs" || ext == ".java" || ext == ".rb":
		return FileTypeSource
	default:
		return FileTypeOther
	}
}

// priorityFor ranks files for ordering in structure/search output: source
// code ranks highest, then config, then docs, then tests (noisy but still
// relevant), then everything else.
func priorityFor(t FileType, rel string) int {
	base := 0
	switch t {
	case FileTypeSource:
		base = 100
	case FileTypeConfig:
		base = 70
	case FileTypeDoc:
		base = 50
	case FileTypeTest:
		base = 40
	default:
		base = 10
	}
	depth := strings.Count(filepath.ToSlash(rel), "/")
	return base - depth
}

func isSymbolSource(rel string) bool {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".py", ".js", ".ts", ".jsx", ".tsx":
		return true
	}
	return false
}

// Structure renders a textual project tree rooted at path, ordered by
// priority within each directory, honoring an optional depth cutoff.
func (idx *Index) Structure(ctx context.Context, subPath string, depth int) (string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	prefix := filepath.ToSlash(subPath)
	var nodes []*FileNode
	for _, n := range idx.files {
		if prefix != "" && prefix != "." && !strings.HasPrefix(n.Path, prefix) {
			continue
		}
		if depth >= 0 {
			rel := strings.TrimPrefix(strings.TrimPrefix(n.Path, prefix), "/")
			if strings.Count(rel, "/") > depth {
				continue
			}
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Priority != nodes[j].Priority {
			return nodes[i].Priority > nodes[j].Priority
		}
		return nodes[i].Path < nodes[j].Path
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d files indexed under %q\n\n", len(nodes), subPath))
	for _, n := range nodes {
		sb.WriteString(fmt.Sprintf("%-60s %-8s %6d bytes  %d symbols\n", n.Path, n.Type, n.Size, len(n.Symbols)))
	}
	return sb.String(), nil
}

// Symbols returns the extracted symbol outline for a single indexed file,
// re-extracting live if the file isn't cached (e.g. just written).
func (idx *Index) Symbols(ctx context.Context, relPath string) (string, error) {
	relPath = filepath.ToSlash(relPath)
	idx.mu.RLock()
	node, ok := idx.files[relPath]
	idx.mu.RUnlock()
	if !ok {
		abs := filepath.Join(idx.root, relPath)
		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("not indexed: %s", relPath)
		}
		idx.Refresh(relPath)
		idx.mu.RLock()
		node = idx.files[relPath]
		idx.mu.RUnlock()
		if node == nil {
			return "", fmt.Errorf("not indexed: %s", relPath)
		}
	}
	if len(node.Symbols) == 0 {
		return fmt.Sprintf("%s: no symbols extracted (unsupported language or no top-level definitions)", relPath), nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s:\n", relPath))
	for _, s := range node.Symbols {
		sb.WriteString(fmt.Sprintf("  %d: %s %s\n", s.Line, s.Kind, s.Name))
	}
	return sb.String(), nil
}
