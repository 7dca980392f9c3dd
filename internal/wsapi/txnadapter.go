package wsapi

import (
	"path/filepath"
	"strings"

	"github.com/maeum-labs/maeum-ide/internal/tool"
	"github.com/maeum-labs/maeum-ide/internal/txn"
)

// txnAdapter implements tool.TransactionRunner over a *txn.Manager,
// translating between txn's package-local CommitResult/DiffData and
// tool's locally-mirrored equivalents so neither package imports the other.
type txnAdapter struct {
	m *txn.Manager
}

func newTxnAdapter(m *txn.Manager) *txnAdapter {
	return &txnAdapter{m: m}
}

func (a *txnAdapter) Begin(description string) string { return a.m.Begin(description) }

func (a *txnAdapter) Write(txnID, path, content string) error {
	return a.m.Write(txnID, path, content)
}

func (a *txnAdapter) Edit(txnID, path, oldStr, newStr string, replaceAll bool) error {
	return a.m.Edit(txnID, path, oldStr, newStr, replaceAll)
}

func (a *txnAdapter) EditRange(txnID, path string, startLine, endLine int, newContent string) error {
	return a.m.EditRange(txnID, path, startLine, endLine, newContent)
}

func (a *txnAdapter) Delete(txnID, path string) error { return a.m.Delete(txnID, path) }

func (a *txnAdapter) Rename(txnID, oldPath, newPath string) error {
	return a.m.Rename(txnID, oldPath, newPath)
}

func (a *txnAdapter) Rollback(txnID string) error { return a.m.Rollback(txnID) }

func (a *txnAdapter) Commit(txnID string, dryRun bool) (*tool.TxnCommitResult, error) {
	res, err := a.m.Commit(txnID, dryRun)
	if err != nil {
		return nil, err
	}
	return convertCommitResult(res), nil
}

func (a *txnAdapter) Undo() (*tool.TxnCommitResult, error) {
	res, err := a.m.Undo()
	if err != nil {
		return nil, err
	}
	return convertCommitResult(res), nil
}

func (a *txnAdapter) Redo() (*tool.TxnCommitResult, error) {
	res, err := a.m.Redo()
	if err != nil {
		return nil, err
	}
	return convertCommitResult(res), nil
}

func convertCommitResult(res *txn.CommitResult) *tool.TxnCommitResult {
	if res == nil {
		return &tool.TxnCommitResult{}
	}
	out := &tool.TxnCommitResult{Changed: res.Changed}
	for _, d := range res.Diffs {
		out.Diffs = append(out.Diffs, convertDiffData(d))
	}
	return out
}

func convertDiffData(d *txn.DiffData) *tool.DiffData {
	if d == nil {
		return nil
	}
	return &tool.DiffData{
		OldContent: d.OldContent,
		NewContent: d.NewContent,
		FilePath:   d.FilePath,
		Language:   inferLanguage(d.FilePath),
	}
}

// inferLanguage mirrors internal/tool's unexported helper of the same name;
// duplicated here rather than exported across the package boundary since
// it's a plain extension lookup table, not shared behavior worth coupling the packages over.
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
