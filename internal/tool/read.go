package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxReadChars = 30000

// ReadTool reads file contents with line-range pagination. Images and
// PDFs are returned as attachments; other binary files are rejected outright.
func ReadTool() *ToolDef {
	return &ToolDef{
		Name:           "read_file",
		Classification: ClassReadonly,
		Description:    "Read file contents, numbered by line. Paginated at 30,000 characters unless end_line is given; pass start_line (or offset) to continue. Images and PDFs returned as attachments.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "The absolute or relative file path to read",
				},
				"start_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-based line to start reading from. Default: 1",
				},
				"end_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-based inclusive line to stop reading at. When given, reads exactly that range regardless of the character budget.",
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Alias for start_line.",
				},
			},
			"required": []string{"file_path"},
		},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			path, _ := input["file_path"].(string)
			if path == "" {
				return &ToolResult{Output: "Error: file_path is required", IsError: true}, nil
			}
			if !filepath.IsAbs(path) && tc.WorkDir != "" {
				path = filepath.Join(tc.WorkDir, path)
			}

			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return handleFileNotFound(path)
				}
				return &ToolResult{Output: fmt.Sprintf("Error reading file: %v", err), IsError: true}, nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			mime := getMIMEType(ext)

			if isImageMIME(mime) && mime != "image/svg+xml" {
				return handleImageFile(path, data, mime, tc)
			}
			if mime == "application/pdf" {
				return handlePDFFile(path, data, mime, tc)
			}
			if isBinaryFile(ext, data) {
				return &ToolResult{Output: fmt.Sprintf("Cannot read binary file: %s", path), IsError: true}, nil
			}

			return readTextFile(path, data, input)
		},
	}
}

func handleFileNotFound(path string) (*ToolResult, error) {
	dir := filepath.Dir(path)
	entries, _ := os.ReadDir(dir)
	var suggestions []string
	base := filepath.Base(path)
	prefix := base
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name()), strings.ToLower(prefix)) {
			suggestions = append(suggestions, e.Name())
		}
	}
	msg := fmt.Sprintf("File not found: %s", path)
	if len(suggestions) > 0 {
		msg += fmt.Sprintf("\nDid you mean: %s", strings.Join(suggestions, ", "))
	}
	return &ToolResult{Output: msg, IsError: true}, nil
}

func handleImageFile(path string, data []byte, mime string, tc *ToolContext) (*ToolResult, error) {
	b64 := base64.StdEncoding.EncodeToString(data)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, b64)
	attachment := FileAttachment{ID: filepath.Base(path), Type: "file", MIME: mime, URL: dataURL, Filename: filepath.Base(path)}
	if tc != nil {
		attachment.SessionID = tc.SessionID
		attachment.MessageID = tc.MessageID
	}
	return &ToolResult{Output: "Image read successfully", Attachments: []FileAttachment{attachment}}, nil
}

func handlePDFFile(path string, data []byte, mime string, tc *ToolContext) (*ToolResult, error) {
	b64 := base64.StdEncoding.EncodeToString(data)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, b64)
	attachment := FileAttachment{ID: filepath.Base(path), Type: "file", MIME: mime, URL: dataURL, Filename: filepath.Base(path)}
	if tc != nil {
		attachment.SessionID = tc.SessionID
		attachment.MessageID = tc.MessageID
	}
	return &ToolResult{Output: "PDF read successfully", Attachments: []FileAttachment{attachment}}, nil
}

// readTextFile implements the line-range pagination contract: content is
// split into numbered "<n>: <content>" lines starting at start_line (1-based,
// offset is an alias). Without end_line, output is capped at maxReadChars and
// has_more/next_offset (a 1-based line number) are surfaced so the model
// knows to continue. With end_line, that exact range is returned regardless
// of the character budget.
func readTextFile(path string, data []byte, input map[string]interface{}) (*ToolResult, error) {
	content := string(data)
	totalChars := len(content)
	var lines []string
	if content == "" {
		lines = nil
	} else {
		lines = strings.Split(content, "\n")
	}
	totalLines := len(lines)

	startLine := 1
	if v, ok := input["start_line"].(float64); ok && v > 0 {
		startLine = int(v)
	} else if v, ok := input["offset"].(float64); ok && v > 0 {
		startLine = int(v)
	}
	if startLine < 1 {
		startLine = 1
	}

	endLine := 0
	hasEndLine := false
	if v, ok := input["end_line"].(float64); ok && v > 0 {
		endLine = int(v)
		hasEndLine = true
	}

	if totalLines == 0 {
		header := fmt.Sprintf("File: %s\ntotal_lines: 0\ntotal_chars: 0\nshowing: lines 0-0\nhas_more: false\n", path)
		return &ToolResult{Output: header}, nil
	}

	if startLine > totalLines {
		return &ToolResult{Output: fmt.Sprintf("start_line %d exceeds file length (%d lines)", startLine, totalLines)}, nil
	}

	if hasEndLine {
		if endLine > totalLines {
			endLine = totalLines
		}
		if endLine < startLine {
			endLine = startLine
		}
		var sb strings.Builder
		for i := startLine; i <= endLine; i++ {
			sb.WriteString(fmt.Sprintf("%d: %s\n", i, lines[i-1]))
		}
		header := fmt.Sprintf("File: %s\ntotal_lines: %d\ntotal_chars: %d\nshowing: lines %d-%d\nhas_more: %v\n",
			path, totalLines, totalChars, startLine, endLine, endLine < totalLines)
		return &ToolResult{Output: header + "\n" + sb.String()}, nil
	}

	// Walk lines accumulating chars (including the "<n>: " numbering prefix)
	// until the budget is exhausted, starting at start_line.
	var sb strings.Builder
	charCount := 0
	consumed := startLine - 1
	hasMore := false
	nextOffset := 0

	for i := startLine; i <= totalLines; i++ {
		prefix := fmt.Sprintf("%d: ", i)
		entry := prefix + lines[i-1] + "\n"
		if charCount+len(entry) > maxReadChars && charCount > 0 {
			hasMore = true
			nextOffset = i
			break
		}
		sb.WriteString(entry)
		charCount += len(entry)
		consumed = i
	}

	header := fmt.Sprintf("File: %s\ntotal_lines: %d\ntotal_chars: %d\nshowing: lines %d-%d\nhas_more: %v\n",
		path, totalLines, totalChars, startLine, consumed, hasMore)
	if hasMore {
		header += fmt.Sprintf("next_offset: %d\nCONTINUE: call read_file again with start_line=%d to see the rest\n", nextOffset, nextOffset)
	}
	return &ToolResult{Output: header + "\n" + sb.String()}, nil
}

func getMIMEType(ext string) string {
	mimeTypes := map[string]string{
		".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg",
		".gif": "image/gif", ".webp": "image/webp", ".bmp": "image/bmp",
		".ico": "image/x-icon", ".svg": "image/svg+xml", ".tiff": "image/tiff",
		".tif": "image/tiff", ".avif": "image/avif", ".heic": "image/heic",
		".pdf": "application/pdf",
		".mp3": "audio/mpeg", ".wav": "audio/wav", ".ogg": "audio/ogg",
		".mp4": "video/mp4", ".webm": "video/webm", ".mov": "video/quicktime",
		".zip": "application/zip", ".tar": "application/x-tar", ".gz": "application/gzip",
		".exe": "application/x-msdownload", ".dll": "application/x-msdownload",
		".so": "application/x-sharedlib", ".wasm": "application/wasm",
		".doc": "application/msword", ".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
	if m, ok := mimeTypes[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

func isImageMIME(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

// isBinaryFile detects binary content via extension then a null-byte / high
// non-printable-ratio probe over the first 4KiB.
func isBinaryFile(ext string, data []byte) bool {
	binaryExtensions := map[string]bool{
		".zip": true, ".tar": true, ".gz": true, ".7z": true, ".rar": true,
		".exe": true, ".dll": true, ".so": true, ".o": true, ".a": true,
		".lib": true, ".wasm": true, ".dylib": true,
		".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
		".class": true, ".jar": true, ".pyc": true, ".pyo": true,
		".bin": true, ".dat": true, ".obj": true,
		".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true,
		".ttf": true, ".otf": true, ".woff": true, ".woff2": true,
		".db": true, ".sqlite": true, ".sqlite3": true, ".iso": true, ".img": true,
	}
	if binaryExtensions[ext] {
		return true
	}
	if len(data) == 0 {
		return false
	}
	sampleSize := 4096
	if len(data) < sampleSize {
		sampleSize = len(data)
	}
	sample := data[:sampleSize]
	nonPrintable := 0
	for _, b := range sample {
		if b == 0 {
			return true
		}
		if b < 9 || (b > 13 && b < 32) {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}
