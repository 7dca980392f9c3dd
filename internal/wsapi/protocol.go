package wsapi

import "github.com/maeum-labs/maeum-ide/internal/tool"

// clientFrame is one message the IDE client sends over /ws/chat.
type clientFrame struct {
	Type string `json:"type"` // chat | cancel | tool_confirm

	// chat
	Message     string   `json:"message,omitempty"`
	Context     string   `json:"context,omitempty"`      // selection or visible-buffer excerpt
	CurrentFile string   `json:"current_file,omitempty"` // path of the file focused in the editor
	OpenTabs    []string `json:"open_tabs,omitempty"`

	// tool_confirm
	ConfirmationID string `json:"confirmation_id,omitempty"`
	Approved       bool   `json:"approved,omitempty"`
	Answer         string `json:"answer,omitempty"`
}

// serverFrame is one message pushed to the IDE client over /ws/chat, mirroring
// internal/loop.Event's Type field one-for-one plus the two connection-level
// types (open_in_editor, file_modified) the loop doesn't itself emit.
type serverFrame struct {
	Type             string          `json:"type"`
	Content          string          `json:"content,omitempty"`
	ToolName         string          `json:"tool_name,omitempty"`
	ConfirmationID   string          `json:"confirmation_id,omitempty"`
	Iteration        int             `json:"iteration,omitempty"`
	ExplorationCount int             `json:"exploration_count,omitempty"`
	DiffData         *tool.DiffData  `json:"diff_data,omitempty"`
	DiffDataList     []*tool.DiffData `json:"diff_data_list,omitempty"`
	IsError          bool            `json:"is_error,omitempty"`
	Path             string          `json:"path,omitempty"` // open_in_editor, file_modified
}
