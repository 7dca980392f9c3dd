package tool

import (
	"context"
)

// UndoTool reverts the most recent committed transaction via the workspace's
// TransactionManager.
func UndoTool() *ToolDef {
	return &ToolDef{
		Name:           "undo",
		Classification: ClassDestructive,
		Description:    "Revert the most recent committed file change.",
		Parameters:     map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Txn == nil {
				return &ToolResult{Output: "transaction manager is not available", IsError: true}, nil
			}
			res, err := tc.Txn.Undo()
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: formatTxnResult("Undid change to", res), DiffDataList: res.Diffs}, nil
		},
	}
}

// RedoTool re-applies the most recently undone transaction.
func RedoTool() *ToolDef {
	return &ToolDef{
		Name:           "redo",
		Classification: ClassDestructive,
		Description:    "Re-apply the most recently undone file change.",
		Parameters:     map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		Execute: func(ctx context.Context, tc *ToolContext, input map[string]interface{}) (*ToolResult, error) {
			if tc.Txn == nil {
				return &ToolResult{Output: "transaction manager is not available", IsError: true}, nil
			}
			res, err := tc.Txn.Redo()
			if err != nil {
				return &ToolResult{Output: err.Error(), IsError: true}, nil
			}
			return &ToolResult{Output: formatTxnResult("Redid change to", res), DiffDataList: res.Diffs}, nil
		},
	}
}

func formatTxnResult(verb string, res *TxnCommitResult) string {
	if res == nil || len(res.Changed) == 0 {
		return verb + " (nothing to do)"
	}
	out := verb + ":"
	for _, f := range res.Changed {
		out += "\n  " + f
	}
	return out
}
