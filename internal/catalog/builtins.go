package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/arborist-labs/statmcp/internal/approval"
	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/session"
	"github.com/arborist-labs/statmcp/internal/vfs"
	"github.com/arborist-labs/statmcp/internal/worker"
)

// Deps bundles the lower-layer collaborators a built-in tool handler
// needs: the worker bridge to run the actual statistical script, the VFS
// to resolve any path argument before handing it to the worker, and the
// approval registry to gate script fragments that touch the filesystem,
// install packages, or shell out.
type Deps struct {
	Worker   *worker.Bridge
	VFS      *vfs.VFS
	Approval *approval.Registry
}

var summaryInputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "dataset_path": {"type": "string"},
    "columns": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["dataset_path"]
}`)

var ttestInputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "dataset_path": {"type": "string"},
    "group_column": {"type": "string"},
    "value_column": {"type": "string"},
    "alpha": {"type": "number", "default": 0.05}
  },
  "required": ["dataset_path", "group_column", "value_column"]
}`)

// RegisterBuiltins returns the built-in statistical tools this server
// ships with. Each handler validates its dataset path through the VFS,
// runs the approval gate against the rendered worker invocation, and
// dispatches to the worker bridge; the numerical correctness of the
// underlying script is an external collaborator's concern (spec.md §1).
func RegisterBuiltins(deps Deps) []Tool {
	return []Tool{
		{
			Name:        "stats.summary",
			Title:       "Summary statistics",
			Description: "Computes descriptive statistics (mean, stddev, quartiles) for the given columns of a dataset.",
			InputSchema: summaryInputSchema,
			Handler:     summaryHandler(deps),
		},
		{
			Name:        "stats.ttest",
			Title:       "Two-sample t-test",
			Description: "Runs a two-sample t-test comparing value_column across the two levels of group_column.",
			InputSchema: ttestInputSchema,
			Handler:     ttestHandler(deps),
		},
	}
}

func summaryHandler(deps Deps) ToolHandler {
	return func(ctx *session.Context, arguments json.RawMessage) (*mcpschema.ToolResult, error) {
		var args struct {
			DatasetPath string   `json:"dataset_path"`
			Columns     []string `json:"columns"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil {
			return mcpschema.ErrorToolResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return runScript(ctx, deps, "stats_summary", map[string]any{
			"dataset_path": args.DatasetPath,
			"columns":      args.Columns,
		})
	}
}

func ttestHandler(deps Deps) ToolHandler {
	return func(ctx *session.Context, arguments json.RawMessage) (*mcpschema.ToolResult, error) {
		var args struct {
			DatasetPath  string  `json:"dataset_path"`
			GroupColumn  string  `json:"group_column"`
			ValueColumn  string  `json:"value_column"`
			Alpha        float64 `json:"alpha"`
		}
		args.Alpha = 0.05
		if err := json.Unmarshal(arguments, &args); err != nil {
			return mcpschema.ErrorToolResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		return runScript(ctx, deps, "stats_ttest", map[string]any{
			"dataset_path":  args.DatasetPath,
			"group_column":  args.GroupColumn,
			"value_column":  args.ValueColumn,
			"alpha":         args.Alpha,
		})
	}
}

// runScript resolves dataset_path through the VFS (if present), gates the
// invocation against the approval registry, and delegates to the worker
// bridge, translating the result into a ToolResult.
func runScript(ctx *session.Context, deps Deps, scriptID string, args map[string]any) (*mcpschema.ToolResult, error) {
	if path, ok := args["dataset_path"].(string); ok && path != "" && deps.VFS != nil {
		entry, _, err := deps.VFS.OpenRead(path)
		if err != nil {
			return nil, err
		}
		args["dataset_path"] = entry.CanonicalPath
	}

	if deps.Approval != nil {
		text := fmt.Sprintf("%s %v", scriptID, args)
		if _, err := approval.Gate(deps.Approval, ctx.Session, text, ctx.Elicit); err != nil {
			return nil, err
		}
	}

	raw, err := deps.Worker.Invoke(ctx, ctx.Session.ID(), scriptID, args, ctx.Cancel.Done())
	if err != nil {
		return nil, err
	}
	return mcpschema.FormatWorkerResult(raw)
}
