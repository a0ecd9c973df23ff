package catalog

import (
	"fmt"

	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/session"
)

// RegisterBuiltinPrompts returns the built-in prompts this server ships
// with. describe_dataset renders a single user message steering an
// assistant toward calling stats.summary before narrating a dataset,
// rather than guessing at column semantics from the raw file.
func RegisterBuiltinPrompts() []Prompt {
	return []Prompt{
		{
			Name:        "describe_dataset",
			Description: "Summarize a dataset by calling stats.summary first, then explaining the result in plain language.",
			Arguments: []mcpschema.PromptArgument{
				{Name: "dataset_path", Required: true, Description: "VFS-resolvable path to the dataset file."},
			},
			Renderer: describeDatasetRenderer,
		},
	}
}

func describeDatasetRenderer(ctx *session.Context, arguments map[string]string) ([]mcpschema.PromptMessage, error) {
	path, ok := arguments["dataset_path"]
	if !ok || path == "" {
		return nil, fmt.Errorf("catalog: describe_dataset requires dataset_path")
	}
	text := fmt.Sprintf(
		"Call the stats.summary tool with dataset_path=%q, then explain the resulting "+
			"mean, standard deviation, and quartiles for a non-technical audience.",
		path,
	)
	return []mcpschema.PromptMessage{
		{Role: "user", Content: mcpschema.TextContent(text)},
	}, nil
}
