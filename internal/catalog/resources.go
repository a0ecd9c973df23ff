package catalog

import (
	"encoding/json"

	"github.com/arborist-labs/statmcp/internal/mcpschema"
	"github.com/arborist-labs/statmcp/internal/session"
)

// RegisterBuiltinResources returns the built-in resources this server
// ships with. workspace.roots is a read-only introspection resource: it
// lets a client discover which directories the VFS allow-list currently
// covers without guessing at dataset_path values by trial and error.
func RegisterBuiltinResources(deps Deps) []Resource {
	return []Resource{
		{
			URI:         "workspace.roots",
			Name:        "Workspace roots",
			Description: "The VFS allow-list roots dataset_path arguments may resolve under.",
			MimeType:    "application/json",
			Reader:      workspaceRootsReader(deps),
		},
	}
}

func workspaceRootsReader(deps Deps) ResourceReader {
	return func(ctx *session.Context, uri string) ([]mcpschema.ContentItem, error) {
		var roots []string
		if deps.VFS != nil {
			roots = deps.VFS.Roots()
		}
		raw, err := json.Marshal(map[string]any{"roots": roots})
		if err != nil {
			return nil, err
		}
		return []mcpschema.ContentItem{mcpschema.JSONContent(raw)}, nil
	}
}
