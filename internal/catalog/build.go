package catalog

import "github.com/arborist-labs/statmcp/internal/registry"

// Catalog bundles the four closed registrars a mcpserver.Server needs.
// Built once at process startup (spec.md §3's "registered during process
// startup and never removed"); safe for concurrent read-only use after
// Build returns.
type Catalog struct {
	Tools             *registry.Registrar[Tool]
	Resources         *registry.Registrar[Resource]
	ResourceTemplates *registry.Registrar[ResourceTemplate]
	Prompts           *registry.Registrar[Prompt]
}

// Build registers every built-in tool, resource, and prompt into fresh
// registrars and closes them against further registration: a Register
// call on any of the returned registrars fails with registry.ErrClosed,
// so the catalog holds exactly the built-in entries.
func Build(deps Deps) (*Catalog, error) {
	tools := registry.NewRegistrar[Tool](func(t Tool) string { return t.Name })
	for _, t := range RegisterBuiltins(deps) {
		if err := tools.Register(t); err != nil {
			return nil, err
		}
	}
	tools.Close()

	resources := registry.NewRegistrar[Resource](func(r Resource) string { return r.URI })
	for _, r := range RegisterBuiltinResources(deps) {
		if err := resources.Register(r); err != nil {
			return nil, err
		}
	}
	resources.Close()

	templates := registry.NewRegistrar[ResourceTemplate](func(t ResourceTemplate) string { return t.URITemplate })
	templates.Close()

	prompts := registry.NewRegistrar[Prompt](func(p Prompt) string { return p.Name })
	for _, p := range RegisterBuiltinPrompts() {
		if err := prompts.Register(p); err != nil {
			return nil, err
		}
	}
	prompts.Close()

	return &Catalog{
		Tools:             tools,
		Resources:         resources,
		ResourceTemplates: templates,
		Prompts:           prompts,
	}, nil
}
