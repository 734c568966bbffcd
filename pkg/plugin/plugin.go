// Package plugin defines the reporter plugin lifecycle and registry.
package plugin

import "context"

// Plugin is the base interface for all plugins.
// Init is called once with the plugin's config map, then Start, then Stop.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
