// Package catalog fetches and indexes the tool catalog consumed by
// node creation and validation. The catalog is loaded once and treated
// as read-only for the session; Refresh refetches on explicit retry.
package catalog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hexlane/reconchain/pkg/api"
	"github.com/hexlane/reconchain/pkg/schema"
)

const toolsPath = "/tools/api/tools"

// toolsPayload is the data field of GET /tools/api/tools.
type toolsPayload struct {
	Categories map[string][]schema.ToolMeta `json:"categories"`
	// Stages orders tool categories: discovery before enumeration
	// before analysis, etc. Lower numbers run earlier.
	Stages map[string]int `json:"stages,omitempty"`
}

// Adapter indexes the remote tool catalog by slug.
type Adapter struct {
	client *api.Client
	logger *slog.Logger

	mu     sync.RWMutex
	index  map[string]schema.ToolMeta
	stages map[string]int // category -> stage order
	loaded bool
}

// NewAdapter creates an Adapter over the given API client.
func NewAdapter(client *api.Client, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client: client,
		logger: logger,
		index:  make(map[string]schema.ToolMeta),
		stages: make(map[string]int),
	}
}

// Load fetches and indexes the catalog. Idempotent: a second call is a
// no-op unless the first failed. Malformed entries are skipped, never fatal.
func (a *Adapter) Load(ctx context.Context) error {
	a.mu.RLock()
	loaded := a.loaded
	a.mu.RUnlock()
	if loaded {
		return nil
	}
	return a.Refresh(ctx)
}

// Refresh refetches the catalog unconditionally.
func (a *Adapter) Refresh(ctx context.Context) error {
	var payload toolsPayload
	if err := a.client.Get(ctx, toolsPath, nil, &payload); err != nil {
		return err
	}

	index := make(map[string]schema.ToolMeta)
	for category, tools := range payload.Categories {
		for _, meta := range tools {
			if meta.Slug == "" {
				a.logger.Warn("skipping catalog entry without slug", "category", category)
				continue
			}
			if meta.Category == "" {
				meta.Category = category
			}
			if _, dup := index[meta.Slug]; dup {
				a.logger.Warn("duplicate catalog slug", "slug", meta.Slug)
				continue
			}
			index[meta.Slug] = meta
		}
	}

	a.mu.Lock()
	a.index = index
	a.stages = payload.Stages
	if a.stages == nil {
		a.stages = make(map[string]int)
	}
	a.loaded = true
	a.mu.Unlock()

	a.logger.Info("tool catalog loaded", "tools", len(index), "stages", len(a.stages))
	return nil
}

// Resolve looks up a tool by slug.
func (a *Adapter) Resolve(slug string) (schema.ToolMeta, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	meta, ok := a.index[slug]
	return meta, ok
}

// ResolveOrFallback looks up a tool by slug, degrading to a named-only
// entry when the slug is unknown so hydration never hard-fails.
func (a *Adapter) ResolveOrFallback(slug string) schema.ToolMeta {
	if meta, ok := a.Resolve(slug); ok {
		return meta
	}
	return schema.ToolMeta{Slug: slug, Name: slug}
}

// StageOf returns the stage order of a tool's category, or 0 when the
// tool or its category is not in the stage map.
func (a *Adapter) StageOf(slug string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	meta, ok := a.index[slug]
	if !ok {
		return 0
	}
	if meta.Stage > 0 {
		return meta.Stage
	}
	return a.stages[meta.Category]
}

// Buckets returns the declared io policy of a tool, or an empty policy
// when the slug is unknown.
func (a *Adapter) Buckets(slug string) schema.IOPolicy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.index[slug].IOPolicy
}

// Tools returns all indexed tool metadata (unordered copy).
func (a *Adapter) Tools() []schema.ToolMeta {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]schema.ToolMeta, 0, len(a.index))
	for _, meta := range a.index {
		out = append(out, meta)
	}
	return out
}

// Loaded reports whether a catalog has been successfully indexed.
func (a *Adapter) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded
}
