// Package registry loads a set of dictionaries from a ServerConfig
// and routes incoming lookups to the right one by URL route segment
// or dictionary ID, the way a multi-dictionary deployment answers
// several distinct MDX containers under one server.
package registry

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"mdictd.org/pkg/dictionary"
	"mdictd.org/pkg/mdconfig"
)

// Entry describes one registered dictionary's load state, used to
// answer the catalog listing endpoint. Status is "loaded" for a
// dictionary serving lookups and "error" for one that was configured
// but failed to open.
type Entry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Route   string `json:"route"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
}

// Registry holds every successfully loaded Dictionary plus the
// configuration describing all dictionaries, loaded or not, so the
// catalog endpoint can report load failures alongside successes.
type Registry struct {
	config mdconfig.ServerConfig
	dicts  map[string]*dictionary.Dictionary
	routes map[string]string // route -> dict id

	// resourceIndex maps a normalized MDD resource path (see
	// normalizeResourcePath) to the dictionary that first registered it
	// plus the raw key it is stored under there; populated once at Load
	// and read-only thereafter, so concurrent resource lookups need no
	// locking (container.Reader.ReadRecord is safe for concurrent use).
	resourceIndex map[string]resourceRef
}

// resourceRef records where a normalized resource path actually lives:
// which dictionary, and under which raw (backslash-delimited) MDD key.
type resourceRef struct {
	dictID string
	key    string
}

// Load builds a Registry from cfg: every enabled dictionary's path is
// resolved relative to the working directory, opened, and indexed
// (building the on-disk index on first load or schema mismatch). A
// dictionary that fails to load is logged and skipped rather than
// aborting the whole server, matching how a partially available
// multi-dictionary deployment degrades. Once every dictionary has
// loaded, their MDD resource keys are merged into one cross-dictionary
// lookup index, first writer wins.
func Load(cfg mdconfig.ServerConfig) (*Registry, error) {
	r := &Registry{
		config:        cfg,
		dicts:         make(map[string]*dictionary.Dictionary),
		routes:        make(map[string]string),
		resourceIndex: make(map[string]resourceRef),
	}

	// Deterministic load order so "first writer wins" in the resource
	// index is reproducible across runs rather than a function of Go's
	// randomized map iteration.
	ids := make([]string, 0, len(cfg.Dictionaries))
	for id := range cfg.Dictionaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		dc := cfg.Dictionaries[id]
		if !dc.Enabled {
			continue
		}
		path := dc.Path
		if !filepath.IsAbs(path) {
			abs, err := filepath.Abs(path)
			if err == nil {
				path = abs
			}
		}

		d, err := dictionary.Open(id, dc.Name, path, dictionary.Options{
			ResourceOverlayDir: cfg.ResourceDirectory,
		})
		if err != nil {
			log.Printf("registry: failed to load dictionary %s (%s): %v", id, path, err)
			continue
		}
		r.dicts[id] = d
		r.routes[dc.Route] = id
	}

	r.buildResourceIndex()

	return r, nil
}

// buildResourceIndex enumerates every loaded dictionary's MDD keys,
// normalizes each path, and registers the first dictionary to claim
// it. A key is only registered once its content is verified non-empty
// by an actual read.
func (r *Registry) buildResourceIndex() {
	ids := make([]string, 0, len(r.dicts))
	for id := range r.dicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ctx := context.Background()
	for _, id := range ids {
		d := r.dicts[id]
		keys, err := d.ResourceKeys(ctx, "")
		if err != nil {
			log.Printf("registry: listing resource keys for %s: %v", id, err)
			continue
		}
		for _, key := range keys {
			norm := normalizeResourcePath(key)
			if norm == "" {
				continue
			}
			if _, taken := r.resourceIndex[norm]; taken {
				continue
			}
			if data, err := d.IndexResource(ctx, key); err != nil || len(data) == 0 {
				continue
			}
			r.resourceIndex[norm] = resourceRef{dictID: id, key: key}
		}
	}
}

// normalizeResourcePath converts a raw MDD key (backslash-delimited,
// possibly rooted at a "html/" segment) into the canonical form used
// to key the cross-dictionary resource index: forward slashes, no
// leading slash, no leading "html/" segment.
func normalizeResourcePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.TrimLeft(p, "/")
	p = strings.TrimPrefix(p, "html/")
	return p
}

// Close closes every loaded dictionary.
func (r *Registry) Close() error {
	var firstErr error
	for _, d := range r.dicts {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ByRoute returns the dictionary registered for route. An empty route
// resolves to the dictionary configured with id "default", or the
// first available dictionary if none carries that id, matching the
// convention that a bare request with no route segment hits whatever
// the operator considers the primary dictionary.
func (r *Registry) ByRoute(route string) (*dictionary.Dictionary, bool) {
	if route == "" {
		if d, ok := r.dicts["default"]; ok {
			return d, true
		}
		// No dictionary claims the "default" id: fall back to the first
		// loaded one in stable order.
		ids := make([]string, 0, len(r.dicts))
		for id := range r.dicts {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > 0 {
			return r.dicts[ids[0]], true
		}
		return nil, false
	}
	id, ok := r.routes[route]
	if !ok {
		return nil, false
	}
	d, ok := r.dicts[id]
	return d, ok
}

// ByID returns the dictionary registered under dictID directly.
func (r *Registry) ByID(dictID string) (*dictionary.Dictionary, bool) {
	d, ok := r.dicts[dictID]
	return d, ok
}

// Resolve finds a dictionary by route first and falls back to
// treating the same token as a dictionary ID, matching how a
// route-or-id URL segment is interpreted.
func (r *Registry) Resolve(routeOrID string) (*dictionary.Dictionary, bool) {
	if d, ok := r.ByRoute(routeOrID); ok {
		return d, true
	}
	return r.ByID(routeOrID)
}

// Query looks up word in the dictionary named by routeOrID, returning
// its rendered definition HTML.
func (r *Registry) Query(ctx context.Context, routeOrID, word string) (string, error) {
	d, ok := r.Resolve(routeOrID)
	if !ok {
		return "", fmt.Errorf("registry: no dictionary for %q", routeOrID)
	}
	return d.LookupText(ctx, word)
}

// GlobalResource resolves a resource path against every loaded
// dictionary: the cross-dictionary index built at Load, then a linear
// scan of every dictionary's own index as a legacy fallback (for path
// variants the normalized index missed), then a filesystem read
// relative to the default dictionary's directory. It is used for
// request paths with no leading route segment.
func (r *Registry) GlobalResource(ctx context.Context, path string) ([]byte, error) {
	norm := normalizeResourcePath(path)
	if ref, ok := r.resourceIndex[norm]; ok {
		if d, ok := r.dicts[ref.dictID]; ok {
			if data, err := d.IndexResource(ctx, ref.key); err == nil {
				return data, nil
			}
		}
	}

	ids := make([]string, 0, len(r.dicts))
	for id := range r.dicts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if data, err := r.dicts[id].IndexResource(ctx, path); err == nil {
			return data, nil
		}
	}

	if d, ok := r.ByRoute(""); ok {
		if data, err := d.FilesystemFallback(path); err == nil {
			return data, nil
		}
	}

	return nil, dictionary.ErrNotFound
}

// Routes returns every route currently answering a loaded dictionary.
func (r *Registry) Routes() []string {
	routes := make([]string, 0, len(r.routes))
	for route, id := range r.routes {
		if _, ok := r.dicts[id]; ok && route != "" {
			routes = append(routes, route)
		}
	}
	return routes
}

// List returns the full catalog in stable (id-sorted) order,
// including dictionaries configured but not successfully loaded.
func (r *Registry) List() []Entry {
	ids := make([]string, 0, len(r.config.Dictionaries))
	for id := range r.config.Dictionaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		dc := r.config.Dictionaries[id]
		status := "error"
		if _, ok := r.dicts[id]; ok {
			status = "loaded"
		}
		out = append(out, Entry{
			ID:      id,
			Name:    dc.Name,
			Route:   dc.Route,
			Path:    dc.Path,
			Enabled: dc.Enabled,
			Status:  status,
		})
	}
	return out
}

// Healthy reports whether at least one dictionary loaded successfully.
func (r *Registry) Healthy() bool {
	return len(r.dicts) > 0
}

// Dictionaries returns every loaded dictionary, used to build a
// cross-dictionary static resource index.
func (r *Registry) Dictionaries() map[string]*dictionary.Dictionary {
	return r.dicts
}
