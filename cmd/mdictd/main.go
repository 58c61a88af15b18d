/*
Copyright 2011 Google Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command mdictd serves one or more MDX dictionaries over HTTP: plain
// word lookups, MDD-packed or filesystem resources, and a small JSON
// catalog/health surface.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"mdictd.org/pkg/dictionary"
	"mdictd.org/pkg/httpserver"
	"mdictd.org/pkg/mdconfig"
	"mdictd.org/pkg/mimetype"
	"mdictd.org/pkg/registry"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (default: search the usual locations)")
	addr := flag.String("addr", "", "listen address (host:port); overrides config host/port when set")
	flag.Parse()

	baseDir, err := os.Getwd()
	if err != nil {
		log.Fatalf("mdictd: %v", err)
	}

	var cfg mdconfig.ServerConfig
	if *configPath != "" {
		cfg, err = mdconfig.FromFile(*configPath)
	} else {
		cfg, err = mdconfig.Load(baseDir)
	}
	if err != nil {
		log.Fatalf("mdictd: loading config: %v", err)
	}

	reg, err := registry.Load(cfg)
	if err != nil {
		log.Fatalf("mdictd: loading dictionaries: %v", err)
	}
	defer reg.Close()
	if !reg.Healthy() {
		log.Fatalf("mdictd: no dictionary could be loaded from %s", cfg.DictDirectory)
	}

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	threads := cfg.MaxThreads
	if cfg.ServerType == "simple" {
		threads = 1
	}
	srv := httpserver.New(threads, cfg.Debug)
	srv.ConnTimeout = time.Duration(cfg.ConnectionTimeout) * time.Second
	h := &handler{registry: reg, cfg: cfg}
	srv.HandleFunc("/", h.serveHTTP)

	if err := srv.Listen(listenAddr); err != nil {
		log.Fatalf("mdictd: %v", err)
	}
	log.Printf("mdictd ready at %s", srv.ListenURL())
	if err := srv.Serve(); err != nil {
		log.Fatalf("mdictd: server error: %v", err)
	}
}

type handler struct {
	registry *registry.Registry
	cfg      mdconfig.ServerConfig
}

func (h *handler) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/" || path == "":
		h.handleCatalog(w)
		return
	case path == "/health":
		h.handleHealth(w)
		return
	case path == "/api/dicts" || path == "/api/dictionaries":
		h.handleCatalog(w)
		return
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")

	switch len(segments) {
	case 1:
		h.handleSingleSegment(w, r, segments[0])
	default:
		h.handleMultiSegment(w, r, segments)
	}
}

// handleSingleSegment covers "/word" (default dictionary) and
// "/resource.ext" (cross-dictionary resource lookup with filesystem
// fallback).
func (h *handler) handleSingleSegment(w http.ResponseWriter, r *http.Request, seg string) {
	if seg == "" {
		h.handleNotFound(w)
		return
	}
	ext := mimetype.Ext(seg)
	if mimetype.IsResourceExt(ext) {
		h.serveGlobalResource(w, seg)
		return
	}
	h.handleWordLookup(w, r, "", seg)
}

// handleMultiSegment covers "/route/word" and "/route/path.ext"
// (resource lookup scoped to the routed dictionary's own container and
// filesystem), falling back to a cross-dictionary resource lookup when
// the leading segment isn't a known route.
func (h *handler) handleMultiSegment(w http.ResponseWriter, r *http.Request, segments []string) {
	route := segments[0]
	rest := strings.Join(segments[1:], "/")

	if d, ok := h.registry.Resolve(route); ok {
		ext := mimetype.Ext(rest)
		if mimetype.IsResourceExt(ext) {
			h.serveResource(w, d, rest)
			return
		}
		if len(segments) == 2 {
			h.handleWordLookup(w, r, route, rest)
			return
		}
	}

	// Not a recognized route: treat the whole path as a resource
	// request against the cross-dictionary index.
	fullPath := strings.Join(segments, "/")
	ext := mimetype.Ext(fullPath)
	if mimetype.IsResourceExt(ext) {
		h.serveGlobalResource(w, fullPath)
		return
	}
	h.handleNotFound(w)
}

func (h *handler) serveResource(w http.ResponseWriter, d *dictionary.Dictionary, path string) {
	data, err := d.LookupResource(context.Background(), path)
	if errors.Is(err, dictionary.ErrNotFound) {
		h.handleNotFound(w)
		return
	}
	if err != nil {
		h.handleError(w, "resource lookup failed")
		return
	}
	h.writeResource(w, path, data)
}

// serveGlobalResource answers a resource path with no route prefix by
// consulting every loaded dictionary (cross-dictionary index, then
// legacy per-dictionary scan, then filesystem fallback); see
// Registry.GlobalResource.
func (h *handler) serveGlobalResource(w http.ResponseWriter, path string) {
	data, err := h.registry.GlobalResource(context.Background(), path)
	if errors.Is(err, dictionary.ErrNotFound) {
		h.handleNotFound(w)
		return
	}
	if err != nil {
		h.handleError(w, "resource lookup failed")
		return
	}
	h.writeResource(w, path, data)
}

func (h *handler) writeResource(w http.ResponseWriter, path string, data []byte) {
	w.Header().Set("Content-Type", mimetype.ForPath(path))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *handler) handleWordLookup(w http.ResponseWriter, r *http.Request, route, word string) {
	if !validWord(word, h.cfg.MaxWordLength) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "<h1>Error: Invalid word</h1>")
		return
	}

	d, ok := h.registry.Resolve(route)
	if !ok {
		h.handleError(w, "Dictionary not loaded")
		return
	}

	html, err := d.LookupText(r.Context(), word)
	if errors.Is(err, dictionary.ErrNotFound) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "<h1>Word '%s' not found</h1>", word)
		return
	}
	if err != nil {
		h.handleError(w, "Word lookup failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

// validWord rejects inputs that cannot be a legitimate headword:
// empty, too long, or path-traversal-shaped.
func validWord(word string, maxLen int) bool {
	if word == "" {
		return false
	}
	if maxLen <= 0 {
		maxLen = 100
	}
	if len(word) > maxLen {
		return false
	}
	if strings.Contains(word, "..") || strings.Contains(word, "/") || strings.Contains(word, "\\") {
		return false
	}
	return true
}

func (h *handler) handleNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, "<h1>404 - Not Found</h1>")
}

func (h *handler) handleError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "<h1>Error: %s</h1>", message)
}

func (h *handler) handleHealth(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if h.registry.Healthy() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "dictionary": "loaded"})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "dictionary": "not_loaded"})
}

func (h *handler) handleCatalog(w http.ResponseWriter) {
	entries := h.registry.List()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"dictionaries": entries,
		"mode":         "multi",
		"total":        len(entries),
	})
}
