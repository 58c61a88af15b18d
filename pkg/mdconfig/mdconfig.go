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

// Package mdconfig loads and validates the server's JSON configuration
// file, overlays MDX_-prefixed environment variable overrides on top
// of it, and auto-discovers dictionaries from a directory of .mdx
// files when none are configured explicitly.
package mdconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DictConfig describes one dictionary entry: its display name, the
// path to its .mdx file, and the URL route segment it answers under.
type DictConfig struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Route   string `json:"route"`
	Enabled bool   `json:"enabled"`
}

// ServerConfig is the full server configuration, loadable from a JSON
// file and overridable by environment variables.
type ServerConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Debug bool   `json:"debug"`

	DictDirectory     string `json:"dict_directory"`
	ResourceDirectory string `json:"resource_directory"`

	Dictionaries map[string]DictConfig `json:"dictionaries"`

	CacheEnabled  bool `json:"cache_enabled"`
	MaxWordLength int  `json:"max_word_length"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	ServerType        string `json:"server_type"`
	MaxThreads        int    `json:"max_threads"`
	RequestQueueSize  int    `json:"request_queue_size"`
	ConnectionTimeout int    `json:"connection_timeout"`
}

// Default returns a ServerConfig with the deployment's baseline
// field values.
func Default() ServerConfig {
	dictDir := "dict"
	if dirExists("/dict") {
		dictDir = "/dict"
	}
	return ServerConfig{
		Port:              8000,
		DictDirectory:     dictDir,
		ResourceDirectory: "mdx",
		Dictionaries:      map[string]DictConfig{},
		CacheEnabled:      true,
		MaxWordLength:     100,
		LogLevel:          "INFO",
		ServerType:        "threaded",
		MaxThreads:        20,
		RequestQueueSize:  50,
		ConnectionTimeout: 30,
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

var validLogLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true}
var validServerTypes = map[string]bool{"simple": true, "threaded": true, "gunicorn": true}

// Validate checks field invariants, returning the first violation
// found.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("mdconfig: invalid port number: %d", c.Port)
	}
	if c.MaxWordLength < 1 {
		return fmt.Errorf("mdconfig: max_word_length must be positive")
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("mdconfig: invalid log level: %s", c.LogLevel)
	}
	if !validServerTypes[c.ServerType] {
		return fmt.Errorf("mdconfig: invalid server type: %s", c.ServerType)
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("mdconfig: max_threads must be positive")
	}
	if c.RequestQueueSize < 1 {
		return fmt.Errorf("mdconfig: request_queue_size must be positive")
	}
	return nil
}

// ResolveDictPath resolves a dictionary-relative path the way a
// deployment that might be either containerized or local expects:
// absolute paths pass through unchanged; relative paths are checked
// in turn against /dict (Docker), dict (local), and the current
// directory, returning the first that exists, or the Docker- or
// local-rooted guess if none do.
func (c *ServerConfig) ResolveDictPath(dictPath string) string {
	if filepath.IsAbs(dictPath) {
		return dictPath
	}
	candidates := []string{
		filepath.Join("/dict", dictPath),
		filepath.Join("dict", dictPath),
		dictPath,
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if dirExists("/dict") {
		return filepath.Join("/dict", dictPath)
	}
	return filepath.Join("dict", dictPath)
}

// AutoDiscoverDictionaries scans DictDirectory for *.mdx files and
// registers one DictConfig per file, keyed and routed by file stem,
// when no dictionaries are configured explicitly. A file named
// default.mdx is special-cased to the empty route, matching the
// convention that an un-routed request answers the default
// dictionary.
func (c *ServerConfig) AutoDiscoverDictionaries() error {
	if len(c.Dictionaries) > 0 {
		return nil
	}
	entries, err := os.ReadDir(c.DictDirectory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mdx") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		route := stem
		if stem == "default" {
			route = ""
		}
		c.Dictionaries[stem] = DictConfig{
			Name:    titleCase(strings.ReplaceAll(stem, "_", " ")),
			Path:    filepath.Join(c.DictDirectory, e.Name()),
			Route:   route,
			Enabled: true,
		}
	}

	// A directory holding exactly one dictionary serves it as the
	// default, whatever the file happens to be called.
	if len(c.Dictionaries) == 1 {
		for id, dc := range c.Dictionaries {
			dc.Route = ""
			c.Dictionaries[id] = dc
		}
	}
	return nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// FromFile loads a ServerConfig from a JSON file at path, resolving
// each dictionary entry's path through ResolveDictPath. A missing
// file is not an error: it yields Default().
func FromFile(path string) (ServerConfig, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Default(), fmt.Errorf("mdconfig: invalid config file %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Default(), fmt.Errorf("mdconfig: invalid config file %s: %w", path, err)
	}
	if cfg.Dictionaries == nil {
		cfg.Dictionaries = map[string]DictConfig{}
	}

	if _, ok := doc["dictionaries"]; ok {
		resolved := make(map[string]DictConfig, len(cfg.Dictionaries))
		for id, dc := range cfg.Dictionaries {
			dc.Path = cfg.ResolveDictPath(dc.Path)
			if dc.Name == "" {
				dc.Name = id
			}
			if dc.Route == "" && id != "default" {
				dc.Route = id
			}
			resolved[id] = dc
		}
		cfg.Dictionaries = resolved
	}

	return cfg, nil
}

// applyEnvOverrides overlays the MDX_-prefixed environment variables
// onto c.
func (c *ServerConfig) applyEnvOverrides() error {
	if v, ok := os.LookupEnv("MDX_HOST"); ok {
		c.Host = v
	}
	if v, ok := os.LookupEnv("MDX_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("mdconfig: MDX_PORT: %w", err)
		}
		c.Port = p
	}
	if v, ok := os.LookupEnv("MDX_DEBUG"); ok {
		c.Debug = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("MDX_DICT_DIR"); ok {
		c.DictDirectory = v
	}
	if v, ok := os.LookupEnv("MDX_RESOURCE_DIR"); ok {
		c.ResourceDirectory = v
	}
	if v, ok := os.LookupEnv("MDX_CACHE"); ok {
		c.CacheEnabled = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("MDX_MAX_WORD_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("mdconfig: MDX_MAX_WORD_LENGTH: %w", err)
		}
		c.MaxWordLength = n
	}
	if v, ok := os.LookupEnv("MDX_LOG_LEVEL"); ok {
		c.LogLevel = strings.ToUpper(v)
	}
	if v, ok := os.LookupEnv("MDX_LOG_FILE"); ok {
		c.LogFile = v
	}
	return nil
}

// configSearchPath mirrors load_config's file lookup order: a
// container-conventional absolute path, then config.json in baseDir's
// parent directory, then config.json in baseDir itself.
func configSearchPath(baseDir string) []string {
	return []string{
		"/app/config.json",
		filepath.Join(baseDir, "..", "config.json"),
		filepath.Join(baseDir, "config.json"),
	}
}

// Load finds and loads the server configuration: the first existing
// file on configSearchPath(baseDir), environment overrides applied on
// top, dictionaries auto-discovered if none were configured, and the
// result validated.
func Load(baseDir string) (ServerConfig, error) {
	var cfg ServerConfig
	var err error

	found := false
	for _, p := range configSearchPath(baseDir) {
		if _, statErr := os.Stat(p); statErr == nil {
			cfg, err = FromFile(p)
			if err != nil {
				return ServerConfig{}, err
			}
			found = true
			break
		}
	}
	if !found {
		cfg = Default()
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return ServerConfig{}, err
	}

	if err := cfg.AutoDiscoverDictionaries(); err != nil {
		return ServerConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}

	return cfg, nil
}
