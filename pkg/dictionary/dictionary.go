// Package dictionary binds a container.Reader to its index.Store,
// adding lookup-time concerns: lemma fallback on a miss, MDD resource
// companion resolution, and post-processing raw records into servable
// HTML through a postprocess.Processor.
package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mdictd.org/pkg/container"
	"mdictd.org/pkg/index"
	indexsqlite "mdictd.org/pkg/index/sqlite"
	"mdictd.org/pkg/postprocess"
	"mdictd.org/pkg/textenc"
)

// ErrNotFound is returned by LookupText/LookupResource when no
// definition or resource exists for the given key.
var ErrNotFound = errors.New("dictionary: not found")

// Dictionary is one loaded MDX container plus its optional MDD
// resource companion, each backed by a persistent index.Store.
type Dictionary struct {
	ID   string
	Name string

	text      *container.Reader
	textStore index.Store
	textMeta  index.Meta
	textDir   string

	resource      *container.Reader
	resourceStore index.Store

	Processor *postprocess.Processor
}

// Options controls how Open builds or loads a Dictionary's indexes.
type Options struct {
	// ForceRebuild discards any on-disk index and rebuilds from the
	// container, even if the schema version matches.
	ForceRebuild bool
	// ResourceOverlayDir, if set, is concatenated as injected HTML
	// (see postprocess.LoadInjectionHTML). A typical layout mirrors
	// the dictionary's own resource directory.
	ResourceOverlayDir string
	// MaxLinkDepth bounds @@@LINK= redirection chains; 0 uses the
	// postprocess package default.
	MaxLinkDepth int
}

// Open loads the MDX container at mdxPath, its index (building one if
// missing or stale), and — if a same-stem .mdd file exists — its
// resource companion and index.
func Open(id, name, mdxPath string, opts Options) (*Dictionary, error) {
	text, err := container.Open(mdxPath)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: opening container: %w", id, err)
	}

	textDBPath := mdxPath + ".db"
	textStore, meta, err := openOrBuildStore(textDBPath, text, false, opts.ForceRebuild)
	if err != nil {
		text.Close()
		return nil, fmt.Errorf("dictionary %s: building text index: %w", id, err)
	}

	d := &Dictionary{
		ID:        id,
		Name:      name,
		text:      text,
		textStore: textStore,
		textMeta:  meta,
		textDir:   filepath.Dir(mdxPath),
	}

	stem := strings.TrimSuffix(mdxPath, filepath.Ext(mdxPath))
	mddPath := stem + ".mdd"
	if _, err := os.Stat(mddPath); err == nil {
		resource, err := container.Open(mddPath)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("dictionary %s: opening resource container: %w", id, err)
		}
		resourceDBPath := mddPath + ".db"
		resourceStore, _, err := openOrBuildStore(resourceDBPath, resource, true, opts.ForceRebuild)
		if err != nil {
			resource.Close()
			d.Close()
			return nil, fmt.Errorf("dictionary %s: building resource index: %w", id, err)
		}
		d.resource = resource
		d.resourceStore = resourceStore
	}

	stylesheet := map[string][2]string{}
	if meta.Stylesheet != "" {
		if err := json.Unmarshal([]byte(meta.Stylesheet), &stylesheet); err != nil {
			stylesheet = text.Header.Stylesheet
		}
	} else {
		stylesheet = text.Header.Stylesheet
	}

	injection := ""
	if opts.ResourceOverlayDir != "" {
		injection, err = postprocess.LoadInjectionHTML(opts.ResourceOverlayDir)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("dictionary %s: loading injection resources: %w", id, err)
		}
	}

	d.Processor = &postprocess.Processor{
		Stylesheet:    stylesheet,
		InjectionHTML: injection,
		MaxLinkDepth:  opts.MaxLinkDepth,
	}

	return d, nil
}

func openOrBuildStore(dbPath string, cr *container.Reader, unique, forceRebuild bool) (index.Store, index.Meta, error) {
	if !forceRebuild {
		if st, err := indexsqlite.Open(dbPath, unique); err == nil {
			meta, merr := st.Meta(context.Background())
			if merr == nil {
				return st, meta, nil
			}
			st.Close()
		}
	}

	meta := index.Meta{Encoding: cr.Header.Encoding}
	if ss, err := indexsqlite.StylesheetJSON(cr.Header.Stylesheet); err == nil {
		meta.Stylesheet = ss
	}
	meta.Title = cr.Header.Title
	meta.Description = cr.Header.Description

	st, err := indexsqlite.Build(context.Background(), dbPath, cr, meta, unique)
	if err != nil {
		return nil, index.Meta{}, err
	}
	builtMeta, err := st.Meta(context.Background())
	if err != nil {
		st.Close()
		return nil, index.Meta{}, err
	}
	return st, builtMeta, nil
}

// Close releases the dictionary's open file handles and index stores.
func (d *Dictionary) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.textStore != nil {
		record(d.textStore.Close())
	}
	if d.text != nil {
		record(d.text.Close())
	}
	if d.resourceStore != nil {
		record(d.resourceStore.Close())
	}
	if d.resource != nil {
		record(d.resource.Close())
	}
	return firstErr
}

// HasResources reports whether this dictionary has a loaded MDD
// resource companion.
func (d *Dictionary) HasResources() bool {
	return d.resource != nil
}

// rawLookup returns the decoded, null-stripped record text for every
// row matching word, without link resolution or stylesheet
// substitution.
func (d *Dictionary) rawLookup(ctx context.Context, word string) ([]string, error) {
	rows, err := d.textStore.Lookup(ctx, word)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		raw, err := d.text.ReadRecord(row.ToEntry())
		if err != nil {
			return nil, err
		}
		decoded := textenc.Decode(raw, d.textMeta.Encoding)
		out = append(out, strings.Trim(decoded, "\x00"))
	}
	return out, nil
}

// LookupText returns the fully post-processed HTML definition(s) for
// word: raw records, decoded and stripped, @@@LINK= chains resolved,
// `N` stylesheet tokens substituted, and injected resource HTML
// appended. A miss retries once against a lemmatized form of word
// before returning ErrNotFound.
func (d *Dictionary) LookupText(ctx context.Context, word string) (string, error) {
	raw, err := d.rawLookup(ctx, word)
	if errors.Is(err, index.ErrNotFound) {
		if lemma := lemmatize(word); lemma != word {
			raw, err = d.rawLookup(ctx, lemma)
		}
	}
	if errors.Is(err, index.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	resolved, err := d.Processor.ResolveLinks(ctx, raw, func(ctx context.Context, w string) ([]string, error) {
		items, err := d.rawLookup(ctx, w)
		if errors.Is(err, index.ErrNotFound) {
			return nil, nil
		}
		return items, err
	})
	if err != nil {
		return "", err
	}

	for i, item := range resolved {
		resolved[i] = d.Processor.SubstituteStylesheet(item)
	}

	return d.Processor.Combine(resolved), nil
}

// LookupResource returns the raw bytes of a resource path from the
// MDD companion. Paths are matched using backslash separators, the
// encoding the original MDD key blocks use. When the MDD has no
// matching entry (or no MDD companion is loaded), it falls back to
// reading the path relative to the directory the MDX file lives in,
// since some dictionaries ship resources as loose files instead of
// packed into a companion container.
func (d *Dictionary) LookupResource(ctx context.Context, path string) ([]byte, error) {
	if data, err := d.IndexResource(ctx, path); err == nil {
		return data, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return d.FilesystemFallback(path)
}

// IndexResource looks up path against this dictionary's MDD companion
// only, without the filesystem fallback. DictionaryRegistry uses this
// to consult every loaded dictionary's resource index before falling
// back to a filesystem read.
func (d *Dictionary) IndexResource(ctx context.Context, path string) ([]byte, error) {
	if d.resourceStore == nil {
		return nil, ErrNotFound
	}
	key := strings.ReplaceAll(path, "/", "\\")
	candidates := []string{key}
	if !strings.HasPrefix(key, "\\") {
		// MDD keys are usually rooted with a leading backslash; retry
		// with one when the caller's path has none.
		candidates = append(candidates, "\\"+key)
	}
	for _, k := range candidates {
		rows, err := d.resourceStore.Lookup(ctx, k)
		if errors.Is(err, index.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		data, err := d.resource.ReadRecord(rows[0].ToEntry())
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, ErrNotFound
		}
		return data, nil
	}
	return nil, ErrNotFound
}

// FilesystemFallback reads path relative to the directory this
// dictionary's MDX file lives in, rejecting any path that escapes it.
func (d *Dictionary) FilesystemFallback(path string) ([]byte, error) {
	clean := strings.TrimLeft(path, "/\\")
	full := filepath.Join(d.textDir, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, filepath.Clean(d.textDir)+string(filepath.Separator)) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Keys returns headwords from the text index matching pattern (see
// index.Store.Keys for wildcard semantics).
func (d *Dictionary) Keys(ctx context.Context, pattern string) ([]string, error) {
	return d.textStore.Keys(ctx, pattern)
}

// ResourceKeys returns resource paths from the MDD index matching
// pattern, or an empty list if this dictionary has no resources.
func (d *Dictionary) ResourceKeys(ctx context.Context, pattern string) ([]string, error) {
	if d.resourceStore == nil {
		return nil, nil
	}
	return d.resourceStore.Keys(ctx, pattern)
}
