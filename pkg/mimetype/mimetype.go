// Package mimetype maps resource file extensions to the content types
// a dictionary's embedded audio, image and stylesheet resources need
// served with.
package mimetype

import "strings"

var contentTypes = map[string]string{
	"html":  "text/html; charset=utf-8",
	"js":    "application/javascript",
	"ico":   "image/x-icon",
	"css":   "text/css",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"png":   "image/png",
	"gif":   "image/gif",
	"mp3":   "audio/mpeg",
	"mp4":   "audio/mp4",
	"wav":   "audio/wav",
	"spx":   "audio/ogg",
	"ogg":   "audio/ogg",
	"eot":   "font/opentype",
	"svg":   "image/svg+xml",
	"ttf":   "application/font-ttf",
	"woff":  "application/font-woff",
	"woff2": "application/font-woff2",
}

const defaultType = "text/html; charset=utf-8"

// Ext returns the file extension of path, lowercased and without the
// leading dot. "a/b/c.MP3" -> "mp3".
func Ext(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || i == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[i+1:])
}

// IsResourceExt reports whether ext is one of the known resource
// extensions, i.e. whether a path with that extension should be
// routed as a static/MDD resource lookup rather than a headword
// lookup.
func IsResourceExt(ext string) bool {
	_, ok := contentTypes[ext]
	return ok
}

// ForPath returns the content type for path's extension, defaulting
// to text/html for unrecognized or missing extensions (headword
// lookups have no extension at all).
func ForPath(path string) string {
	if ct, ok := contentTypes[Ext(path)]; ok {
		return ct
	}
	return defaultType
}
