package entity

import (
	"path/filepath"
	"strings"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	// durations below this value are taken to be seconds
	secondsThreshold = 1000
)

var mimeTypes = map[string]string{
	"mp4": "video/mp4",
	"mov": "video/quicktime",
	"m4v": "video/x-m4v",
}

// MediaAsset is a locally accessible video file selected for a clip.
type MediaAsset struct {
	Path       string
	Width      int
	Height     int
	DurationMs int64
	SizeBytes  int64
	MimeType   string
}

// RawAsset is the loosely typed asset shape received from the capture layer.
type RawAsset struct {
	Path      string  `json:"path"`
	Width     int     `json:"width,omitempty"`
	Height    int     `json:"height,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	SizeBytes int64   `json:"size_bytes,omitempty"`
}

// NormalizeAsset converts a raw picker payload into a MediaAsset.
func NormalizeAsset(raw RawAsset) MediaAsset {
	a := MediaAsset{
		Path:       strings.TrimSpace(raw.Path),
		Width:      raw.Width,
		Height:     raw.Height,
		DurationMs: NormalizeDurationMs(raw.Duration),
		SizeBytes:  raw.SizeBytes,
	}
	if a.Width <= 0 || a.Height <= 0 {
		a.Width, a.Height = DefaultWidth, DefaultHeight
	}
	if a.SizeBytes < 0 {
		a.SizeBytes = 0
	}
	a.MimeType = MimeTypeFor(a.Path)
	return a
}

// NormalizeDurationMs returns the duration in milliseconds. Zero or negative
// input means unknown and yields 0.
func NormalizeDurationMs(d float64) int64 {
	if d <= 0 {
		return 0
	}
	if d < secondsThreshold {
		d *= 1000
	}
	return int64(d + 0.5)
}

// Extension returns the lower-cased extension without the dot.
func Extension(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// MimeTypeFor returns the video MIME type for the path's extension, or "" if
// the extension is not a known video container.
func MimeTypeFor(path string) string {
	return mimeTypes[Extension(path)]
}

// ValidatedAsset is an asset that passed validation. LocalPath is directly
// readable; SizeKnown is false when size validation was skipped.
type ValidatedAsset struct {
	MediaAsset
	LocalPath string
	Ext       string
	SizeKnown bool
}
