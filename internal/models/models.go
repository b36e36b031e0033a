// Package models defines core data structures for grid candidates, cached
// images, overlays, and composite results.
package models

import "time"

// GridCandidate is one grid image offered by SteamGridDB for a query.
// Candidates are never mutated after creation; the slice order is the
// ranking order returned by the API.
type GridCandidate struct {
	ID       int64   `json:"id"`
	ThumbURL string  `json:"thumb_url"`
	FullURL  string  `json:"full_url"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Score    float64 `json:"score,omitempty"`
}

// CachedImage is a downloaded image committed to the local content store.
// There is exactly one CachedImage on disk per content hash.
type CachedImage struct {
	ContentHash string    `json:"content_hash"`
	LocalPath   string    `json:"local_path"`
	ByteSize    int64     `json:"byte_size"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// OverlaySpec describes one console's overlay asset. Anchor coordinates are
// fractional offsets in [0,1] of the overlay's origin within the canvas.
type OverlaySpec struct {
	ConsoleID    string  `json:"console_id"`
	AssetPath    string  `json:"asset_path"`
	AnchorX      float64 `json:"anchor_x"`
	AnchorY      float64 `json:"anchor_y"`
	TargetWidth  int     `json:"target_width"`
	TargetHeight int     `json:"target_height"`
}

// FullFrame reports whether the overlay covers the whole canvas, in which
// case it is resized to the canvas rather than placed at its native size.
func (s OverlaySpec) FullFrame() bool {
	return s.AnchorX == 0 && s.AnchorY == 0
}

// CompositeResult is the output of composing a cached image with an overlay.
type CompositeResult struct {
	OutputPath string      `json:"output_path"`
	Base       CachedImage `json:"base"`
	Overlay    OverlaySpec `json:"overlay"`
	CreatedAt  time.Time   `json:"created_at"`
}
