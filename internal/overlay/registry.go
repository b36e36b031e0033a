// Package overlay maps console identifiers to overlay assets discovered in
// the overlays directory.
package overlay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gridskin/gridskin/internal/models"
)

const assetName = "overlay.png"

// specMeta is the optional per-console overlay.yaml sidecar. Absent fields
// fall back to a full-frame overlay at the canvas size.
type specMeta struct {
	AnchorX float64 `yaml:"anchor_x"`
	AnchorY float64 `yaml:"anchor_y"`
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
}

// Registry holds the console → OverlaySpec table. The table is built once
// from a directory scan; Get is a pure read over an immutable map, and
// Reload swaps in a freshly built map atomically.
type Registry struct {
	dir          string
	canvasWidth  int
	canvasHeight int
	logger       *zap.Logger

	mu    sync.RWMutex
	specs map[string]models.OverlaySpec
}

// NewRegistry scans dir for `<console>/overlay.png` entries. A directory
// without the asset is ignored, matching how the original overlay folders
// are laid out. An empty directory is not an error; Get just finds nothing.
func NewRegistry(dir string, canvasWidth, canvasHeight int, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		dir:          dir,
		canvasWidth:  canvasWidth,
		canvasHeight: canvasHeight,
		logger:       logger,
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the overlay spec for consoleID.
func (r *Registry) Get(consoleID string) (models.OverlaySpec, error) {
	r.mu.RLock()
	spec, ok := r.specs[consoleID]
	r.mu.RUnlock()
	if !ok {
		return models.OverlaySpec{}, models.Errf(models.ErrUnknownConsole, "unknown console %q", consoleID)
	}
	return spec, nil
}

// Consoles returns the registered console IDs, sorted.
func (r *Registry) Consoles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reload rescans the overlays directory and swaps the table.
func (r *Registry) Reload() error {
	specs, err := r.scan()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.specs = specs
	r.mu.Unlock()
	r.logger.Debug("overlay registry loaded",
		zap.String("dir", r.dir),
		zap.Int("consoles", len(specs)))
	return nil
}

func (r *Registry) scan() (map[string]models.OverlaySpec, error) {
	specs := make(map[string]models.OverlaySpec)

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return specs, nil
		}
		return nil, fmt.Errorf("failed to read overlays directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		consoleID := entry.Name()
		asset := filepath.Join(r.dir, consoleID, assetName)
		if _, err := os.Stat(asset); err != nil {
			continue
		}

		spec := models.OverlaySpec{
			ConsoleID:    consoleID,
			AssetPath:    asset,
			TargetWidth:  r.canvasWidth,
			TargetHeight: r.canvasHeight,
		}
		if meta, ok := r.readMeta(filepath.Join(r.dir, consoleID, "overlay.yaml")); ok {
			spec.AnchorX = meta.AnchorX
			spec.AnchorY = meta.AnchorY
			if meta.Width > 0 {
				spec.TargetWidth = meta.Width
			}
			if meta.Height > 0 {
				spec.TargetHeight = meta.Height
			}
		}
		specs[consoleID] = spec
	}
	return specs, nil
}

func (r *Registry) readMeta(path string) (specMeta, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return specMeta{}, false
	}
	var meta specMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		r.logger.Warn("ignoring malformed overlay metadata",
			zap.String("path", path),
			zap.Error(err))
		return specMeta{}, false
	}
	return meta, true
}
