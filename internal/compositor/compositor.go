// Package compositor produces launcher icons by compositing a console
// overlay onto a cached grid image.
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	_ "golang.org/x/image/webp"

	"github.com/gridskin/gridskin/internal/models"
)

// referenceCanvas is the canvas size the corner radius setting refers to;
// other canvas sizes scale the radius proportionally.
const referenceCanvas = 1024

// Compositor composes cached grid images with console overlays and writes
// deterministic PNG icons into the output directory.
type Compositor struct {
	outputDir    string
	cornerRadius int
	logger       *zap.Logger
}

// New creates a compositor writing into outputDir. cornerRadius is the
// rounded-corner radius at a 1024px canvas; zero disables rounding.
func New(outputDir string, cornerRadius int, logger *zap.Logger) *Compositor {
	return &Compositor{
		outputDir:    outputDir,
		cornerRadius: cornerRadius,
		logger:       logger,
	}
}

// Compose canonicalizes the base image to the overlay's target canvas,
// applies the rounded-corner mask, composites the overlay at its anchor,
// and writes `{hash}_{console}.png`. Re-running with the same inputs
// overwrites the file with byte-identical content.
func (c *Compositor) Compose(base *models.CachedImage, spec models.OverlaySpec) (*models.CompositeResult, error) {
	baseImg, err := imaging.Open(base.LocalPath)
	if err != nil {
		return nil, models.WrapErr(models.ErrDecode, err, "failed to decode base image %s", base.LocalPath)
	}

	w, h := spec.TargetWidth, spec.TargetHeight
	canvas := imaging.Fill(baseImg, w, h, imaging.Center, imaging.Lanczos)

	rounded := c.roundCorners(canvas)

	overlayImg, err := imaging.Open(spec.AssetPath)
	if err != nil {
		return nil, models.WrapErr(models.ErrDecode, err, "failed to decode overlay %s", spec.AssetPath)
	}

	var out *image.NRGBA
	if spec.FullFrame() {
		if overlayImg.Bounds().Dx() != w || overlayImg.Bounds().Dy() != h {
			overlayImg = imaging.Resize(overlayImg, w, h, imaging.Lanczos)
		}
		out = imaging.Overlay(rounded, overlayImg, image.Pt(0, 0), 1.0)
	} else {
		ow, oh := overlayImg.Bounds().Dx(), overlayImg.Bounds().Dy()
		pos := image.Pt(
			int(spec.AnchorX*float64(w-ow)),
			int(spec.AnchorY*float64(h-oh)),
		)
		out = imaging.Overlay(rounded, overlayImg, pos, 1.0)
	}

	if out.Bounds().Dx() != w || out.Bounds().Dy() != h {
		return nil, models.Errf(models.ErrSizeMismatch,
			"composite is %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), w, h)
	}

	outputPath := filepath.Join(c.outputDir, fmt.Sprintf("%s_%s.png", base.ContentHash, spec.ConsoleID))
	if err := c.writePNG(outputPath, out); err != nil {
		return nil, models.WrapErr(models.ErrIO, err, "failed to write icon %s", outputPath)
	}

	c.logger.Info("icon composed",
		zap.String("console", spec.ConsoleID),
		zap.String("output", outputPath))

	return &models.CompositeResult{
		OutputPath: outputPath,
		Base:       *base,
		Overlay:    spec,
		CreatedAt:  time.Now(),
	}, nil
}

// roundCorners applies a rounded-rectangle alpha mask to img, scaled from
// the configured radius at the reference canvas size.
func (c *Compositor) roundCorners(img *image.NRGBA) *image.NRGBA {
	if c.cornerRadius <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	min := w
	if h < min {
		min = h
	}
	radius := c.cornerRadius * min / referenceCanvas
	if radius <= 0 {
		return img
	}

	mask := roundedMask(w, h, radius)
	out := image.NewNRGBA(b)
	draw.DrawMask(out, b, img, b.Min, mask, image.Point{}, draw.Src)
	return out
}

// roundedMask builds an alpha mask that is opaque inside a rounded
// rectangle of the given radius. Pure integer math keeps it deterministic.
func roundedMask(w, h, radius int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	rr := radius * radius
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := 0, 0
			if x < radius {
				dx = radius - x
			} else if x >= w-radius {
				dx = x - (w - radius - 1)
			}
			if y < radius {
				dy = radius - y
			} else if y >= h-radius {
				dy = y - (h - radius - 1)
			}
			if dx*dx+dy*dy <= rr {
				mask.SetAlpha(x, y, color.Alpha{A: 0xff})
			}
		}
	}
	return mask
}

// writePNG encodes img and commits it atomically so a crashed run never
// leaves a truncated icon.
func (c *Compositor) writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".icon-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
