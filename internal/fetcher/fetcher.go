package fetcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	// Decoders for the grid formats SteamGridDB serves.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/gridskin/gridskin/internal/models"
)

// Downloader fetches raw bytes from a URL, typically the sgdb client.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Fetcher downloads a candidate's image, validates it decodes, and commits
// it to the store keyed by content hash. Concurrent fetches that resolve to
// the same hash are serialized per hash; only one writer commits.
type Fetcher struct {
	store  *Store
	dl     Downloader
	locks  *keyedMutex
	logger *zap.Logger
}

// New creates a fetcher writing into store.
func New(store *Store, dl Downloader, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		store:  store,
		dl:     dl,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// Fetch downloads the candidate's full image and returns its cached entry.
// If an image with identical content is already on disk the downloaded
// bytes are discarded and the existing entry is returned.
func (f *Fetcher) Fetch(ctx context.Context, cand models.GridCandidate) (*models.CachedImage, error) {
	data, err := f.dl.Download(ctx, cand.FullURL)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, models.Errf(models.ErrDecode, "empty payload from %s", cand.FullURL)
	}

	format, err := validateImage(data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	// The content hash is only known after the download, so dedup and the
	// single-writer guarantee both happen here.
	unlock := f.locks.Lock(hash)
	defer unlock()

	existing, err := f.store.Get(ctx, hash)
	if err != nil {
		return nil, models.WrapErr(models.ErrIO, err, "failed to query image store")
	}
	if existing != nil {
		f.logger.Debug("image already cached",
			zap.String("hash", hash),
			zap.Int64("candidate", cand.ID))
		return existing, nil
	}

	path := filepath.Join(f.store.Dir(), fmt.Sprintf("%s.%s", hash, format))
	if err := writeAtomic(path, data); err != nil {
		return nil, models.WrapErr(models.ErrIO, err, "failed to write cached image")
	}

	img := &models.CachedImage{
		ContentHash: hash,
		LocalPath:   path,
		ByteSize:    int64(len(data)),
		FetchedAt:   now(),
	}
	if err := f.store.Put(ctx, img); err != nil {
		return nil, models.WrapErr(models.ErrIO, err, "failed to record cached image")
	}

	f.logger.Info("image cached",
		zap.String("hash", hash),
		zap.String("format", format),
		zap.Int64("bytes", img.ByteSize))
	return img, nil
}

// validateImage checks the payload decodes as a supported image format and
// returns the format name.
func validateImage(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", models.WrapErr(models.ErrDecode, err, "payload is not a decodable image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", models.Errf(models.ErrDecode, "image has invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	return format, nil
}

// writeAtomic writes data to path via a temp file and rename, so a partial
// download is never visible at the final path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".commit-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
