package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/lumenview/marquee/db"
	"github.com/lumenview/marquee/models"
)

// ErrChecksum is returned when a cached or freshly downloaded file does not
// match the size or checksum the server advertised for it.
var ErrChecksum = errors.New("media content does not match descriptor")

// Downloader is the slice of the signage client the cache needs.
type Downloader interface {
	DownloadMedia(ctx context.Context, media models.MediaDescriptor, w io.Writer) (int64, error)
}

// Cache mirrors assigned media onto local disk. Files land under dir with
// their server filename; the index rows live in the store. Only the sync
// loop writes here, so the single discipline is temp-then-rename: a file at
// its final path is always complete.
type Cache struct {
	dir    string
	store  db.Store
	remote Downloader
}

func New(dir string, store db.Store, remote Downloader) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}
	return &Cache{dir: dir, store: store, remote: remote}, nil
}

// EnsureResult maps media IDs to local paths (or stream URLs) for items that
// are ready to play, and to errors for items that are not.
type EnsureResult struct {
	Ready  map[int64]string
	Failed map[int64]error
}

// Ensure makes every descriptor playable: already-verified entries are kept,
// missing or stale ones are downloaded, streams pass through untouched. One
// failed item never aborts the rest; it lands in Failed and is retried on
// the next reconciliation.
func (c *Cache) Ensure(ctx context.Context, media []models.MediaDescriptor) EnsureResult {
	result := EnsureResult{
		Ready:  map[int64]string{},
		Failed: map[int64]error{},
	}

	for _, m := range media {
		if !m.Cacheable() {
			result.Ready[m.ID] = m.URL
			continue
		}

		if path, ok := c.verified(m); ok {
			result.Ready[m.ID] = path
			continue
		}

		path, err := c.fetch(ctx, m)
		if err != nil {
			slog.Error("Failed to fetch media",
				slog.String("stack", err.Error()),
				slog.Int64("media_id", m.ID),
				slog.String("filename", m.Filename),
			)
			result.Failed[m.ID] = err
			continue
		}
		result.Ready[m.ID] = path
	}

	return result
}

// verified reports whether the descriptor is already present, matching the
// indexed path, the advertised size and, when the server provides one, the
// advertised checksum.
func (c *Cache) verified(m models.MediaDescriptor) (string, bool) {
	entry, err := c.store.GetCacheEntry(m.ID)
	if err != nil {
		return "", false
	}
	if filepath.Base(entry.LocalPath) != m.Filename {
		// Renamed on the server; treat as a new file.
		return "", false
	}

	info, err := os.Stat(entry.LocalPath)
	if err != nil || info.Size() == 0 {
		return "", false
	}
	if m.FileSize > 0 && info.Size() != m.FileSize {
		return "", false
	}
	if m.Checksum != "" && entry.Checksum != m.Checksum {
		return "", false
	}
	return entry.LocalPath, true
}

func (c *Cache) fetch(ctx context.Context, m models.MediaDescriptor) (string, error) {
	tmpPath := filepath.Join(c.dir, "tmp-"+uuid.NewString())
	tmp, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	written, err := c.remote.DownloadMedia(ctx, m, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if written == 0 {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %s arrived empty", ErrChecksum, m.Filename)
	}
	if m.FileSize > 0 && written != m.FileSize {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %s is %d bytes, expected %d", ErrChecksum, m.Filename, written, m.FileSize)
	}

	sum, err := checksumFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if m.Checksum != "" && sum != m.Checksum {
		os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %s checksum %s, expected %s", ErrChecksum, m.Filename, sum, m.Checksum)
	}

	finalPath := filepath.Join(c.dir, m.Filename)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	entry := models.CacheEntry{
		MediaID:      m.ID,
		LocalPath:    finalPath,
		FileSize:     written,
		Checksum:     sum,
		LastVerified: time.Now().UTC(),
	}
	if err := c.store.UpsertCacheEntry(entry); err != nil {
		return "", err
	}

	c.store.RecordEvent("download", m.ID, m.Filename)
	slog.Info("Downloaded media",
		slog.Int64("media_id", m.ID),
		slog.String("filename", m.Filename),
		slog.Int64("bytes", written),
	)
	return finalPath, nil
}

// Evict removes indexed entries whose media ID is not in keep, files
// included. The caller runs this between play cycles and always includes
// the currently playing item in keep. Returns how many entries were removed.
func (c *Cache) Evict(keep map[int64]bool) (int, error) {
	entries, err := c.store.ListCacheEntries()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if keep[entry.MediaID] {
			continue
		}
		if err := os.Remove(entry.LocalPath); err != nil && !os.IsNotExist(err) {
			slog.Error("Failed to remove evicted media file",
				slog.String("stack", err.Error()),
				slog.String("path", entry.LocalPath),
			)
			continue
		}
		if err := c.store.DeleteCacheEntry(entry.MediaID); err != nil {
			return removed, err
		}
		c.store.RecordEvent("evict", entry.MediaID, entry.LocalPath)
		removed++
	}
	return removed, nil
}

// Verify re-hashes one entry's file against its index row. Used by the
// periodic cache audit; a mismatch means the entry should be dropped so the
// next reconciliation re-downloads it.
func (c *Cache) Verify(entry models.CacheEntry) error {
	info, err := os.Stat(entry.LocalPath)
	if err != nil {
		return err
	}
	if info.Size() != entry.FileSize {
		return fmt.Errorf("%w: %s is %d bytes, index says %d", ErrChecksum, entry.LocalPath, info.Size(), entry.FileSize)
	}
	sum, err := checksumFile(entry.LocalPath)
	if err != nil {
		return err
	}
	if sum != entry.Checksum {
		return fmt.Errorf("%w: %s hash drifted", ErrChecksum, entry.LocalPath)
	}
	return nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
