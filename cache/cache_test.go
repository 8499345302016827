package cache

import (
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"

	"github.com/lumenview/marquee/models"
)

type memStore struct {
	entries map[int64]models.CacheEntry
	events  []models.DeviceEvent
}

func newMemStore() *memStore {
	return &memStore{entries: map[int64]models.CacheEntry{}}
}

func (s *memStore) ApplyMigrations(embed.FS) error { return nil }

func (s *memStore) UpsertCacheEntry(entry models.CacheEntry) error {
	s.entries[entry.MediaID] = entry
	return nil
}

func (s *memStore) GetCacheEntry(mediaID int64) (models.CacheEntry, error) {
	entry, ok := s.entries[mediaID]
	if !ok {
		return entry, errors.New("sql: no rows in result set")
	}
	return entry, nil
}

func (s *memStore) ListCacheEntries() ([]models.CacheEntry, error) {
	entries := []models.CacheEntry{}
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *memStore) DeleteCacheEntry(mediaID int64) error {
	delete(s.entries, mediaID)
	return nil
}

func (s *memStore) RecordEvent(kind string, mediaID int64, detail string) error {
	s.events = append(s.events, models.DeviceEvent{Kind: kind, MediaID: mediaID, Detail: detail})
	return nil
}

func (s *memStore) RecentEvents(int) ([]models.DeviceEvent, error) { return s.events, nil }

func (s *memStore) QueueLog(models.DeviceLog) error { return nil }

func (s *memStore) PendingLogs(int) ([]models.PendingLog, error) { return nil, nil }

func (s *memStore) DeleteLogs([]int64) error { return nil }

type fakeDownloader struct {
	payloads map[int64]string
	failing  map[int64]bool
	calls    int
}

func (d *fakeDownloader) DownloadMedia(_ context.Context, media models.MediaDescriptor, w io.Writer) (int64, error) {
	d.calls++
	if d.failing[media.ID] {
		return 0, fmt.Errorf("connection reset downloading %s", media.Filename)
	}
	payload := d.payloads[media.ID]
	n, err := w.Write([]byte(payload))
	return int64(n), err
}

func hashOf(payload string) string {
	h := xxhash.New()
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func descriptor(id int64, filename, payload string) models.MediaDescriptor {
	return models.MediaDescriptor{
		ID:       id,
		Filename: filename,
		FileType: "video",
		FileSize: int64(len(payload)),
		Checksum: hashOf(payload),
	}
}

func TestEnsure_DownloadsMissingMedia(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{42: "fake video bytes"}}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	result := c.Ensure(context.Background(), []models.MediaDescriptor{descriptor(42, "promo.mp4", "fake video bytes")})

	assert.Empty(t, result.Failed)
	path := result.Ready[42]
	assert.Equal(t, "promo.mp4", filepath.Base(path))
	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "fake video bytes", string(content))
	assert.Contains(t, store.entries, int64(42))
}

func TestEnsure_VerifiedEntryTriggersNoDownload(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{42: "fake video bytes"}}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	media := []models.MediaDescriptor{descriptor(42, "promo.mp4", "fake video bytes")}
	c.Ensure(context.Background(), media)
	assert.Equal(t, 1, remote.calls)

	// Same descriptor again: idempotent, zero additional downloads.
	result := c.Ensure(context.Background(), media)
	assert.Equal(t, 1, remote.calls)
	assert.Empty(t, result.Failed)
	assert.Len(t, result.Ready, 1)
}

func TestEnsure_OneFailureDoesNotAbortOthers(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{
		payloads: map[int64]string{1: "aaa", 3: "ccc"},
		failing:  map[int64]bool{2: true},
	}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	result := c.Ensure(context.Background(), []models.MediaDescriptor{
		descriptor(1, "a.mp4", "aaa"),
		descriptor(2, "b.mp4", "bbb"),
		descriptor(3, "c.mp4", "ccc"),
	})

	assert.Len(t, result.Ready, 2)
	assert.Len(t, result.Failed, 1)
	assert.Error(t, result.Failed[2])
}

func TestEnsure_TruncatedDownloadLeavesNoFinalFile(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{42: "short"}}
	dir := t.TempDir()
	c, err := New(dir, store, remote)
	assert.NoError(t, err)

	m := descriptor(42, "promo.mp4", "short")
	m.FileSize = 9999 // server says the file is bigger than what arrives

	result := c.Ensure(context.Background(), []models.MediaDescriptor{m})

	assert.ErrorIs(t, result.Failed[42], ErrChecksum)
	_, err = os.Stat(filepath.Join(dir, "promo.mp4"))
	assert.True(t, os.IsNotExist(err))

	leftovers, _ := filepath.Glob(filepath.Join(dir, "tmp-*"))
	assert.Empty(t, leftovers)
}

func TestEnsure_ChecksumMismatchFails(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{42: "tampered bytes"}}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	m := descriptor(42, "promo.mp4", "tampered bytes")
	m.Checksum = hashOf("original bytes")

	result := c.Ensure(context.Background(), []models.MediaDescriptor{m})
	assert.ErrorIs(t, result.Failed[42], ErrChecksum)
}

func TestEnsure_StreamsBypassCache(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	result := c.Ensure(context.Background(), []models.MediaDescriptor{
		{ID: 9, FileType: "stream", URL: "rtsp://cam.local/feed"},
	})

	assert.Equal(t, "rtsp://cam.local/feed", result.Ready[9])
	assert.Equal(t, 0, remote.calls)
	assert.Empty(t, store.entries)
}

func TestEnsure_RenamedFileIsRefetched(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{42: "fake video bytes"}}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	c.Ensure(context.Background(), []models.MediaDescriptor{descriptor(42, "promo.mp4", "fake video bytes")})
	assert.Equal(t, 1, remote.calls)

	// Same ID, new filename on the server.
	renamed := descriptor(42, "promo-v2.mp4", "fake video bytes")
	result := c.Ensure(context.Background(), []models.MediaDescriptor{renamed})
	assert.Equal(t, 2, remote.calls)
	assert.Equal(t, "promo-v2.mp4", filepath.Base(result.Ready[42]))
}

func TestEvict_RemovesUnreferencedOnly(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{1: "aaa", 2: "bbb", 3: "ccc"}}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	result := c.Ensure(context.Background(), []models.MediaDescriptor{
		descriptor(1, "a.mp4", "aaa"),
		descriptor(2, "b.mp4", "bbb"),
		descriptor(3, "c.mp4", "ccc"),
	})
	assert.Len(t, result.Ready, 3)

	// New assignment references {2,3}; 1 goes, 2 and 3 stay.
	removed, err := c.Evict(map[int64]bool{2: true, 3: true})
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(result.Ready[1])
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(result.Ready[2])
	assert.NoError(t, err)
	assert.NotContains(t, store.entries, int64(1))
	assert.Contains(t, store.entries, int64(2))
}

func TestVerify_DetectsDrift(t *testing.T) {
	store := newMemStore()
	remote := &fakeDownloader{payloads: map[int64]string{42: "fake video bytes"}}
	c, err := New(t.TempDir(), store, remote)
	assert.NoError(t, err)

	c.Ensure(context.Background(), []models.MediaDescriptor{descriptor(42, "promo.mp4", "fake video bytes")})
	entry := store.entries[42]

	assert.NoError(t, c.Verify(entry))

	// Corrupt the file in place.
	assert.NoError(t, os.WriteFile(entry.LocalPath, []byte("fake video byteX"), 0o644))
	assert.ErrorIs(t, c.Verify(entry), ErrChecksum)
}
