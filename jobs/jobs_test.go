package jobs

import (
	"context"
	"embed"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lumenview/marquee/models"
)

type recordingStore struct {
	pending    []models.PendingLog
	pendingErr error
	deleted    [][]int64

	entries []models.CacheEntry
	dropped []int64
	events  []models.DeviceEvent
}

func (s *recordingStore) ApplyMigrations(embed.FS) error { return nil }
func (s *recordingStore) UpsertCacheEntry(models.CacheEntry) error { return nil }
func (s *recordingStore) GetCacheEntry(int64) (models.CacheEntry, error) {
	return models.CacheEntry{}, nil
}

func (s *recordingStore) ListCacheEntries() ([]models.CacheEntry, error) {
	return s.entries, nil
}

func (s *recordingStore) DeleteCacheEntry(mediaID int64) error {
	s.dropped = append(s.dropped, mediaID)
	return nil
}

func (s *recordingStore) RecordEvent(kind string, mediaID int64, detail string) error {
	s.events = append(s.events, models.DeviceEvent{Kind: kind, MediaID: mediaID, Detail: detail})
	return nil
}

func (s *recordingStore) RecentEvents(int) ([]models.DeviceEvent, error) { return nil, nil }
func (s *recordingStore) QueueLog(models.DeviceLog) error { return nil }

func (s *recordingStore) PendingLogs(int) ([]models.PendingLog, error) {
	return s.pending, s.pendingErr
}

func (s *recordingStore) DeleteLogs(ids []int64) error {
	s.deleted = append(s.deleted, ids)
	return nil
}

type fakeShipper struct {
	err     error
	batches [][]models.DeviceLog
}

func (f *fakeShipper) SendLogs(_ context.Context, logs []models.DeviceLog) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, logs)
	return nil
}

type fakeVerifier struct {
	bad map[int64]error
}

func (f *fakeVerifier) Verify(entry models.CacheEntry) error {
	return f.bad[entry.MediaID]
}

func TestShipLogs_DeletesOnlyAfterAcceptance(t *testing.T) {
	store := &recordingStore{
		pending: []models.PendingLog{
			{ID: 4, Type: "playback_start", Message: "intro.mp4", CreatedAt: time.Now()},
			{ID: 5, Type: "download", Message: "b.jpg", CreatedAt: time.Now()},
		},
	}
	shipper := &fakeShipper{}

	ShipLogs(store, shipper)

	assert.Len(t, shipper.batches, 1)
	assert.Len(t, shipper.batches[0], 2)
	assert.Equal(t, "playback_start", shipper.batches[0][0].Type)
	assert.Equal(t, [][]int64{{4, 5}}, store.deleted)
}

func TestShipLogs_FailureLeavesQueueUntouched(t *testing.T) {
	store := &recordingStore{
		pending: []models.PendingLog{{ID: 4, Type: "download", Message: "a.mp4"}},
	}
	shipper := &fakeShipper{err: errors.New("server unreachable")}

	ShipLogs(store, shipper)

	assert.Empty(t, store.deleted)
}

func TestShipLogs_EmptyQueueSendsNothing(t *testing.T) {
	store := &recordingStore{}
	shipper := &fakeShipper{}

	ShipLogs(store, shipper)

	assert.Empty(t, shipper.batches)
	assert.Empty(t, store.deleted)
}

func TestAuditCache_DropsOnlyCorruptRows(t *testing.T) {
	store := &recordingStore{
		entries: []models.CacheEntry{
			{MediaID: 1, LocalPath: "/media/a.mp4"},
			{MediaID: 2, LocalPath: "/media/b.jpg"},
		},
	}
	verifier := &fakeVerifier{bad: map[int64]error{2: errors.New("hash drifted")}}

	AuditCache(store, verifier)

	assert.Equal(t, []int64{2}, store.dropped)
	if assert.Len(t, store.events, 1) {
		assert.Equal(t, "cache_corrupt", store.events[0].Kind)
		assert.Equal(t, int64(2), store.events[0].MediaID)
	}
}

func TestSampleDiskUsage_RecordsTotal(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp4"), make([]byte, 100), 0o644))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "b.jpg"), make([]byte, 50), 0o644))

	store := &recordingStore{}
	SampleDiskUsage(store, dir)

	if assert.Len(t, store.events, 1) {
		assert.Equal(t, "disk_usage", store.events[0].Kind)
		assert.Contains(t, store.events[0].Detail, "150 bytes")
	}
}
