package db

import (
	"embed"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lumenview/marquee/models"
)

// Store holds everything the agent persists between restarts: the cache
// index, local event history and the outbound log queue. Assignments are
// deliberately not stored; they are re-fetched on the first checkin.
type Store interface {
	ApplyMigrations(migrations embed.FS) error

	UpsertCacheEntry(entry models.CacheEntry) error
	GetCacheEntry(mediaID int64) (models.CacheEntry, error)
	ListCacheEntries() ([]models.CacheEntry, error)
	DeleteCacheEntry(mediaID int64) error

	RecordEvent(kind string, mediaID int64, detail string) error
	RecentEvents(limit int) ([]models.DeviceEvent, error)

	QueueLog(entry models.DeviceLog) error
	PendingLogs(limit int) ([]models.PendingLog, error)
	DeleteLogs(ids []int64) error
}

type SqliteStore struct {
	DB *sqlx.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) UpsertCacheEntry(entry models.CacheEntry) error {
	_, err := s.DB.Exec(`
	  INSERT INTO cache_entries (media_id, local_path, file_size, checksum, last_verified)
	  VALUES (?, ?, ?, ?, ?)
	  ON CONFLICT (media_id) DO UPDATE SET
	    local_path = excluded.local_path,
	    file_size = excluded.file_size,
	    checksum = excluded.checksum,
	    last_verified = excluded.last_verified`,
		entry.MediaID, entry.LocalPath, entry.FileSize, entry.Checksum, entry.LastVerified)
	return err
}

func (s *SqliteStore) GetCacheEntry(mediaID int64) (models.CacheEntry, error) {
	e := models.CacheEntry{}
	err := s.DB.Get(&e, "SELECT media_id, local_path, file_size, checksum, last_verified FROM cache_entries WHERE media_id = ?", mediaID)
	return e, err
}

func (s *SqliteStore) ListCacheEntries() ([]models.CacheEntry, error) {
	entries := []models.CacheEntry{}
	err := s.DB.Select(&entries, "SELECT media_id, local_path, file_size, checksum, last_verified FROM cache_entries ORDER BY media_id")
	return entries, err
}

func (s *SqliteStore) DeleteCacheEntry(mediaID int64) error {
	_, err := s.DB.Exec("DELETE FROM cache_entries WHERE media_id = ?", mediaID)
	return err
}

func (s *SqliteStore) RecordEvent(kind string, mediaID int64, detail string) error {
	_, err := s.DB.Exec(
		"INSERT INTO device_events (created_at, kind, media_id, detail) VALUES (?, ?, ?, ?)",
		time.Now().UTC(), kind, mediaID, detail)
	return err
}

func (s *SqliteStore) RecentEvents(limit int) ([]models.DeviceEvent, error) {
	events := []models.DeviceEvent{}
	err := s.DB.Select(&events,
		"SELECT id, created_at, kind, media_id, detail FROM device_events ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	return events, err
}

func (s *SqliteStore) QueueLog(entry models.DeviceLog) error {
	_, err := s.DB.Exec(
		"INSERT INTO pending_logs (created_at, type, message) VALUES (?, ?, ?)",
		time.Now().UTC(), entry.Type, entry.Message)
	return err
}

func (s *SqliteStore) PendingLogs(limit int) ([]models.PendingLog, error) {
	logs := []models.PendingLog{}
	err := s.DB.Select(&logs,
		"SELECT id, created_at, type, message FROM pending_logs ORDER BY id LIMIT ?", limit)
	return logs, err
}

func (s *SqliteStore) DeleteLogs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM pending_logs WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(s.DB.Rebind(query), args...)
	return err
}
