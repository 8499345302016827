package jobs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/lumenview/marquee/db"
	"github.com/lumenview/marquee/models"
)

const logBatchSize = 50

// LogShipper is the slice of the signage client the log queue drains into.
type LogShipper interface {
	SendLogs(ctx context.Context, logs []models.DeviceLog) error
}

// Verifier re-checks one cache index row against the file on disk.
type Verifier interface {
	Verify(entry models.CacheEntry) error
}

// SetupInBackground schedules the housekeeping that runs beside the sync
// loop: draining the log queue upstream, auditing the media cache and
// sampling disk usage. None of these touch media files, so they can never
// race the player.
func SetupInBackground(store db.Store, remote LogShipper, verifier Verifier, mediaDir string) *gocron.Scheduler {
	s := gocron.NewScheduler(time.UTC)

	s.Every(1).Minutes().Do(ShipLogs, store, remote)
	s.Every(30).Minutes().Do(AuditCache, store, verifier)
	s.Every(5).Minutes().Do(SampleDiskUsage, store, mediaDir)

	slog.Info("Jobs scheduled. Scheduler not running yet.")
	return s
}

// ShipLogs sends one batch of queued log lines upstream and deletes them
// only once the server has accepted the batch. A failed shipment leaves the
// rows queued for the next run.
func ShipLogs(store db.Store, remote LogShipper) {
	pending, err := store.PendingLogs(logBatchSize)
	if err != nil {
		slog.Error("Failed to read pending logs",
			slog.String("stack", err.Error()),
		)
		return
	}
	if len(pending) == 0 {
		return
	}

	logs := make([]models.DeviceLog, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, p := range pending {
		logs = append(logs, models.DeviceLog{
			Type:      p.Type,
			Message:   p.Message,
			Timestamp: p.CreatedAt.UTC().Format(time.RFC3339),
		})
		ids = append(ids, p.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := remote.SendLogs(ctx, logs); err != nil {
		slog.Error("Failed to ship logs upstream",
			slog.String("stack", err.Error()),
			slog.Int("batch", len(logs)),
		)
		return
	}

	if err := store.DeleteLogs(ids); err != nil {
		slog.Error("Failed to clear shipped logs",
			slog.String("stack", err.Error()),
		)
	}
}

// AuditCache re-hashes every indexed media file and drops index rows whose
// file has drifted or disappeared, so the next reconciliation re-downloads
// them. Only rows are dropped here; files are left for normal eviction since
// one of them may be on screen right now.
func AuditCache(store db.Store, verifier Verifier) {
	entries, err := store.ListCacheEntries()
	if err != nil {
		slog.Error("Failed to list cache entries for audit",
			slog.String("stack", err.Error()),
		)
		return
	}

	for _, entry := range entries {
		err := verifier.Verify(entry)
		if err == nil {
			continue
		}
		slog.Warn("Cached media failed verification",
			slog.String("stack", err.Error()),
			slog.Int64("media_id", entry.MediaID),
			slog.String("path", entry.LocalPath),
		)
		if dbErr := store.DeleteCacheEntry(entry.MediaID); dbErr != nil {
			slog.Error("Failed to drop corrupt cache entry",
				slog.String("stack", dbErr.Error()),
				slog.Int64("media_id", entry.MediaID),
			)
			continue
		}
		store.RecordEvent("cache_corrupt", entry.MediaID, err.Error())
	}
}

// SampleDiskUsage records how much disk the media directory occupies so the
// operator can see growth remotely before the card fills up.
func SampleDiskUsage(store db.Store, mediaDir string) {
	var total int64
	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		slog.Error("Failed to sample media disk usage",
			slog.String("stack", err.Error()),
		)
		return
	}

	store.RecordEvent("disk_usage", 0, fmt.Sprintf("%d bytes in %s", total, mediaDir))
}
