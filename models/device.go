package models

import "time"

// DeviceState is the agent's ephemeral view of itself. It lives in memory
// for the lifetime of the process and is rebuilt from scratch on restart;
// the history that matters beyond a restart goes through the store instead.
type DeviceState struct {
	DeviceID        string    `json:"device_id"`
	ClientVersion   string    `json:"client_version"`
	PlayerName      string    `json:"player,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	LastCheckin     time.Time `json:"last_checkin,omitempty"`
	CheckinFailures int       `json:"checkin_failures"`
	Unregistered    bool      `json:"unregistered"`
	CurrentMediaID  int64     `json:"current_media_id,omitempty"`
	CurrentMedia    string    `json:"current_media,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Idle            bool      `json:"idle"`
	Holding         bool      `json:"holding"`
}

// CacheEntry is one row of the on-disk cache index.
type CacheEntry struct {
	MediaID      int64     `db:"media_id" json:"media_id"`
	LocalPath    string    `db:"local_path" json:"local_path"`
	FileSize     int64     `db:"file_size" json:"file_size"`
	Checksum     string    `db:"checksum" json:"checksum"`
	LastVerified time.Time `db:"last_verified" json:"last_verified"`
}

// DeviceEvent is one line of local history: downloads, playback starts and
// stops, crashes, commands. The operator reads these remotely via the status
// API since there is no terminal on the device.
type DeviceEvent struct {
	ID        int64     `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Kind      string    `db:"kind" json:"kind"`
	MediaID   int64     `db:"media_id" json:"media_id,omitempty"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
}

// DeviceLog is a log line destined for the server. Lines are queued locally
// and shipped in batches so a flaky network never blocks the play loop.
type DeviceLog struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// PendingLog is a queued DeviceLog with its local queue ID.
type PendingLog struct {
	ID        int64     `db:"id"`
	Type      string    `db:"type"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}
