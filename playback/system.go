package playback

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenview/marquee/db"
	"github.com/lumenview/marquee/events"
	"github.com/lumenview/marquee/models"
	"github.com/lumenview/marquee/shared"
)

// System is the single source of truth for what the device believes about
// itself right now. The sync loop mutates it, the local status API reads it,
// so every access goes through the mutex. State changes are mirrored to the
// SSE stream and noteworthy ones into the store's event history.
type System struct {
	m     sync.RWMutex
	store db.Store
	state models.DeviceState
}

func NewSystem(store db.Store, deviceID string, playerName string) *System {
	return &System{
		store: store,
		state: models.DeviceState{
			DeviceID:      deviceID,
			ClientVersion: shared.CLIENT_VERSION,
			PlayerName:    playerName,
			StartedAt:     time.Now().UTC(),
			Idle:          true,
		},
	}
}

func (s *System) Snapshot() models.DeviceState {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.state
}

func (s *System) MarkCheckin(at time.Time) {
	s.m.Lock()
	s.state.LastCheckin = at
	s.state.CheckinFailures = 0
	s.state.Unregistered = false
	s.m.Unlock()
}

// MarkCheckinFailure counts a failed checkin and returns the current streak.
func (s *System) MarkCheckinFailure(err error, unregistered bool) int {
	s.m.Lock()
	defer s.m.Unlock()
	s.state.CheckinFailures++
	s.state.Unregistered = unregistered
	s.state.LastError = err.Error()
	return s.state.CheckinFailures
}

func (s *System) SetCurrentMedia(item Item) {
	s.m.Lock()
	s.state.CurrentMediaID = item.MediaID
	s.state.CurrentMedia = item.Title
	s.state.Idle = false
	s.state.Holding = false
	s.m.Unlock()
	s.broadcast()
}

func (s *System) SetIdle() {
	s.m.Lock()
	changed := !s.state.Idle
	s.state.Idle = true
	s.state.Holding = false
	s.state.CurrentMediaID = 0
	s.state.CurrentMedia = ""
	s.m.Unlock()
	if changed {
		s.broadcast()
	}
}

// SetHolding marks the non-looping end-of-playlist state: the last item
// stays "current" until a new assignment arrives.
func (s *System) SetHolding() {
	s.m.Lock()
	changed := !s.state.Holding
	s.state.Holding = true
	s.m.Unlock()
	if changed {
		s.broadcast()
	}
}

func (s *System) SetError(err error) {
	s.m.Lock()
	s.state.LastError = err.Error()
	s.m.Unlock()
}

func (s *System) ClearError() {
	s.m.Lock()
	s.state.LastError = ""
	s.m.Unlock()
}

func (s *System) LastError() string {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.state.LastError
}

func (s *System) CurrentMedia() string {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.state.CurrentMedia
}

// RecordEvent writes a line of local history and queues it for upstream
// shipment. Neither failure is allowed to disturb the play loop.
func (s *System) RecordEvent(kind string, mediaID int64, detail string) {
	if err := s.store.RecordEvent(kind, mediaID, detail); err != nil {
		slog.Error("Failed to record device event",
			slog.String("stack", err.Error()),
			slog.String("kind", kind),
		)
	}
	if err := s.store.QueueLog(models.DeviceLog{
		Type:      kind,
		Message:   detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Error("Failed to queue device log",
			slog.String("stack", err.Error()),
			slog.String("kind", kind),
		)
	}
}

func (s *System) broadcast() {
	state := s.Snapshot()
	jsonState, _ := json.Marshal(state)
	events.PublishPlayback(jsonState)
}
