package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenview/marquee/player"
)

// Item is one fully resolved entry of the current plan: a local path (or
// stream URL), its media type and the duration it should stay on screen.
type Item struct {
	MediaID   int64         `json:"media_id"`
	Title     string        `json:"title"`
	Path      string        `json:"path"`
	MediaType string        `json:"media_type"`
	Duration  time.Duration `json:"duration"`
}

// Outcome describes what PlayNext did.
type Outcome int

const (
	// OutcomeIdle means there is nothing to play.
	OutcomeIdle Outcome = iota
	// OutcomePlayed means one item ran to its duration or natural end.
	OutcomePlayed
	// OutcomeSkipped means the item could not be played and was passed over.
	OutcomeSkipped
	// OutcomeHolding means a non-looping plan has finished and the last
	// item is being held until a new assignment arrives.
	OutcomeHolding
)

// Plan is a read-only snapshot of the scheduler state for the status API.
type Plan struct {
	Items   []Item `json:"items"`
	Loop    bool   `json:"loop"`
	Index   int    `json:"index"`
	Holding bool   `json:"holding"`
}

// Scheduler walks the plan one item per call. The sync loop calls PlayNext
// between checkins, which is exactly what keeps poll cadence honored at item
// boundaries: an item is never interrupted mid-play by a new assignment.
type Scheduler struct {
	player player.Player
	clock  Clock
	system *System

	m       sync.Mutex
	items   []Item
	loop    bool
	index   int
	holding bool
}

func NewScheduler(p player.Player, clock Clock, system *System) *Scheduler {
	return &Scheduler{player: p, clock: clock, system: system}
}

// SetPlan replaces the current plan and resets progress. Called by the sync
// loop after reconciliation, always between items.
func (s *Scheduler) SetPlan(items []Item, loop bool) {
	s.m.Lock()
	s.items = items
	s.loop = loop
	s.index = 0
	s.holding = false
	s.m.Unlock()

	if len(items) == 0 {
		s.system.SetIdle()
	}
}

// Current returns the item the scheduler is on, if any.
func (s *Scheduler) Current() (Item, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	if len(s.items) == 0 || s.index >= len(s.items) {
		return Item{}, false
	}
	return s.items[s.index], true
}

// Snapshot returns the plan for the local status API.
func (s *Scheduler) Snapshot() Plan {
	s.m.Lock()
	defer s.m.Unlock()
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return Plan{Items: items, Loop: s.loop, Index: s.index, Holding: s.holding}
}

// PlayNext plays exactly one item and advances. An unexpected player death
// mid-item gets one immediate restart; a second death on the same item means
// the item is skipped so the loop can never get stuck. Returns OutcomeIdle
// for an empty plan and OutcomeHolding once a non-looping plan has finished.
func (s *Scheduler) PlayNext(ctx context.Context) (Outcome, error) {
	s.m.Lock()
	if len(s.items) == 0 {
		s.m.Unlock()
		return OutcomeIdle, nil
	}
	if s.holding {
		s.m.Unlock()
		return OutcomeHolding, nil
	}
	item := s.items[s.index]
	s.m.Unlock()

	if s.player == nil {
		return OutcomeIdle, player.ErrNoPlayer
	}

	outcome := OutcomePlayed
	if err := s.playItem(ctx, item); err != nil {
		if ctx.Err() != nil {
			return OutcomeSkipped, ctx.Err()
		}
		outcome = OutcomeSkipped
	}

	s.advance()
	return outcome, nil
}

func (s *Scheduler) advance() {
	s.m.Lock()
	defer s.m.Unlock()
	if s.index+1 < len(s.items) {
		s.index++
		return
	}
	if s.loop {
		s.index = 0
		return
	}
	// Hold on the final item until reconciliation installs a new plan.
	s.holding = true
	s.system.SetHolding()
	slog.Info("Playlist finished, holding until assignment changes")
}

// playItem runs one item with the restart-then-skip crash policy: a player
// that never started is skipped straight away, a player that died mid-item
// gets one immediate restart before the item is abandoned.
func (s *Scheduler) playItem(ctx context.Context, item Item) error {
	started, err := s.runOnce(ctx, item)
	if err == nil || ctx.Err() != nil {
		return ctx.Err()
	}
	if !started {
		slog.Error("Player failed to start, skipping item",
			slog.String("stack", err.Error()),
			slog.Int64("media_id", item.MediaID),
			slog.String("title", item.Title),
		)
		s.system.RecordEvent("playback_skip", item.MediaID, err.Error())
		return err
	}

	slog.Error("Player died unexpectedly, restarting item once",
		slog.String("stack", err.Error()),
		slog.Int64("media_id", item.MediaID),
		slog.String("title", item.Title),
	)
	s.system.RecordEvent("playback_crash", item.MediaID, err.Error())

	_, err = s.runOnce(ctx, item)
	if err == nil || ctx.Err() != nil {
		return ctx.Err()
	}

	slog.Error("Player died twice on the same item, skipping it",
		slog.String("stack", err.Error()),
		slog.Int64("media_id", item.MediaID),
		slog.String("title", item.Title),
	)
	s.system.RecordEvent("playback_skip", item.MediaID, err.Error())
	return err
}

// runOnce starts the player for the item and waits for the first of: the
// item duration elapsing, the player exiting cleanly (natural end of a
// finite video), the player dying, or the context being canceled. The bool
// reports whether the player actually started.
func (s *Scheduler) runOnce(ctx context.Context, item Item) (bool, error) {
	handle, err := s.player.Start(ctx, item.Path, item.MediaType, item.Duration)
	if err != nil {
		return false, err
	}

	s.system.SetCurrentMedia(item)
	s.system.RecordEvent("playback_start", item.MediaID, item.Title)
	slog.Info("Started playback",
		slog.Int64("media_id", item.MediaID),
		slog.String("title", item.Title),
		slog.Duration("duration", item.Duration),
	)

	select {
	case <-ctx.Done():
		s.player.Stop(handle)
		return true, ctx.Err()
	case <-s.clock.After(item.Duration):
		s.player.Stop(handle)
		s.system.RecordEvent("playback_stop", item.MediaID, "duration elapsed")
		return true, nil
	case <-handle.Done():
		if handle.Err() != nil {
			return true, handle.Err()
		}
		s.system.RecordEvent("playback_stop", item.MediaID, "natural end")
		return true, nil
	}
}
