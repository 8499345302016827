package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/lumenview/marquee/cache"
	"github.com/lumenview/marquee/config"
	"github.com/lumenview/marquee/models"
	"github.com/lumenview/marquee/notify"
	"github.com/lumenview/marquee/playback"
	"github.com/lumenview/marquee/shared"
	"github.com/lumenview/marquee/signage"
	"github.com/lumenview/marquee/updater"
)

// State names one position in the sync loop's machine. Making the states
// explicit keeps the timing behavior (poll cadence vs item duration)
// testable without real sleeps.
type State string

const (
	// StateCheckin reports status upstream and receives the assignment
	// stamp plus any pending command.
	StateCheckin State = "checkin"
	// StateCommand executes a server command exactly once.
	StateCommand State = "command"
	// StateReconcile fetches the assignment, fills the cache and installs
	// the new plan. Entered only when the stamp moved or a previous
	// reconciliation left gaps.
	StateReconcile State = "reconcile"
	// StatePlay plays exactly one item (or idles briefly when there is
	// nothing to play) and loops back to checkin.
	StatePlay State = "play"
)

// checkinAlertThreshold is the consecutive-failure streak that triggers a
// single operator alert. The agent keeps retrying either way.
const checkinAlertThreshold = 5

// idleWait is how long the loop sleeps when an item produced no playback,
// so a device with nothing to play (or nothing playable) does not spin
// between checkins.
const idleWait = time.Second

// Remote is the slice of the signage client the sync loop needs.
type Remote interface {
	Checkin(ctx context.Context, report models.CheckinRequest) (models.CheckinResponse, error)
	FetchAssignment(ctx context.Context) (models.Assignment, error)
}

// MediaCache mirrors assigned media to local disk.
type MediaCache interface {
	Ensure(ctx context.Context, media []models.MediaDescriptor) cache.EnsureResult
	Evict(keep map[int64]bool) (int, error)
}

// Playback is the slice of the scheduler the sync loop drives.
type Playback interface {
	SetPlan(items []playback.Item, loop bool)
	PlayNext(ctx context.Context) (playback.Outcome, error)
	Current() (playback.Item, bool)
}

// BinaryUpdater installs a published client binary over the running one.
type BinaryUpdater interface {
	Apply(ctx context.Context) error
}

// Agent is the device's sync loop: check in on a fixed cadence, reconcile
// the local cache and plan when the server's assignment stamp moves, and
// drive the player one item at a time in between. Playback is never
// interrupted mid-item by a poll; cadence is honored at item boundaries.
type Agent struct {
	cfg      *config.Config
	remote   Remote
	cache    MediaCache
	sched    Playback
	system   *playback.System
	updater  BinaryUpdater
	notifier notify.Notifier
	clock    playback.Clock

	// rebooter is swapped out in tests.
	rebooter func() error

	response         models.CheckinResponse
	stamp            models.AssignmentStamp
	haveStamp        bool
	pendingResult    *models.CommandResult
	lastCheckin      time.Time
	lastCommandStamp string
	cacheIncomplete  bool
	alerted          bool
}

func New(
	cfg *config.Config,
	remote Remote,
	mediaCache MediaCache,
	sched Playback,
	system *playback.System,
	binaryUpdater BinaryUpdater,
	notifier notify.Notifier,
	clock playback.Clock,
) *Agent {
	return &Agent{
		cfg:      cfg,
		remote:   remote,
		cache:    mediaCache,
		sched:    sched,
		system:   system,
		updater:  binaryUpdater,
		notifier: notifier,
		clock:    clock,
		rebooter: defaultReboot,
	}
}

func defaultReboot() error {
	return exec.Command("sudo", "reboot").Run()
}

// Run drives the machine until the context is canceled or an installed
// update requires a restart, in which case it returns
// updater.ErrRestartRequired. Every other failure is recoverable and loops
// back through the machine at the poll cadence.
func (a *Agent) Run(ctx context.Context) error {
	if delay := a.cfg.StartupDelay(); delay > 0 {
		slog.Info("Delaying startup", slog.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(delay):
		}
	}

	state := StateCheckin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		next, err := a.step(ctx, state)
		if err != nil {
			return err
		}
		state = next
	}
}

// step executes one state and returns the next. Recoverable failures are
// absorbed here (logged, counted, folded into device state); a returned
// error is terminal for the whole loop.
func (a *Agent) step(ctx context.Context, state State) (State, error) {
	switch state {
	case StateCheckin:
		return a.stepCheckin(ctx)
	case StateCommand:
		return a.stepCommand(ctx)
	case StateReconcile:
		return a.stepReconcile(ctx)
	case StatePlay:
		return a.stepPlay(ctx)
	}
	return StateCheckin, fmt.Errorf("unknown state %q", state)
}

func (a *Agent) stepCheckin(ctx context.Context) (State, error) {
	if !a.pollDue() {
		return StatePlay, nil
	}

	// The cadence counts from the attempt, not from success, so a dead
	// server is polled once per interval rather than continuously.
	a.lastCheckin = a.clock.Now()

	resp, err := a.remote.Checkin(ctx, a.buildReport())
	if err != nil {
		if ctx.Err() != nil {
			return StateCheckin, ctx.Err()
		}
		a.handleCheckinFailure(err)
		return StatePlay, nil
	}

	a.system.MarkCheckin(a.lastCheckin)
	a.system.ClearError()
	a.pendingResult = nil
	a.alerted = false
	a.response = resp
	return StateCommand, nil
}

func (a *Agent) stepCommand(ctx context.Context) (State, error) {
	if a.response.Command == "" {
		return StateReconcile, nil
	}
	// The server repeats a command on every checkin until it sees the
	// acknowledgement; the timestamp tells a re-delivery apart from a
	// genuinely new command.
	if a.response.CommandTimestamp != "" && a.response.CommandTimestamp == a.lastCommandStamp {
		return StateReconcile, nil
	}
	if err := a.runCommand(ctx, a.response.Command); err != nil {
		return StateCommand, err
	}
	a.lastCommandStamp = a.response.CommandTimestamp
	return StateReconcile, nil
}

func (a *Agent) stepReconcile(ctx context.Context) (State, error) {
	changed := !a.haveStamp || !a.stamp.Equal(a.response.Assignment)
	if !changed && !a.cacheIncomplete {
		return StatePlay, nil
	}

	if err := a.reconcile(ctx); err != nil {
		if ctx.Err() != nil {
			return StateReconcile, ctx.Err()
		}
		// Leave the stamp alone so the next cycle reconciles again.
		slog.Error("Failed to reconcile assignment",
			slog.String("stack", err.Error()),
		)
		a.system.SetError(err)
		return StatePlay, nil
	}

	a.stamp = a.response.Assignment
	a.haveStamp = true
	return StatePlay, nil
}

func (a *Agent) stepPlay(ctx context.Context) (State, error) {
	outcome, err := a.sched.PlayNext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return StatePlay, ctx.Err()
		}
		if a.system.LastError() != err.Error() {
			slog.Error("Playback is not possible right now",
				slog.String("stack", err.Error()),
			)
		}
		a.system.SetError(err)
	}

	// Anything that did not actually play an item must wait here: a plan
	// full of unplayable items would otherwise respawn the player at
	// exec speed for the whole poll window.
	if outcome != playback.OutcomePlayed {
		select {
		case <-ctx.Done():
			return StatePlay, ctx.Err()
		case <-a.clock.After(idleWait):
		}
	}
	return StateCheckin, nil
}

func (a *Agent) pollDue() bool {
	if a.lastCheckin.IsZero() {
		return true
	}
	return a.clock.Now().Sub(a.lastCheckin) >= a.cfg.Interval()
}

func (a *Agent) buildReport() models.CheckinRequest {
	return models.CheckinRequest{
		CurrentMedia:  a.system.CurrentMedia(),
		ClientVersion: shared.CLIENT_VERSION,
		LastError:     a.system.LastError(),
		CommandResult: a.pendingResult,
		Timestamp:     a.clock.Now().UTC().Format(time.RFC3339),
	}
}

func (a *Agent) handleCheckinFailure(err error) {
	unregistered := errors.Is(err, signage.ErrUnregistered)
	streak := a.system.MarkCheckinFailure(err, unregistered)

	if unregistered {
		slog.Warn("Device is not registered on the server yet",
			slog.String("device_id", a.cfg.Marquee.DeviceID),
		)
		return
	}

	slog.Error("Checkin failed",
		slog.String("stack", err.Error()),
		slog.Int("streak", streak),
	)
	if streak >= checkinAlertThreshold && !a.alerted {
		a.alerted = true
		a.notifier.Alert(
			"Signage device unreachable",
			fmt.Sprintf("%s has failed %d checkins in a row: %s",
				a.cfg.Marquee.DeviceID, streak, err),
		)
	}
}

// runCommand executes one server command. Reboot and update both end the
// process on success, so their results only make it back to the server when
// they fail; the server infers success from the device coming back.
func (a *Agent) runCommand(ctx context.Context, command string) error {
	slog.Info("Received command", slog.String("command", command))
	a.system.RecordEvent("command", 0, command)

	switch command {
	case shared.COMMAND_REBOOT:
		if err := a.rebooter(); err != nil {
			slog.Error("Failed to reboot",
				slog.String("stack", err.Error()),
			)
			a.pendingResult = &models.CommandResult{
				Command: command,
				Success: false,
				Detail:  err.Error(),
			}
			return nil
		}
		a.pendingResult = &models.CommandResult{Command: command, Success: true}
		return nil
	case shared.COMMAND_UPDATE_CLIENT:
		if err := a.updater.Apply(ctx); err != nil {
			slog.Error("Failed to apply client update",
				slog.String("stack", err.Error()),
			)
			a.pendingResult = &models.CommandResult{
				Command: command,
				Success: false,
				Detail:  err.Error(),
			}
			return nil
		}
		return updater.ErrRestartRequired
	default:
		slog.Warn("Ignoring unknown command", slog.String("command", command))
		a.pendingResult = &models.CommandResult{
			Command: command,
			Success: false,
			Detail:  "unknown command",
		}
		return nil
	}
}

// reconcile fetches the full assignment, makes its media playable and
// installs the new plan. Items whose download failed are left out of the
// plan and retried next cycle via the cacheIncomplete flag, so one bad file
// never blocks the rest of the playlist.
func (a *Agent) reconcile(ctx context.Context) error {
	assignment, err := a.remote.FetchAssignment(ctx)
	if err != nil {
		return err
	}

	pl := assignment.Normalize()
	if pl == nil {
		slog.Info("Nothing assigned, going idle")
		a.sched.SetPlan(nil, false)
		a.cacheIncomplete = false
		a.evict(map[int64]bool{})
		return nil
	}

	result := a.cache.Ensure(ctx, pl.Descriptors())

	items := make([]playback.Item, 0, len(pl.Items))
	for _, item := range pl.Items {
		path, ok := result.Ready[item.Media.ID]
		if !ok {
			continue
		}
		title := item.Media.OriginalFilename
		if title == "" {
			title = item.Media.Filename
		}
		items = append(items, playback.Item{
			MediaID:   item.Media.ID,
			Title:     title,
			Path:      path,
			MediaType: item.Media.FileType,
			Duration:  time.Duration(pl.ItemDuration(item)) * time.Second,
		})
	}

	a.cacheIncomplete = len(result.Failed) > 0
	a.sched.SetPlan(items, pl.Loop)
	slog.Info("Installed new plan",
		slog.Int64("playlist_id", pl.ID),
		slog.String("name", pl.Name),
		slog.Int("items", len(items)),
		slog.Int("failed", len(result.Failed)),
		slog.Bool("loop", pl.Loop),
	)

	keep := map[int64]bool{}
	for _, m := range pl.Descriptors() {
		keep[m.ID] = true
	}
	if current, ok := a.sched.Current(); ok {
		keep[current.MediaID] = true
	}
	a.evict(keep)
	return nil
}

func (a *Agent) evict(keep map[int64]bool) {
	removed, err := a.cache.Evict(keep)
	if err != nil {
		slog.Error("Cache eviction failed",
			slog.String("stack", err.Error()),
		)
		return
	}
	if removed > 0 {
		slog.Info("Evicted stale media", slog.Int("removed", removed))
	}
}
