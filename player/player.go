package player

import (
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// ErrNoPlayer is returned by Detect when none of the supported player
// binaries exist on the host. The agent keeps checking in regardless so the
// operator can see the device online with this error attached.
var ErrNoPlayer = errors.New("no supported media player found")

// ErrUnsupportedMedia is returned by Start when the selected player cannot
// render the requested media type (omxplayer has no image support).
var ErrUnsupportedMedia = errors.New("media type not supported by selected player")

// Handle tracks one running player process.
type Handle interface {
	// Done is closed once the process has exited, cleanly or not.
	Done() <-chan struct{}
	// Err reports how the process ended: nil for a clean exit, otherwise
	// the exec error. Only meaningful after Done is closed.
	Err() error
	// Alive reports whether the process is still running.
	Alive() bool
}

// Player launches exactly one media item at a time, fullscreen, single-shot.
// Looping across items is the scheduler's job, never the player's.
type Player interface {
	Name() string
	Supports(mediaType string) bool
	Start(ctx context.Context, path string, mediaType string, duration time.Duration) (Handle, error)
	Stop(h Handle)
}

const stopGracePeriod = 3 * time.Second

type procHandle struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
}

func launch(cmd *exec.Cmd) (*procHandle, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	h := &procHandle{cmd: cmd, exited: make(chan struct{})}
	go func() {
		h.waitErr = cmd.Wait()
		close(h.exited)
	}()
	return h, nil
}

func (h *procHandle) Done() <-chan struct{} {
	return h.exited
}

func (h *procHandle) Err() error {
	select {
	case <-h.exited:
		return h.waitErr
	default:
		return nil
	}
}

func (h *procHandle) Alive() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}

// stop asks the process to terminate and escalates to SIGKILL if it ignores
// the request for longer than the grace period.
func (h *procHandle) stop() {
	if !h.Alive() {
		return
	}
	h.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-h.exited:
	case <-time.After(stopGracePeriod):
		h.cmd.Process.Kill()
		<-h.exited
	}
}
