package player

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/lumenview/marquee/shared"
)

// omxPlayer drives the Raspberry Pi's hardware-accelerated player. Video and
// streams only; it cannot display still images.
type omxPlayer struct {
	binary string
}

func (p *omxPlayer) Name() string {
	return shared.PLAYER_OMXPLAYER
}

func (p *omxPlayer) Supports(mediaType string) bool {
	return mediaType == shared.MEDIA_TYPE_VIDEO || mediaType == shared.MEDIA_TYPE_STREAM
}

func (p *omxPlayer) Start(ctx context.Context, path string, mediaType string, duration time.Duration) (Handle, error) {
	if !p.Supports(mediaType) {
		return nil, fmt.Errorf("%w: omxplayer cannot play %s", ErrUnsupportedMedia, mediaType)
	}
	cmd := exec.CommandContext(ctx, p.binary, omxArgs(path)...)
	return launch(cmd)
}

func (p *omxPlayer) Stop(h Handle) {
	stopHandle(h)
}

func omxArgs(path string) []string {
	return []string{"-o", "hdmi", "--no-osd", path}
}

// vlcPlayer is the general-purpose variant: plays everything, including
// still images with a fixed display duration.
type vlcPlayer struct {
	binary string
	screen int
}

func (p *vlcPlayer) Name() string {
	return shared.PLAYER_VLC
}

func (p *vlcPlayer) Supports(mediaType string) bool {
	switch mediaType {
	case shared.MEDIA_TYPE_IMAGE, shared.MEDIA_TYPE_VIDEO, shared.MEDIA_TYPE_STREAM:
		return true
	}
	return false
}

func (p *vlcPlayer) Start(ctx context.Context, path string, mediaType string, duration time.Duration) (Handle, error) {
	cmd := exec.CommandContext(ctx, p.binary, vlcArgs(path, mediaType, duration, p.screen)...)
	return launch(cmd)
}

func (p *vlcPlayer) Stop(h Handle) {
	stopHandle(h)
}

func vlcArgs(path string, mediaType string, duration time.Duration, screen int) []string {
	args := []string{
		"--intf", "dummy",
		"--fullscreen",
		"--no-osd",
		"--no-video-title-show",
		"--no-qt-privacy-ask",
		"--quiet",
		"--no-interact",
		"--play-and-exit",
	}
	if screen > 0 {
		args = append(args, fmt.Sprintf("--qt-fullscreen-screennumber=%d", screen))
	}
	if mediaType == shared.MEDIA_TYPE_IMAGE {
		seconds := int(duration / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		args = append(args, fmt.Sprintf("--image-duration=%d", seconds))
	}
	return append(args, path)
}

// ffplayPlayer is the minimal fallback shipped with ffmpeg.
type ffplayPlayer struct {
	binary string
}

func (p *ffplayPlayer) Name() string {
	return shared.PLAYER_FFPLAY
}

func (p *ffplayPlayer) Supports(mediaType string) bool {
	return mediaType == shared.MEDIA_TYPE_VIDEO || mediaType == shared.MEDIA_TYPE_STREAM
}

func (p *ffplayPlayer) Start(ctx context.Context, path string, mediaType string, duration time.Duration) (Handle, error) {
	if !p.Supports(mediaType) {
		return nil, fmt.Errorf("%w: ffplay cannot display %s", ErrUnsupportedMedia, mediaType)
	}
	cmd := exec.CommandContext(ctx, p.binary, ffplayArgs(path)...)
	return launch(cmd)
}

func (p *ffplayPlayer) Stop(h Handle) {
	stopHandle(h)
}

func ffplayArgs(path string) []string {
	return []string{"-fs", "-autoexit", "-loglevel", "quiet", path}
}

func stopHandle(h Handle) {
	if ph, ok := h.(*procHandle); ok {
		ph.stop()
	}
}
