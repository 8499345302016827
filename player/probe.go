package player

import (
	"log/slog"
	"os/exec"

	"github.com/lumenview/marquee/shared"
)

var lookPath = exec.LookPath

// Detect probes the host for a supported player binary, in fixed preference
// order: omxplayer (hardware accelerated), vlc, then ffplay. Probing happens
// once at startup; the selection never changes while the agent runs. The
// screen index picks which display a multi-head host renders on.
func Detect(screen int) (Player, error) {
	if path, err := lookPath(shared.PLAYER_OMXPLAYER); err == nil {
		slog.Info("Found media player", slog.String("player", shared.PLAYER_OMXPLAYER), slog.String("path", path))
		return &omxPlayer{binary: path}, nil
	}
	if path, err := lookPath(shared.PLAYER_VLC); err == nil {
		slog.Info("Found media player", slog.String("player", shared.PLAYER_VLC), slog.String("path", path))
		return &vlcPlayer{binary: path, screen: screen}, nil
	}
	if path, err := lookPath(shared.PLAYER_FFPLAY); err == nil {
		slog.Info("Found media player", slog.String("player", shared.PLAYER_FFPLAY), slog.String("path", path))
		return &ffplayPlayer{binary: path}, nil
	}
	return nil, ErrNoPlayer
}
