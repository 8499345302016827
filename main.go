package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lumenview/marquee/agent"
	"github.com/lumenview/marquee/cache"
	"github.com/lumenview/marquee/config"
	"github.com/lumenview/marquee/db"
	"github.com/lumenview/marquee/events"
	"github.com/lumenview/marquee/jobs"
	"github.com/lumenview/marquee/migrations"
	"github.com/lumenview/marquee/notify"
	"github.com/lumenview/marquee/playback"
	"github.com/lumenview/marquee/player"
	"github.com/lumenview/marquee/routes"
	"github.com/lumenview/marquee/signage"
	"github.com/lumenview/marquee/updater"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	var logOutput io.Writer = os.Stdout
	if cfg.Marquee.LogFile != "" {
		f, err := os.OpenFile(cfg.Marquee.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		defer f.Close()
		logOutput = io.MultiWriter(os.Stdout, f)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: cfg.GetLogLevel(),
	})))

	store, err := db.NewSqliteStore(cfg.Marquee.DbPath)
	if err != nil {
		slog.Error("Failed to open local database",
			slog.String("stack", err.Error()),
			slog.String("path", cfg.Marquee.DbPath),
		)
		os.Exit(1)
	}

	if err := store.ApplyMigrations(migrations.GetMigrations()); err != nil {
		slog.Error("Failed to apply migrations",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}

	events.Init()

	notifier := notify.New(cfg.Pushover.Token, cfg.Pushover.Recipient)

	detected, err := player.Detect(cfg.Marquee.ScreenIndex)
	if err != nil {
		// Keep running: checkins and downloads still work, and an operator
		// can install a player without touching the agent.
		slog.Error("No supported media player found",
			slog.String("stack", err.Error()),
		)
		notifier.Alert(
			"Signage device has no player",
			fmt.Sprintf("%s cannot find omxplayer, vlc or ffplay", cfg.Marquee.DeviceID),
		)
	}

	remote := signage.New(cfg.Marquee.ServerURL, cfg.Marquee.DeviceID)

	mediaCache, err := cache.New(cfg.Marquee.MediaDir, store, remote)
	if err != nil {
		slog.Error("Failed to prepare media directory",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}

	playerName := ""
	if detected != nil {
		playerName = detected.Name()
	}
	system := playback.NewSystem(store, cfg.Marquee.DeviceID, playerName)
	sched := playback.NewScheduler(detected, playback.NewClock(), system)

	jobScheduler := jobs.SetupInBackground(store, remote, mediaCache, cfg.Marquee.MediaDir)
	jobScheduler.StartAsync()

	router := routes.Register(http.NewServeMux(), store, system, sched)
	go func() {
		slog.Info("Status API listening", slog.String("addr", cfg.Marquee.HTTPAddr))
		if err := http.ListenAndServe(cfg.Marquee.HTTPAddr, router); err != nil {
			slog.Error("Status API stopped",
				slog.String("stack", err.Error()),
			)
		}
	}()

	binaryUpdater := updater.New(remote, cfg.Update.Secret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("Marquee agent starting",
		slog.String("device_id", cfg.Marquee.DeviceID),
		slog.String("server", cfg.Marquee.ServerURL),
		slog.String("player", playerName),
	)

	runner := agent.New(cfg, remote, mediaCache, sched, system, binaryUpdater, notifier, playback.NewClock())
	err = runner.Run(ctx)

	jobScheduler.Stop()

	switch {
	case errors.Is(err, updater.ErrRestartRequired):
		slog.Info("Exiting for restart after update")
	case errors.Is(err, context.Canceled):
		slog.Info("Shutting down")
	default:
		slog.Error("Agent stopped unexpectedly",
			slog.String("stack", err.Error()),
		)
		os.Exit(1)
	}
}
