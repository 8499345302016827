package routes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/lumenview/marquee/db"
	"github.com/lumenview/marquee/events"
	"github.com/lumenview/marquee/playback"
)

const historyLimit = 20

// Register wires the local status API. It binds to loopback by default and
// exists so an operator standing at the screen (or port-forwarding to it)
// can see what the device thinks it is doing without a terminal.
func Register(mux *http.ServeMux, store db.Store, system *playback.System, sched *playback.Scheduler) http.Handler {

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "Marquee signage agent. Status at /api/status, live updates at /events.\n")
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(system.Snapshot())
	})

	mux.HandleFunc("/api/assignment", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sched.Snapshot())
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		history, err := store.RecentEvents(historyLimit)
		if err != nil {
			slog.Error("Failed to read event history",
				slog.String("stack", err.Error()),
			)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "failed to read event history"})
			return
		}
		json.NewEncoder(w).Encode(history)
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		events.Server.ServeHTTP(w, r)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Origin, Content-Type, Accept"},
	})

	return c.Handler(mux)
}
