package events

import "github.com/r3labs/sse/v2"

var Server *sse.Server

func Init() {
	server := sse.New()
	server.AutoReplay = false
	server.CreateStream("playback")
	Server = server
}

// PublishPlayback pushes a playback state snapshot to any connected local
// clients. Safe to call before Init during tests.
func PublishPlayback(data []byte) {
	if Server == nil {
		return
	}
	Server.Publish("playback", &sse.Event{Data: data})
}
