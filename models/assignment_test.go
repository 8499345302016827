package models

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lumenview/marquee/shared"
)

func TestNormalize_PlaylistPassesThrough(t *testing.T) {
	pl := &Playlist{ID: 7, Name: "Lobby rotation", Loop: true}
	got := Assignment{Playlist: pl}.Normalize()
	if got != pl {
		t.Error("expected the playlist to be returned as-is")
	}
}

func TestNormalize_SingleMediaBecomesLoopingPlaylist(t *testing.T) {
	media := MediaDescriptor{
		ID:               42,
		Filename:         "abc123.mp4",
		OriginalFilename: "promo.mp4",
		FileType:         shared.MEDIA_TYPE_VIDEO,
	}
	got := Assignment{Media: &media}.Normalize()

	want := &Playlist{
		ID:              SingleMediaPlaylistID,
		Name:            "promo.mp4",
		Loop:            true,
		DefaultDuration: DefaultItemDuration,
		Items: []PlaylistItem{
			{Position: 0, Media: media},
		},
	}
	if !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}

func TestNormalize_EmptyAssignmentIsNil(t *testing.T) {
	if got := (Assignment{}).Normalize(); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestItemDuration_ResolutionOrder(t *testing.T) {
	tests := []struct {
		name     string
		playlist Playlist
		item     PlaylistItem
		want     int
	}{
		{
			name:     "item override wins",
			playlist: Playlist{DefaultDuration: 15},
			item:     PlaylistItem{Duration: 30, Media: MediaDescriptor{Duration: 90}},
			want:     30,
		},
		{
			name:     "media duration next",
			playlist: Playlist{DefaultDuration: 15},
			item:     PlaylistItem{Media: MediaDescriptor{Duration: 90}},
			want:     90,
		},
		{
			name:     "playlist default next",
			playlist: Playlist{DefaultDuration: 15},
			item:     PlaylistItem{},
			want:     15,
		},
		{
			name:     "global default last",
			playlist: Playlist{},
			item:     PlaylistItem{},
			want:     DefaultItemDuration,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.playlist.ItemDuration(tc.item); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestStamp_EqualAndEmpty(t *testing.T) {
	seven := int64(7)
	alsoSeven := int64(7)
	eight := int64(8)

	a := AssignmentStamp{PlaylistID: &seven, LastUpdated: "2026-03-01T08:00:00Z"}
	b := AssignmentStamp{PlaylistID: &alsoSeven, LastUpdated: "2026-03-01T08:00:00Z"}
	c := AssignmentStamp{PlaylistID: &eight, LastUpdated: "2026-03-01T08:00:00Z"}
	moved := AssignmentStamp{PlaylistID: &seven, LastUpdated: "2026-03-01T09:00:00Z"}

	if !a.Equal(b) {
		t.Error("stamps with equal values should be equal")
	}
	if a.Equal(c) {
		t.Error("stamps with different playlists should differ")
	}
	if a.Equal(moved) {
		t.Error("a moved last_updated should differ")
	}
	if a.Empty() {
		t.Error("a stamp with a playlist is not empty")
	}
	if !(AssignmentStamp{}).Empty() {
		t.Error("the zero stamp is empty")
	}
}

func TestCacheable_StreamsBypassTheCache(t *testing.T) {
	if (MediaDescriptor{FileType: shared.MEDIA_TYPE_STREAM}).Cacheable() {
		t.Error("streams must not be cached")
	}
	if !(MediaDescriptor{FileType: shared.MEDIA_TYPE_VIDEO}).Cacheable() {
		t.Error("videos must be cached")
	}
}

func TestPlaylist_LoopFieldUsesWireName(t *testing.T) {
	var pl Playlist
	payload := []byte(`{"id": 7, "loop_playlist": true}`)
	if err := json.Unmarshal(payload, &pl); err != nil {
		t.Fatal(err)
	}
	if !pl.Loop {
		t.Error("loop_playlist should populate Loop")
	}
}
