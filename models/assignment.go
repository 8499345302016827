package models

import "github.com/lumenview/marquee/shared"

// SingleMediaPlaylistID is the synthetic playlist ID used when a device has
// a single media file assigned rather than a real playlist. The negative ID
// keeps the checkin protocol identical for both assignment shapes.
const SingleMediaPlaylistID = -1

// DefaultItemDuration is applied when neither the item nor the playlist
// carries a duration, matching the server's default of ten seconds per item.
const DefaultItemDuration = 10

// MediaDescriptor identifies one playable asset as the server describes it.
// The ID is the cache key; filename and URL may change between polls, in
// which case the file is re-fetched.
type MediaDescriptor struct {
	ID               int64  `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"original_filename"`
	URL              string `json:"url,omitempty"`
	FileType         string `json:"file_type"`
	FileSize         int64  `json:"file_size"`
	Checksum         string `json:"checksum,omitempty"`
	Duration         int    `json:"duration,omitempty"`
}

type PlaylistItem struct {
	Position int             `json:"position"`
	Duration int             `json:"duration,omitempty"`
	Media    MediaDescriptor `json:"media"`
}

type Playlist struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	Loop            bool           `json:"loop_playlist"`
	DefaultDuration int            `json:"default_duration"`
	LastUpdated     string         `json:"last_updated"`
	Items           []PlaylistItem `json:"items"`
}

// Assignment is the server's answer to "what should this device play".
// Exactly one of Playlist or Media is set; both nil means nothing assigned.
type Assignment struct {
	Playlist *Playlist        `json:"playlist,omitempty"`
	Media    *MediaDescriptor `json:"media,omitempty"`
}

func (a Assignment) Empty() bool {
	return a.Playlist == nil && a.Media == nil
}

// Normalize flattens both assignment shapes into a playlist. A single media
// assignment becomes a looping one-item playlist with the synthetic ID so the
// rest of the agent only ever deals with one shape. Returns nil when nothing
// is assigned.
func (a Assignment) Normalize() *Playlist {
	if a.Playlist != nil {
		return a.Playlist
	}
	if a.Media != nil {
		return &Playlist{
			ID:              SingleMediaPlaylistID,
			Name:            a.Media.OriginalFilename,
			Loop:            true,
			DefaultDuration: DefaultItemDuration,
			Items: []PlaylistItem{
				{Position: 0, Media: *a.Media},
			},
		}
	}
	return nil
}

// ItemDuration resolves the effective duration in seconds for one item:
// item override, then playlist default, then the global default. Streams
// have no natural end so they also fall through to the defaults.
func (p *Playlist) ItemDuration(item PlaylistItem) int {
	if item.Duration > 0 {
		return item.Duration
	}
	if item.Media.Duration > 0 {
		return item.Media.Duration
	}
	if p.DefaultDuration > 0 {
		return p.DefaultDuration
	}
	return DefaultItemDuration
}

// Descriptors returns the media referenced by the playlist in play order.
func (p *Playlist) Descriptors() []MediaDescriptor {
	media := make([]MediaDescriptor, 0, len(p.Items))
	for _, item := range p.Items {
		media = append(media, item.Media)
	}
	return media
}

// Cacheable reports whether the descriptor refers to a downloadable file.
// Streams are played straight from their URL and never hit the cache.
func (m MediaDescriptor) Cacheable() bool {
	return m.FileType != shared.MEDIA_TYPE_STREAM
}
