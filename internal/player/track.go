package player

import "github.com/troubadour-audio/troubadour/pkg/trb"

// Track is one queued or playing media item. A track from a flat
// listing starts with NeedsProcessing set and no StreamURL; background
// resolution produces a completed copy via WithStream. Tracks are
// treated as immutable once resolved.
type Track struct {
	URL             string
	Title           string
	Duration        int
	Thumbnail       string
	WebpageURL      string
	Channel         string
	ViewCount       int64
	Requester       string
	StreamURL       string
	Seq             int64
	NeedsProcessing bool
}

// WithStream returns a resolved copy carrying the stream locator.
func (t Track) WithStream(streamURL string) Track {
	t.StreamURL = streamURL
	t.NeedsProcessing = false
	return t
}

// WithInfo returns a copy with metadata filled in from a full
// extraction, keeping requester and sequence number.
func (t Track) WithInfo(info Track) Track {
	info.Requester = t.Requester
	info.Seq = t.Seq
	if info.URL == "" {
		info.URL = t.URL
	}
	return info
}

// SongData converts the track to its wire representation.
func (t Track) SongData() trb.SongData {
	return trb.SongData{
		URL:           t.URL,
		Title:         t.Title,
		Duration:      t.Duration,
		Thumbnail:     t.Thumbnail,
		WebpageURL:    t.WebpageURL,
		Channel:       t.Channel,
		ViewCount:     t.ViewCount,
		RequesterName: t.Requester,
		AudioURL:      t.StreamURL,
	}
}
