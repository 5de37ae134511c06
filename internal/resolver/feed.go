package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/player"
)

// FeedResolver expands RSS/Atom feed URLs into tracks, one per
// episode enclosure. Feed entries come back fully resolved since the
// enclosure URL streams directly.
type FeedResolver struct {
	http *http.Client
	log  *zap.Logger
	// MaxEpisodes bounds how many episodes one feed contributes.
	MaxEpisodes int
}

func NewFeedResolver(client *http.Client, log *zap.Logger) *FeedResolver {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedResolver{http: client, log: log, MaxEpisodes: 50}
}

func (f *FeedResolver) Resolve(ctx context.Context, feedURL string) ([]player.Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &player.ResolutionError{Query: feedURL, Kind: player.ResolutionNoResults, Err: err}
	}
	req.Header.Set("User-Agent", "troubadour/1.0")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &player.ResolutionError{Query: feedURL, Kind: player.ResolutionNetwork, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		kind := player.ResolutionUnavailable
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			kind = player.ResolutionRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = player.ResolutionPermission
		}
		return nil, &player.ResolutionError{Query: feedURL, Kind: kind, Err: fmt.Errorf("feed fetch failed: %s", resp.Status)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &player.ResolutionError{Query: feedURL, Kind: player.ResolutionNetwork, Err: err}
	}
	return f.parse(feedURL, string(body))
}

func (f *FeedResolver) parse(feedURL string, body string) ([]player.Track, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(body)
	if err != nil {
		return nil, &player.ResolutionError{Query: feedURL, Kind: player.ResolutionNoResults, Err: err}
	}

	tracks := make([]player.Track, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		audioURL := pickEnclosure(item)
		if audioURL == "" {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = audioURL
		}
		tracks = append(tracks, player.Track{
			URL:        audioURL,
			Title:      title,
			Duration:   episodeDuration(item),
			Thumbnail:  itemImage(item, feed),
			WebpageURL: strings.TrimSpace(item.Link),
			Channel:    strings.TrimSpace(feed.Title),
			StreamURL:  audioURL,
		})
		if f.MaxEpisodes > 0 && len(tracks) >= f.MaxEpisodes {
			break
		}
	}
	if len(tracks) == 0 {
		return nil, &player.ResolutionError{Query: feedURL, Kind: player.ResolutionNoResults, Err: fmt.Errorf("feed has no playable enclosures")}
	}
	return tracks, nil
}

func pickEnclosure(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.HasPrefix(enc.Type, "audio/") {
			return enc.URL
		}
	}
	return ""
}

func episodeDuration(item *gofeed.Item) int {
	if item.ITunesExt == nil {
		return 0
	}
	raw := strings.TrimSpace(item.ITunesExt.Duration)
	if raw == "" {
		return 0
	}
	parts := strings.Split(raw, ":")
	seconds := 0
	for _, part := range parts {
		n := 0
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0
			}
			n = n*10 + int(r-'0')
		}
		seconds = seconds*60 + n
	}
	return seconds
}

func itemImage(item *gofeed.Item, feed *gofeed.Feed) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}
	if feed.Image != nil && feed.Image.URL != "" {
		return feed.Image.URL
	}
	return ""
}

// looksLikeFeed guesses whether a URL points at a podcast/RSS feed.
func looksLikeFeed(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if !isURL(lower) {
		return false
	}
	for _, marker := range []string{".xml", ".rss", "/rss", "/feed", "format=rss"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
