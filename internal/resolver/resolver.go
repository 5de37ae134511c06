// Package resolver turns free-text queries, page URLs, feed URLs, and
// direct stream URLs into playable tracks.
package resolver

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/player"
)

// Config tunes the resolver service.
type Config struct {
	YTDLPPath string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	// Workers bounds concurrent extraction subprocesses.
	Workers int
}

func DefaultConfig() Config {
	return Config{
		YTDLPPath: "yt-dlp",
		Timeout:   30 * time.Second,
		CacheSize: 1000,
		CacheTTL:  time.Hour,
		Workers:   2,
	}
}

// Service routes queries to the right backend and caches results.
// It implements player.Resolver.
type Service struct {
	ytdlp *YTDLP
	feeds *FeedResolver
	cache *Cache
	sem   chan struct{}
	log   *zap.Logger
}

func NewService(cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Service{
		ytdlp: NewYTDLP(cfg.YTDLPPath, cfg.Timeout, log),
		feeds: NewFeedResolver(&http.Client{Timeout: cfg.Timeout}, log),
		cache: NewCache(cfg.CacheSize, cfg.CacheTTL),
		sem:   make(chan struct{}, workers),
		log:   log,
	}
}

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() { <-s.sem }

// Resolve expands a query into tracks, consulting the cache first.
func (s *Service) Resolve(ctx context.Context, query string) ([]player.Track, error) {
	query = strings.TrimSpace(query)
	if tracks, ok := s.cache.Get(query); ok {
		return tracks, nil
	}
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	var tracks []player.Track
	var err error
	switch {
	case isDirectStream(query):
		tracks = []player.Track{directTrack(query)}
	case looksLikeFeed(query):
		tracks, err = s.feeds.Resolve(ctx, query)
	default:
		tracks, err = s.ytdlp.Lookup(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	s.cache.Put(query, tracks)
	return tracks, nil
}

// Prepare fills in the stream locator for one track.
func (s *Service) Prepare(ctx context.Context, track player.Track) (player.Track, error) {
	if track.StreamURL != "" && !track.NeedsProcessing {
		return track, nil
	}
	if err := s.acquire(ctx); err != nil {
		return player.Track{}, err
	}
	defer s.release()

	info, err := s.ytdlp.Extract(ctx, track.URL, false)
	if err != nil {
		return player.Track{}, err
	}
	return track.WithInfo(info), nil
}

// PrepareFallback re-extracts with the conservative format chain.
func (s *Service) PrepareFallback(ctx context.Context, track player.Track) (player.Track, error) {
	if err := s.acquire(ctx); err != nil {
		return player.Track{}, err
	}
	defer s.release()

	info, err := s.ytdlp.Extract(ctx, track.URL, true)
	if err != nil {
		return player.Track{}, err
	}
	return track.WithInfo(info), nil
}

var streamExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
	".m4a":  true,
	".aac":  true,
}

// isDirectStream reports whether the URL can be handed straight to
// the sink without extraction.
func isDirectStream(rawURL string) bool {
	if !isURL(rawURL) {
		return false
	}
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return streamExtensions[strings.ToLower(path.Ext(trimmed))]
}

func directTrack(rawURL string) player.Track {
	title := rawURL
	if base := path.Base(strings.TrimRight(rawURL, "/")); base != "" && base != "." {
		if i := strings.IndexAny(base, "?#"); i >= 0 {
			base = base[:i]
		}
		title = base
	}
	return player.Track{URL: rawURL, Title: title, StreamURL: rawURL}
}
