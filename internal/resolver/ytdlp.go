package resolver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/player"
)

// YTDLP shells out to the yt-dlp binary for search, playlist listing,
// and stream extraction.
type YTDLP struct {
	Binary  string
	Timeout time.Duration
	log     *zap.Logger

	// run is swapped out in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

func NewYTDLP(binary string, timeout time.Duration, log *zap.Logger) *YTDLP {
	if binary == "" {
		binary = "yt-dlp"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &YTDLP{Binary: binary, Timeout: timeout, log: log, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// ytdlpEntry is the subset of yt-dlp's JSON output we care about.
type ytdlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	Channel    string  `json:"channel"`
	Uploader   string  `json:"uploader"`
	ViewCount  int64   `json:"view_count"`
	IEKey      string  `json:"ie_key"`
}

// Lookup expands a query into one or more unresolved tracks using a
// flat listing, so playlist adds return quickly. Free-text queries go
// through yt-dlp's search.
func (y *YTDLP) Lookup(ctx context.Context, query string) ([]player.Track, error) {
	target := query
	if !isURL(query) {
		target = "ytsearch1:" + query
	}
	ctx, cancel := context.WithTimeout(ctx, y.Timeout)
	defer cancel()

	args := []string{
		"--dump-json",
		"--flat-playlist",
		"--no-warnings",
		"--default-search", "ytsearch",
		target,
	}
	stdout, stderr, err := y.run(ctx, y.Binary, args...)
	if err != nil {
		return nil, &player.ResolutionError{Query: query, Kind: classifyExtractor(string(stderr), err), Err: err}
	}
	tracks := parseFlatListing(stdout)
	if len(tracks) == 0 {
		return nil, &player.ResolutionError{Query: query, Kind: player.ResolutionNoResults}
	}
	return tracks, nil
}

// Extract fills in the direct stream locator and full metadata for a
// single track. fallback selects a plainer format chain for sources
// that refuse the preferred one.
func (y *YTDLP) Extract(ctx context.Context, pageURL string, fallback bool) (player.Track, error) {
	ctx, cancel := context.WithTimeout(ctx, y.Timeout)
	defer cancel()

	format := "bestaudio[acodec=opus]/bestaudio/best"
	if fallback {
		format = "bestaudio/best"
	}
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		"-f", format,
		pageURL,
	}
	stdout, stderr, err := y.run(ctx, y.Binary, args...)
	if err != nil {
		return player.Track{}, &player.ResolutionError{Query: pageURL, Kind: classifyExtractor(string(stderr), err), Err: err}
	}
	var entry ytdlpEntry
	if jerr := json.Unmarshal(bytes.TrimSpace(stdout), &entry); jerr != nil {
		return player.Track{}, &player.ResolutionError{Query: pageURL, Kind: player.ResolutionNoResults, Err: jerr}
	}
	track := entryTrack(entry)
	if track.StreamURL == "" {
		return player.Track{}, &player.ResolutionError{Query: pageURL, Kind: player.ResolutionUnavailable, Err: fmt.Errorf("no stream url in extraction")}
	}
	return track, nil
}

// parseFlatListing turns line-delimited JSON entries into unresolved
// tracks.
func parseFlatListing(stdout []byte) []player.Track {
	var tracks []player.Track
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry ytdlpEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		pageURL := entry.WebpageURL
		if pageURL == "" {
			pageURL = entry.URL
		}
		if pageURL == "" {
			continue
		}
		title := entry.Title
		if title == "" {
			title = pageURL
		}
		tracks = append(tracks, player.Track{
			URL:             pageURL,
			Title:           title,
			Duration:        int(entry.Duration),
			Thumbnail:       entry.Thumbnail,
			WebpageURL:      entry.WebpageURL,
			Channel:         channelOf(entry),
			ViewCount:       entry.ViewCount,
			NeedsProcessing: true,
		})
	}
	return tracks
}

func entryTrack(entry ytdlpEntry) player.Track {
	pageURL := entry.WebpageURL
	if pageURL == "" {
		pageURL = entry.URL
	}
	return player.Track{
		URL:        pageURL,
		Title:      entry.Title,
		Duration:   int(entry.Duration),
		Thumbnail:  entry.Thumbnail,
		WebpageURL: entry.WebpageURL,
		Channel:    channelOf(entry),
		ViewCount:  entry.ViewCount,
		StreamURL:  entry.URL,
	}
}

func channelOf(entry ytdlpEntry) string {
	if entry.Channel != "" {
		return entry.Channel
	}
	return entry.Uploader
}

// classifyExtractor maps yt-dlp stderr output to a failure kind. The
// extractor reports problems as free text, so this is keyword based.
func classifyExtractor(stderr string, err error) player.ResolutionKind {
	text := strings.ToLower(stderr)
	switch {
	case strings.Contains(text, "429") || strings.Contains(text, "rate-limit") || strings.Contains(text, "too many requests"):
		return player.ResolutionRateLimited
	case strings.Contains(text, "private") || strings.Contains(text, "sign in") || strings.Contains(text, "members-only") || strings.Contains(text, "age-restricted"):
		return player.ResolutionPermission
	case strings.Contains(text, "unavailable") || strings.Contains(text, "removed") || strings.Contains(text, "not available"):
		return player.ResolutionUnavailable
	case strings.Contains(text, "timed out") || strings.Contains(text, "connection") || strings.Contains(text, "network") || errors.Is(err, context.DeadlineExceeded):
		return player.ResolutionNetwork
	default:
		return player.ResolutionNoResults
	}
}

func isURL(query string) bool {
	return strings.HasPrefix(query, "http://") || strings.HasPrefix(query, "https://")
}
