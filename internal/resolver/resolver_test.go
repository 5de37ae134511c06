package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/troubadour-audio/troubadour/internal/player"
)

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(10, time.Minute)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.Put("q", []player.Track{{Title: "a"}})
	if _, ok := cache.Get("q"); !ok {
		t.Fatalf("expected cache hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("q"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("expired entry not removed")
	}
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	cache := NewCache(2, time.Minute)
	cache.Put("a", []player.Track{{Title: "a"}})
	cache.Put("b", []player.Track{{Title: "b"}})
	cache.Put("c", []player.Track{{Title: "c"}})

	if _, ok := cache.Get("a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	if _, ok := cache.Get("b"); !ok {
		t.Fatalf("entry b should survive")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatalf("entry c should survive")
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	cache := NewCache(10, time.Minute)
	cache.Put("q", []player.Track{{Title: "a"}})
	got, _ := cache.Get("q")
	got[0].Title = "mutated"
	again, _ := cache.Get("q")
	if again[0].Title != "a" {
		t.Fatalf("cache entry was mutated through a returned slice")
	}
}

func TestParseFlatListing(t *testing.T) {
	stdout := []byte(`
{"id":"one","title":"First","url":"https://yt/watch?v=one","duration":200,"channel":"Ch","view_count":5}
{"id":"two","title":"Second","webpage_url":"https://yt/watch?v=two","duration":100}

not json
{"id":"three","title":""}
`)
	tracks := parseFlatListing(stdout)
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Title != "First" || tracks[0].URL != "https://yt/watch?v=one" {
		t.Fatalf("unexpected first track: %+v", tracks[0])
	}
	if !tracks[0].NeedsProcessing || tracks[0].StreamURL != "" {
		t.Fatalf("flat listing must produce unresolved tracks: %+v", tracks[0])
	}
	if tracks[1].URL != "https://yt/watch?v=two" {
		t.Fatalf("unexpected second track: %+v", tracks[1])
	}
}

func TestClassifyExtractor(t *testing.T) {
	cases := []struct {
		stderr string
		want   player.ResolutionKind
	}{
		{"ERROR: HTTP Error 429: Too Many Requests", player.ResolutionRateLimited},
		{"ERROR: Private video. Sign in if you've been granted access", player.ResolutionPermission},
		{"ERROR: Video unavailable", player.ResolutionUnavailable},
		{"ERROR: unable to download webpage: connection reset", player.ResolutionNetwork},
		{"ERROR: something odd", player.ResolutionNoResults},
	}
	for _, c := range cases {
		if got := classifyExtractor(c.stderr, errors.New("exit status 1")); got != c.want {
			t.Fatalf("classifyExtractor(%q) = %v, want %v", c.stderr, got, c.want)
		}
	}
}

func TestLookupPrefixesSearchForFreeText(t *testing.T) {
	var gotArgs []string
	y := NewYTDLP("yt-dlp", time.Second, nil)
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"title":"Song","webpage_url":"https://yt/watch?v=x","duration":60}`), nil, nil
	}

	tracks, err := y.Lookup(context.Background(), "never gonna give you up")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(tracks) != 1 || tracks[0].Title != "Song" {
		t.Fatalf("unexpected tracks: %+v", tracks)
	}
	target := gotArgs[len(gotArgs)-1]
	if !strings.HasPrefix(target, "ytsearch1:") {
		t.Fatalf("free text should use search, got %q", target)
	}
}

func TestExtractReturnsStream(t *testing.T) {
	y := NewYTDLP("yt-dlp", time.Second, nil)
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte(`{"title":"Song","url":"https://cdn/audio.webm","webpage_url":"https://yt/watch?v=x","duration":60,"channel":"Ch"}`), nil, nil
	}

	track, err := y.Extract(context.Background(), "https://yt/watch?v=x", false)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if track.StreamURL != "https://cdn/audio.webm" {
		t.Fatalf("unexpected stream url %q", track.StreamURL)
	}
	if track.URL != "https://yt/watch?v=x" {
		t.Fatalf("unexpected page url %q", track.URL)
	}
}

func TestExtractFailureCarriesKind(t *testing.T) {
	y := NewYTDLP("yt-dlp", time.Second, nil)
	y.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Video unavailable"), errors.New("exit status 1")
	}

	_, err := y.Extract(context.Background(), "https://yt/watch?v=x", false)
	var resErr *player.ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	if resErr.Kind != player.ResolutionUnavailable {
		t.Fatalf("expected unavailable kind, got %v", resErr.Kind)
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>Test Show</title>
    <item>
      <title>Episode One</title>
      <link>https://show.example/ep1</link>
      <enclosure url="https://cdn.example/ep1.mp3" type="audio/mpeg" length="100"/>
      <itunes:duration>10:30</itunes:duration>
    </item>
    <item>
      <title>No Audio</title>
      <link>https://show.example/ep2</link>
    </item>
  </channel>
</rss>`

func TestFeedParse(t *testing.T) {
	f := NewFeedResolver(nil, nil)
	tracks, err := f.parse("https://show.example/rss", sampleFeed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected 1 playable track, got %d", len(tracks))
	}
	track := tracks[0]
	if track.Title != "Episode One" || track.StreamURL != "https://cdn.example/ep1.mp3" {
		t.Fatalf("unexpected track: %+v", track)
	}
	if track.Duration != 630 {
		t.Fatalf("expected 10:30 = 630s, got %d", track.Duration)
	}
	if track.Channel != "Test Show" {
		t.Fatalf("unexpected channel %q", track.Channel)
	}
}

func TestIsDirectStream(t *testing.T) {
	cases := map[string]bool{
		"https://cdn.example/song.mp3":       true,
		"https://cdn.example/song.ogg?sig=1": true,
		"https://yt/watch?v=x":               false,
		"song.mp3":                           false,
	}
	for url, want := range cases {
		if got := isDirectStream(url); got != want {
			t.Fatalf("isDirectStream(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestServiceCachesResolves(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)
	calls := 0
	svc.ytdlp.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		calls++
		return []byte(`{"title":"Song","webpage_url":"https://yt/watch?v=x"}`), nil, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Resolve(context.Background(), "some song"); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one extractor call, got %d", calls)
	}
}

func TestServicePrepareSkipsResolvedTracks(t *testing.T) {
	svc := NewService(DefaultConfig(), nil)
	svc.ytdlp.run = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		t.Fatalf("resolved track must not hit the extractor")
		return nil, nil, nil
	}

	track := player.Track{URL: "u", StreamURL: "stream://u"}
	got, err := svc.Prepare(context.Background(), track)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got.StreamURL != "stream://u" {
		t.Fatalf("unexpected track: %+v", got)
	}
}
