package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/troubadour-audio/troubadour/internal/sink"
	"github.com/troubadour-audio/troubadour/internal/voice"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

type fakeVoiceHandle struct {
	channelID int64
}

func (h *fakeVoiceHandle) ChannelID() int64  { return h.channelID }
func (h *fakeVoiceHandle) IsConnected() bool { return true }
func (h *fakeVoiceHandle) Close() error      { return nil }

type fakeVoice struct {
	mu          sync.Mutex
	connected   bool
	channelID   int64
	connectErr  error
	ensures     int
	disconnects int
	rejoins     int
}

func (v *fakeVoice) EnsureConnected(ctx context.Context, guildID int64, channelID int64) (voice.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensures++
	if v.connectErr != nil {
		return nil, v.connectErr
	}
	v.connected = true
	v.channelID = channelID
	return &fakeVoiceHandle{channelID: channelID}, nil
}

func (v *fakeVoice) Disconnect(guildID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disconnects++
	v.connected = false
}

func (v *fakeVoice) IsConnected(guildID int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *fakeVoice) ChannelID(guildID int64) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelID
}

func (v *fakeVoice) EnableAutoRejoin(guildID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejoins++
}

type fakeResolver struct {
	mu         sync.Mutex
	tracks     []Track
	resolveErr error
	prepareErr error
	prepares   int
	fallbacks  int
}

func (r *fakeResolver) Resolve(ctx context.Context, query string) ([]Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	out := make([]Track, len(r.tracks))
	copy(out, r.tracks)
	return out, nil
}

func (r *fakeResolver) Prepare(ctx context.Context, track Track) (Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prepares++
	if r.prepareErr != nil {
		return Track{}, r.prepareErr
	}
	track.StreamURL = "stream://" + track.Title
	track.NeedsProcessing = false
	return track, nil
}

func (r *fakeResolver) PrepareFallback(ctx context.Context, track Track) (Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks++
	track.StreamURL = "fallback://" + track.Title
	track.NeedsProcessing = false
	return track, nil
}

type fakeSinkHandle struct {
	stop func()
}

func (h *fakeSinkHandle) Stop() { h.stop() }

type fakeSink struct {
	mu      sync.Mutex
	plays   []string
	dones   []func(error)
	stops   int
	playErr error
}

func (s *fakeSink) Play(streamURL string, opts sink.Options, done func(error)) (sink.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return nil, s.playErr
	}
	s.plays = append(s.plays, streamURL)
	s.dones = append(s.dones, done)
	return &fakeSinkHandle{stop: func() {
		s.mu.Lock()
		s.stops++
		s.mu.Unlock()
	}}, nil
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.plays)
}

// complete invokes the done callback recorded for play number n
// (zero-based), simulating the pipeline finishing.
func (s *fakeSink) complete(n int, err error) {
	s.mu.Lock()
	done := s.dones[n]
	s.mu.Unlock()
	done(err)
}

func (s *fakeSink) completeLatest(err error) {
	s.mu.Lock()
	done := s.dones[len(s.dones)-1]
	s.mu.Unlock()
	done(err)
}

type recordedEvent struct {
	action string
	data   any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishEvent(guildID int64, action string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{action: action, data: data})
}

func (r *eventRecorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.action)
	}
	return out
}

func (r *eventRecorder) count(action string) int {
	n := 0
	for _, a := range r.actions() {
		if a == action {
			n++
		}
	}
	return n
}

func resolvedTrack(title string) Track {
	return Track{
		URL:       "https://example.com/" + title,
		Title:     title,
		Duration:  180,
		StreamURL: "stream://" + title,
	}
}

type engineFixture struct {
	engine   *Engine
	resolver *fakeResolver
	voice    *fakeVoice
	sink     *fakeSink
	events   *eventRecorder
}

func newEngineFixture(t *testing.T, cfg Config, tracks ...Track) *engineFixture {
	t.Helper()
	f := &engineFixture{
		resolver: &fakeResolver{tracks: tracks},
		voice:    &fakeVoice{},
		sink:     &fakeSink{},
		events:   &eventRecorder{},
	}
	f.engine = NewEngine(7, cfg, f.resolver, f.voice, f.sink, f.events, nil)
	f.engine.recovery.sleep = func(context.Context, time.Duration) {}
	t.Cleanup(f.engine.Close)
	return f
}

func playbackConfig() Config {
	cfg := DefaultEngineConfig()
	cfg.IdleTimeout = 0
	return cfg
}

func connect(t *testing.T, f *engineFixture) {
	t.Helper()
	if _, err := f.engine.Connect(context.Background(), 42); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func TestAddToQueueStartsPlayback(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"))
	connect(t, f)

	added, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "first", RequesterName: "alice"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.Status != "added" || added.SongsAdded != 1 || added.SongTitle != "first" {
		t.Fatalf("unexpected reply: %+v", added)
	}
	if f.engine.CurrentState() != StatePlaying {
		t.Fatalf("expected playing, got %s", f.engine.CurrentState())
	}

	started := 0
	for _, ev := range f.events.events {
		if ev.action != trb.EvtSongStarted {
			continue
		}
		started++
		song, ok := ev.data.(trb.SongData)
		if !ok {
			t.Fatalf("song_started payload has type %T", ev.data)
		}
		if song.AudioURL == "" {
			t.Fatalf("song_started must carry a resolved stream locator")
		}
	}
	if started != 1 {
		t.Fatalf("expected one song_started, got %d", started)
	}
}

func TestSkipNothingPlayingEmitsNoEvents(t *testing.T) {
	f := newEngineFixture(t, playbackConfig())

	reply, err := f.engine.Skip(context.Background())
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if reply.Status != "nothing_playing" {
		t.Fatalf("expected nothing_playing, got %q", reply.Status)
	}
	if len(f.events.actions()) != 0 {
		t.Fatalf("expected zero events, got %v", f.events.actions())
	}
}

func TestSkipAdvancesAndDiscardsStaleCompletion(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"), resolvedTrack("second"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "both"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	reply, err := f.engine.Skip(context.Background())
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if reply.Status != "skipped" || reply.SongTitle != "first" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if f.sink.playCount() != 2 {
		t.Fatalf("expected second track to start, plays=%d", f.sink.playCount())
	}

	// The skipped track's pipeline may still report in; its epoch is
	// stale and must not advance the queue again.
	startedBefore := f.events.count(trb.EvtSongStarted)
	f.sink.complete(0, nil)
	if f.sink.playCount() != 2 {
		t.Fatalf("stale completion started a track")
	}
	if f.events.count(trb.EvtSongStarted) != startedBefore {
		t.Fatalf("stale completion emitted events")
	}
}

func TestNaturalCompletionAdvancesThenIdles(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"), resolvedTrack("second"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "both"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	f.sink.complete(0, nil)
	if f.engine.CurrentState() != StatePlaying {
		t.Fatalf("expected second track playing, got %s", f.engine.CurrentState())
	}
	f.sink.complete(1, nil)
	if f.engine.CurrentState() != StateIdle {
		t.Fatalf("expected idle after queue drained, got %s", f.engine.CurrentState())
	}
	if f.events.count(trb.EvtSongEnded) != 2 {
		t.Fatalf("expected two song_ended events, got %d", f.events.count(trb.EvtSongEnded))
	}
	if f.events.count(trb.EvtPlayerIdle) != 1 {
		t.Fatalf("expected one player_idle event, got %d", f.events.count(trb.EvtPlayerIdle))
	}
}

func TestGetStateReportsQueueAndCurrent(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(),
		resolvedTrack("a"), resolvedTrack("b"), resolvedTrack("c"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "all"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	reply := f.engine.GetState()
	if reply.Status != "success" {
		t.Fatalf("unexpected status %q", reply.Status)
	}
	state := reply.State
	if state.CurrentSong == nil || state.CurrentSong.Title != "a" {
		t.Fatalf("unexpected current song: %+v", state.CurrentSong)
	}
	if len(state.Queue) != 2 {
		t.Fatalf("expected 2 queued songs, got %d", len(state.Queue))
	}
	if !state.IsPlaying || !state.IsConnected || state.ChannelID != 42 {
		t.Fatalf("unexpected state flags: %+v", state)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"), resolvedTrack("second"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "both"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	reply, err := f.engine.Reset(context.Background())
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reply.Status != "reset" {
		t.Fatalf("unexpected status %q", reply.Status)
	}
	state := f.engine.GetState().State
	if state.CurrentSong != nil || len(state.Queue) != 0 || state.IsPlaying {
		t.Fatalf("reset left state behind: %+v", state)
	}

	eventsBefore := len(f.events.actions())
	again, err := f.engine.Reset(context.Background())
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if again.Status != "reset" {
		t.Fatalf("unexpected status %q", again.Status)
	}
	if len(f.events.actions()) != eventsBefore {
		t.Fatalf("idempotent reset emitted events")
	}
}

func TestRemoveFromQueue(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(),
		resolvedTrack("a"), resolvedTrack("b"), resolvedTrack("c"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "all"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	reply, err := f.engine.RemoveFromQueue(9)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reply.Status != "invalid_index" {
		t.Fatalf("expected invalid_index, got %q", reply.Status)
	}

	reply, err = f.engine.RemoveFromQueue(0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if reply.Status != "removed" || reply.SongTitle != "b" || reply.QueueSize != 1 {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestLoopReplaysCurrentTrack(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"), resolvedTrack("second"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "both"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	reply, err := f.engine.LoopTrack(context.Background())
	if err != nil {
		t.Fatalf("loop: %v", err)
	}
	if reply.Status != "looping" || reply.SongTitle != "first" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if f.engine.CurrentState() != StateLooping {
		t.Fatalf("expected looping, got %s", f.engine.CurrentState())
	}

	f.sink.completeLatest(nil)
	if got := f.sink.plays[len(f.sink.plays)-1]; got != "stream://first" {
		t.Fatalf("loop should replay first, got %s", got)
	}
	state := f.engine.GetState().State
	if len(state.Queue) != 1 || state.Queue[0].Title != "second" {
		t.Fatalf("loop must bypass the queue: %+v", state.Queue)
	}
}

func TestUnloopReturnsTrackToQueueFront(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"), resolvedTrack("second"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "both"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := f.engine.LoopTrack(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}

	reply, err := f.engine.UnloopTrack(context.Background())
	if err != nil {
		t.Fatalf("unloop: %v", err)
	}
	if reply.Status != "loop_cleared" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	state := f.engine.GetState().State
	if state.LoopSong != nil {
		t.Fatalf("loop slot should be empty")
	}
	if len(state.Queue) != 2 || state.Queue[0].Title != "first" {
		t.Fatalf("looped track must return to the queue front: %+v", state.Queue)
	}
}

func TestLoopWithoutPlaybackFails(t *testing.T) {
	f := newEngineFixture(t, playbackConfig())

	if _, err := f.engine.LoopTrack(context.Background()); !errors.Is(err, ErrNothingPlaying) {
		t.Fatalf("expected ErrNothingPlaying, got %v", err)
	}
	if _, err := f.engine.UnloopTrack(context.Background()); !errors.Is(err, ErrNoLoopTrack) {
		t.Fatalf("expected ErrNoLoopTrack, got %v", err)
	}
}

func TestQueueFullIsPartialAdd(t *testing.T) {
	cfg := playbackConfig()
	cfg.QueueMax = 2
	f := newEngineFixture(t, cfg,
		resolvedTrack("a"), resolvedTrack("b"), resolvedTrack("c"))
	connect(t, f)

	added, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "all"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.SongsAdded != 2 {
		t.Fatalf("expected 2 of 3 added, got %d", added.SongsAdded)
	}
}

func TestFullQueueRejectsAdd(t *testing.T) {
	cfg := playbackConfig()
	cfg.QueueMax = 1
	f := newEngineFixture(t, cfg, resolvedTrack("a"))
	connect(t, f)

	// First add plays immediately, second occupies the single slot.
	for i := 0; i < 2; i++ {
		if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "a"}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "a"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRepeatCountDuplicatesSingleTrack(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("a"))
	connect(t, f)

	added, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "a", RepeatCount: 3})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.SongsAdded != 3 {
		t.Fatalf("expected 3 copies, got %d", added.SongsAdded)
	}
}

func TestSinkFailureFallsBackAndResumes(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "first"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	f.sink.completeLatest(errors.New("decode stall"))
	if f.resolver.fallbacks != 1 {
		t.Fatalf("expected one fallback extraction, got %d", f.resolver.fallbacks)
	}
	if got := f.sink.plays[len(f.sink.plays)-1]; got != "fallback://first" {
		t.Fatalf("expected fallback stream, got %s", got)
	}
	if f.engine.CurrentState() != StatePlaying {
		t.Fatalf("expected playback resumed, got %s", f.engine.CurrentState())
	}
	if f.events.count(trb.EvtPlayerError) != 0 {
		t.Fatalf("recovered failure must not surface player_error")
	}
}

func TestPlaybackWithoutConnectSurfacesError(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("first"))

	added, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "first"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.SongsAdded != 1 {
		t.Fatalf("enqueue should succeed, got %+v", added)
	}
	if f.events.count(trb.EvtPlayerError) == 0 {
		t.Fatalf("expected a player_error event")
	}
	if f.engine.CurrentState() != StateIdle {
		t.Fatalf("expected idle after failed start, got %s", f.engine.CurrentState())
	}
}

func TestIdleTimeoutDisconnects(t *testing.T) {
	cfg := playbackConfig()
	cfg.IdleTimeout = 20 * time.Millisecond
	f := newEngineFixture(t, cfg, resolvedTrack("first"))
	connect(t, f)

	dropped := make(chan int64, 1)
	f.engine.OnIdleTimeout = func(guildID int64) { dropped <- guildID }

	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "first"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	f.sink.completeLatest(nil)

	select {
	case guildID := <-dropped:
		if guildID != 7 {
			t.Fatalf("unexpected guild id %d", guildID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("idle timeout never fired")
	}
	if f.voice.disconnects == 0 {
		t.Fatalf("idle timeout must release the transport")
	}
}

func TestPreloadResolvesUpcomingTracks(t *testing.T) {
	flat := func(title string) Track {
		return Track{URL: "https://example.com/" + title, Title: title, NeedsProcessing: true}
	}
	f := newEngineFixture(t, playbackConfig(),
		resolvedTrack("now"), flat("soon"), flat("later"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "all"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snapshot := f.engine.Queue().Snapshot()
		ready := 0
		for _, track := range snapshot {
			if track.StreamURL != "" {
				ready++
			}
		}
		if ready == len(snapshot) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("preload never resolved queue: %+v", snapshot)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRegistryCreatesAndDropsSessions(t *testing.T) {
	registry := NewRegistry(playbackConfig(), &fakeResolver{}, &fakeVoice{}, &fakeSink{}, &eventRecorder{}, nil)

	a := registry.Get(1)
	if got := registry.Get(1); got != a {
		t.Fatalf("expected same engine for same guild")
	}
	if got := registry.Get(2); got == a {
		t.Fatalf("expected distinct engines per guild")
	}
	if len(registry.GuildIDs()) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(registry.GuildIDs()))
	}

	a.OnIdleTimeout(1)
	if _, ok := registry.Peek(1); ok {
		t.Fatalf("expected session 1 dropped")
	}
	registry.Close()
	if len(registry.GuildIDs()) != 0 {
		t.Fatalf("expected no sessions after close")
	}
}

func TestAddResolvedTracksKeepRequester(t *testing.T) {
	f := newEngineFixture(t, playbackConfig(), resolvedTrack("a"), resolvedTrack("b"))
	connect(t, f)
	if _, err := f.engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "all", RequesterName: "bob"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	state := f.engine.GetState().State
	for i, song := range state.Queue {
		if song.RequesterName != "bob" {
			t.Fatalf("song %d lost requester: %+v", i, song)
		}
	}
	if state.CurrentSong.RequesterName != "bob" {
		t.Fatalf("current song lost requester: %+v", state.CurrentSong)
	}
}

// instantSink completes synchronously inside Play, before it returns,
// the worst ordering a real pipeline can produce.
type instantSink struct {
	mu    sync.Mutex
	plays []string
}

func (s *instantSink) Play(streamURL string, opts sink.Options, done func(error)) (sink.Handle, error) {
	s.mu.Lock()
	s.plays = append(s.plays, streamURL)
	s.mu.Unlock()
	done(nil)
	return &fakeSinkHandle{stop: func() {}}, nil
}

func TestCompletionBeforePlayReturns(t *testing.T) {
	snk := &instantSink{}
	events := &eventRecorder{}
	resolver := &fakeResolver{tracks: []Track{resolvedTrack("first"), resolvedTrack("second")}}
	engine := NewEngine(7, playbackConfig(), resolver, &fakeVoice{}, snk, events, nil)
	t.Cleanup(engine.Close)
	if _, err := engine.Connect(context.Background(), 42); err != nil {
		t.Fatalf("connect: %v", err)
	}

	added, err := engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "both"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added.SongsAdded != 2 {
		t.Fatalf("expected both tracks queued, got %+v", added)
	}

	if engine.CurrentState() != StateIdle {
		t.Fatalf("expected idle after both tracks finished, got %s", engine.CurrentState())
	}
	if state := engine.GetState(); state.State.CurrentSong != nil {
		t.Fatalf("finished track still current: %+v", state.State.CurrentSong)
	}
	reply, err := engine.PlayNext(context.Background())
	if err != nil {
		t.Fatalf("play next: %v", err)
	}
	if reply.Status != "queue_empty" {
		t.Fatalf("drained session must not report %q", reply.Status)
	}

	if events.count(trb.EvtSongStarted) != 2 || events.count(trb.EvtSongEnded) != 2 {
		t.Fatalf("unexpected event counts: %v", events.actions())
	}
	actions := events.actions()
	if actions[len(actions)-1] != trb.EvtPlayerIdle {
		t.Fatalf("player_idle must come last, got %v", actions)
	}
	started, ended := 0, 0
	for _, action := range actions {
		switch action {
		case trb.EvtSongStarted:
			started++
		case trb.EvtSongEnded:
			ended++
		}
		if ended > started {
			t.Fatalf("song_ended before its song_started: %v", actions)
		}
	}
}

type stallingResolver struct {
	entered chan struct{}
}

func (r *stallingResolver) Resolve(ctx context.Context, query string) ([]Track, error) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *stallingResolver) Prepare(ctx context.Context, track Track) (Track, error) {
	return track, nil
}

func (r *stallingResolver) PrepareFallback(ctx context.Context, track Track) (Track, error) {
	return track, nil
}

func TestInterruptAbortsResolution(t *testing.T) {
	resolver := &stallingResolver{entered: make(chan struct{}, 1)}
	engine := NewEngine(7, playbackConfig(), resolver, &fakeVoice{}, &fakeSink{}, &eventRecorder{}, nil)
	t.Cleanup(engine.Close)

	result := make(chan error, 1)
	go func() {
		_, err := engine.AddToQueue(context.Background(), trb.AddToQueueData{Query: "slow"})
		result <- err
	}()

	select {
	case <-resolver.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("resolution never started")
	}
	engine.Interrupt()

	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled resolution, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("interrupt did not unblock resolution")
	}
	if engine.CurrentState() != StateIdle {
		t.Fatalf("expected idle after interrupt, got %s", engine.CurrentState())
	}
}
