package player

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/sink"
	"github.com/troubadour-audio/troubadour/internal/voice"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

// Resolver turns queries into tracks and fills in stream locators.
type Resolver interface {
	// Resolve expands a query or URL into one or more tracks. Playlist
	// entries may come back unresolved (NeedsProcessing set) from a
	// fast flat listing.
	Resolve(ctx context.Context, query string) ([]Track, error)
	// Prepare fills in the stream locator for a single track.
	Prepare(ctx context.Context, track Track) (Track, error)
	// PrepareFallback retries extraction with simpler format options.
	PrepareFallback(ctx context.Context, track Track) (Track, error)
}

// Publisher fans player events out to subscribers.
type Publisher interface {
	PublishEvent(guildID int64, action string, data any)
}

// Voice is the slice of the connection manager the engine drives.
type Voice interface {
	EnsureConnected(ctx context.Context, guildID int64, channelID int64) (voice.Handle, error)
	Disconnect(guildID int64)
	IsConnected(guildID int64) bool
	ChannelID(guildID int64) int64
	EnableAutoRejoin(guildID int64)
}

// ErrNoChannel is returned when playback starts before any CONNECT.
var ErrNoChannel = errors.New("no voice channel joined")

// State is the engine's playback state.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateConnecting
	StatePlaying
	StateLooping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StateLooping:
		return "looping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config tunes a single session's engine.
type Config struct {
	QueueMax       int
	IdleTimeout    time.Duration
	PreloadAhead   int
	PreloadWorkers int
	PrepareTimeout time.Duration
}

func DefaultEngineConfig() Config {
	return Config{
		QueueMax:       DefaultQueueMax,
		IdleTimeout:    5 * time.Minute,
		PreloadAhead:   3,
		PreloadWorkers: 2,
		PrepareTimeout: 30 * time.Second,
	}
}

// Engine is the per-guild playback state machine. Commands arrive
// serialized from the session dispatcher; sink completions and timers
// arrive asynchronously and are fenced by an epoch counter so a stale
// completion can never advance the queue twice.
type Engine struct {
	guildID  int64
	cfg      Config
	queue    *Queue
	resolver Resolver
	voice    Voice
	sink     sink.Sink
	recovery *Recovery
	events   Publisher
	log      *zap.Logger
	preload  chan struct{}

	// OnIdleTimeout is invoked after the idle timer tears the
	// transport down, so the registry can drop the session.
	OnIdleTimeout func(guildID int64)

	mu        sync.Mutex
	state     State
	current   *Track
	handle    sink.Handle
	work      *workHandle
	epoch     uint64
	idleTimer *time.Timer
	channelID int64
	closed    bool
}

func NewEngine(guildID int64, cfg Config, resolver Resolver, vc Voice, snk sink.Sink, events Publisher, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QueueMax <= 0 {
		cfg.QueueMax = DefaultQueueMax
	}
	if cfg.PreloadWorkers <= 0 {
		cfg.PreloadWorkers = 1
	}
	if cfg.PrepareTimeout <= 0 {
		cfg.PrepareTimeout = 30 * time.Second
	}
	return &Engine{
		guildID:  guildID,
		cfg:      cfg,
		queue:    NewQueue(cfg.QueueMax),
		resolver: resolver,
		voice:    vc,
		sink:     snk,
		recovery: NewRecovery(log),
		events:   events,
		log:      log.With(zap.Int64("guild_id", guildID)),
		preload:  make(chan struct{}, cfg.PreloadWorkers),
	}
}

// Queue exposes the session queue for inspection.
func (e *Engine) Queue() *Queue { return e.queue }

// workHandle carries the cancel for one in-flight blocking operation.
type workHandle struct {
	cancel context.CancelFunc
}

// beginWork derives a cancellable context for a blocking operation
// and parks its cancel where Interrupt can reach it. The returned
// stop must be deferred; it detaches the handle so a later Interrupt
// cannot cancel unrelated work.
func (e *Engine) beginWork(ctx context.Context) (context.Context, func()) {
	wctx, cancel := context.WithCancel(ctx)
	h := &workHandle{cancel: cancel}
	e.mu.Lock()
	e.work = h
	e.mu.Unlock()
	return wctx, func() {
		e.mu.Lock()
		if e.work == h {
			e.work = nil
		}
		e.mu.Unlock()
		cancel()
	}
}

// Interrupt aborts any in-flight resolution, connection wait, or
// recovery backoff so the next command is served immediately.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	h := e.work
	e.work = nil
	e.mu.Unlock()
	if h != nil {
		h.cancel()
	}
}

// Connect joins the target channel, re-arming auto recovery first so
// a deliberate user action always overrides an open breaker.
func (e *Engine) Connect(ctx context.Context, channelID int64) (trb.StatusData, error) {
	ctx, stop := e.beginWork(ctx)
	defer stop()
	e.voice.EnableAutoRejoin(e.guildID)
	if _, err := e.voice.EnsureConnected(ctx, e.guildID, channelID); err != nil {
		return trb.StatusData{}, err
	}
	e.mu.Lock()
	e.channelID = channelID
	e.mu.Unlock()
	return trb.StatusData{Status: "connected", ChannelID: channelID}, nil
}

// Disconnect stops playback and leaves the channel. The queue is
// retained so a later connect can resume.
func (e *Engine) Disconnect(ctx context.Context) (trb.StatusData, error) {
	e.Interrupt()
	e.mu.Lock()
	e.stopSinkLocked()
	e.current = nil
	e.state = StateIdle
	e.stopIdleTimerLocked()
	e.mu.Unlock()
	e.voice.Disconnect(e.guildID)
	return trb.StatusData{Status: "disconnected"}, nil
}

// AddToQueue resolves the query and enqueues the results. A full
// queue mid-playlist is a partial add, reported through SongsAdded.
func (e *Engine) AddToQueue(ctx context.Context, req trb.AddToQueueData) (trb.AddedData, error) {
	if req.Query == "" {
		return trb.AddedData{}, &ResolutionError{Query: req.Query, Kind: ResolutionNoResults, Err: errors.New("empty query")}
	}
	ctx, stop := e.beginWork(ctx)
	defer stop()
	tracks, err := e.resolver.Resolve(ctx, req.Query)
	if err != nil {
		return trb.AddedData{}, err
	}
	if len(tracks) == 0 {
		return trb.AddedData{}, &ResolutionError{Query: req.Query, Kind: ResolutionNoResults}
	}
	repeat := req.RepeatCount
	if repeat < 1 {
		repeat = 1
	}
	if len(tracks) == 1 && repeat > 1 {
		expanded := make([]Track, 0, repeat)
		for i := 0; i < repeat; i++ {
			expanded = append(expanded, tracks[0])
		}
		tracks = expanded
	}

	added := 0
	first := tracks[0]
	e.mu.Lock()
	for _, track := range tracks {
		track.Requester = req.RequesterName
		if _, qerr := e.queue.Enqueue(track); qerr != nil {
			break
		}
		added++
	}
	queueSize := e.queue.Len()
	shouldStart := e.current == nil && e.state == StateIdle && !e.closed
	e.mu.Unlock()

	if added == 0 {
		return trb.AddedData{}, ErrQueueFull
	}
	e.emitQueueUpdated()
	if shouldStart {
		e.playNext(ctx)
	}
	return trb.AddedData{
		Status:     "added",
		SongsAdded: added,
		SongTitle:  first.Title,
		QueueSize:  queueSize,
	}, nil
}

// Skip stops the current track and advances. Skipping with nothing
// playing reports nothing_playing and emits no events.
func (e *Engine) Skip(ctx context.Context) (trb.SkippedData, error) {
	e.Interrupt()
	ctx, stop := e.beginWork(ctx)
	defer stop()
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return trb.SkippedData{Status: "nothing_playing"}, nil
	}
	skipped := *e.current
	e.stopSinkLocked()
	e.current = nil
	e.mu.Unlock()

	e.emit(trb.EvtSongEnded, skipped.SongData())
	e.playNext(ctx)
	return trb.SkippedData{Status: "skipped", SongTitle: skipped.Title}, nil
}

// PlayNext starts playback from the queue when nothing is playing.
func (e *Engine) PlayNext(ctx context.Context) (trb.StatusData, error) {
	ctx, stop := e.beginWork(ctx)
	defer stop()
	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return trb.StatusData{Status: "already_playing"}, nil
	}
	_, looping := e.queue.Loop()
	empty := e.queue.Len() == 0 && !looping
	e.mu.Unlock()
	if empty {
		return trb.StatusData{Status: "queue_empty"}, nil
	}
	e.playNext(ctx)
	return trb.StatusData{Status: "playing"}, nil
}

// GetState reports the full session state.
func (e *Engine) GetState() trb.StateReplyData {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := trb.StateData{
		IsPlaying:   e.state == StatePlaying || e.state == StateLooping,
		IsConnected: e.voice.IsConnected(e.guildID),
		ChannelID:   e.voice.ChannelID(e.guildID),
		Queue:       songList(e.queue.Snapshot()),
	}
	if e.current != nil {
		song := e.current.SongData()
		state.CurrentSong = &song
	}
	if loop, ok := e.queue.Loop(); ok {
		song := loop.SongData()
		state.LoopSong = &song
	}
	return trb.StateReplyData{Status: "success", State: state}
}

// Reset clears the queue and loop slot, stops playback, and returns
// to idle. Safe to call repeatedly.
func (e *Engine) Reset(ctx context.Context) (trb.StatusData, error) {
	e.Interrupt()
	e.mu.Lock()
	changed := e.current != nil || e.queue.Len() > 0
	if _, ok := e.queue.Loop(); ok {
		changed = true
	}
	e.stopSinkLocked()
	e.current = nil
	e.queue.Clear()
	e.queue.ClearLoop()
	e.state = StateIdle
	e.stopIdleTimerLocked()
	e.mu.Unlock()

	if changed {
		e.emitQueueUpdated()
	}
	return trb.StatusData{Status: "reset"}, nil
}

// RemoveFromQueue drops the track at index (zero-based). An index out
// of range reports invalid_index rather than failing the command.
func (e *Engine) RemoveFromQueue(index int) (trb.RemovedData, error) {
	removed, err := e.queue.RemoveAt(index)
	if err != nil {
		return trb.RemovedData{Status: "invalid_index"}, nil
	}
	e.emitQueueUpdated()
	return trb.RemovedData{
		Status:    "removed",
		SongTitle: removed.Title,
		QueueSize: e.queue.Len(),
	}, nil
}

// LoopTrack snapshots the current track into the loop slot. While the
// slot is occupied the queue is bypassed on every advance.
func (e *Engine) LoopTrack(ctx context.Context) (trb.StatusData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		return trb.StatusData{}, ErrNothingPlaying
	}
	e.queue.SetLoop(*e.current)
	if e.state == StatePlaying {
		e.state = StateLooping
	}
	return trb.StatusData{Status: "looping", SongTitle: e.current.Title}, nil
}

// UnloopTrack clears the loop slot, returning its track to the front
// of the queue so it is never discarded.
func (e *Engine) UnloopTrack(ctx context.Context) (trb.StatusData, error) {
	e.mu.Lock()
	track, ok := e.queue.ClearLoop()
	if !ok {
		e.mu.Unlock()
		return trb.StatusData{}, ErrNoLoopTrack
	}
	e.queue.PushFront(track)
	if e.state == StateLooping {
		e.state = StatePlaying
	}
	e.mu.Unlock()

	e.emitQueueUpdated()
	return trb.StatusData{Status: "loop_cleared", SongTitle: track.Title}, nil
}

// Close tears the session down: playback stopped, timers cancelled,
// transport released. The engine accepts no work afterwards.
func (e *Engine) Close() {
	e.Interrupt()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopSinkLocked()
	e.current = nil
	e.stopIdleTimerLocked()
	e.mu.Unlock()
	e.voice.Disconnect(e.guildID)
}

// playNext advances the state machine: loop slot first, then queue
// head, else idle.
func (e *Engine) playNext(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	var next Track
	fromLoop := false
	fromQueue := false
	if track, ok := e.queue.Loop(); ok {
		next = track
		fromLoop = true
	} else if track, ok := e.queue.PopFront(); ok {
		next = track
		fromQueue = true
	} else {
		e.current = nil
		e.state = StateIdle
		e.startIdleTimerLocked()
		e.mu.Unlock()
		e.emit(trb.EvtPlayerIdle, trb.StatusData{Status: "idle"})
		return
	}
	e.stopIdleTimerLocked()
	e.state = StateResolving
	e.mu.Unlock()

	if fromQueue {
		e.emitQueueUpdated()
	}
	if err := e.startTrack(ctx, next, sink.DefaultOptions()); err != nil {
		if errors.Is(err, context.Canceled) {
			// Interrupted by a skip or reset; that command decides
			// what plays next.
			e.settleInterrupted()
			return
		}
		e.recoverTrack(ctx, next, fromLoop, err)
		return
	}
	e.preloadUpcoming()
}

// startTrack resolves, connects, and hands the stream to the sink.
func (e *Engine) startTrack(ctx context.Context, track Track, opts sink.Options) error {
	if track.StreamURL == "" || track.NeedsProcessing {
		e.setState(StateResolving)
		resolved, err := e.resolver.Prepare(ctx, track)
		if err != nil {
			e.setState(StateError)
			return err
		}
		track = resolved
	}

	e.setState(StateConnecting)
	e.mu.Lock()
	channelID := e.channelID
	e.mu.Unlock()
	if channelID == 0 {
		e.setState(StateError)
		return &ConnectionError{Err: ErrNoChannel}
	}
	if _, err := e.voice.EnsureConnected(ctx, e.guildID, channelID); err != nil {
		e.setState(StateError)
		return err
	}

	// Bookkeeping comes first: the sink may complete on its own
	// goroutine before Play even returns, and handleSinkDone must
	// find the track it is finishing already recorded.
	e.mu.Lock()
	e.epoch++
	epoch := e.epoch
	e.current = &track
	if _, looping := e.queue.Loop(); looping {
		e.state = StateLooping
	} else {
		e.state = StatePlaying
	}
	e.mu.Unlock()

	e.log.Info("song started", zap.String("title", track.Title))
	e.emit(trb.EvtSongStarted, track.SongData())

	handle, err := e.sink.Play(track.StreamURL, opts, func(serr error) {
		e.handleSinkDone(epoch, track, serr)
	})
	if err != nil {
		e.mu.Lock()
		if epoch == e.epoch {
			e.current = nil
			e.state = StateError
		}
		e.mu.Unlock()
		return &SinkError{StreamURL: track.StreamURL, Err: err}
	}

	e.mu.Lock()
	live := epoch == e.epoch && e.current != nil
	if live {
		e.handle = handle
	}
	e.mu.Unlock()
	if !live {
		// The track already completed or was stopped while Play was
		// in flight; the handle must not clobber a later one.
		handle.Stop()
	}
	return nil
}

// handleSinkDone reacts to the sink finishing. A completion carrying
// a stale epoch belongs to a track we already stopped and is dropped.
func (e *Engine) handleSinkDone(epoch uint64, track Track, serr error) {
	e.mu.Lock()
	if epoch != e.epoch || e.closed {
		e.mu.Unlock()
		return
	}
	e.handle = nil
	e.current = nil
	fromLoop := false
	if loop, ok := e.queue.Loop(); ok && loop.Seq == track.Seq {
		fromLoop = true
	}
	e.mu.Unlock()

	ctx, stop := e.beginWork(context.Background())
	defer stop()

	if serr != nil {
		e.recoverTrack(ctx, track, fromLoop, &SinkError{StreamURL: track.StreamURL, Err: serr})
		return
	}
	e.recovery.NoteSuccess()
	e.emit(trb.EvtSongEnded, track.SongData())
	e.playNext(ctx)
}

// recoverTrack runs the recovery plan for a failed track. Anything
// short of resumed playback surfaces a player_error event and moves
// on; a failing loop track is unlooped so it cannot wedge the session.
func (e *Engine) recoverTrack(ctx context.Context, track Track, fromLoop bool, err error) {
	actions := &trackActions{engine: e, track: track, opts: sink.DefaultOptions()}
	strategy, herr := e.recovery.Handle(ctx, err, actions)
	if herr == nil && strategy != StrategySkip {
		e.preloadUpcoming()
		return
	}
	if errors.Is(herr, context.Canceled) {
		e.settleInterrupted()
		return
	}

	if !actions.notified {
		song := track.SongData()
		e.emit(trb.EvtPlayerError, trb.ErrorData{
			ErrorType:    string(Classify(err)),
			ErrorMessage: err.Error(),
			SongData:     &song,
		})
	}
	if fromLoop {
		e.queue.ClearLoop()
	}
	e.playNext(ctx)
}

// preloadUpcoming resolves a few unprocessed queue heads in the
// background so upcoming tracks start without an extraction stall.
func (e *Engine) preloadUpcoming() {
	for _, track := range e.queue.Upcoming(e.cfg.PreloadAhead) {
		select {
		case e.preload <- struct{}{}:
		default:
			return
		}
		track := track
		go func() {
			defer func() { <-e.preload }()
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PrepareTimeout)
			defer cancel()
			resolved, err := e.resolver.Prepare(ctx, track)
			if err != nil {
				e.log.Debug("preload failed", zap.String("title", track.Title), zap.Error(err))
				return
			}
			e.queue.Replace(resolved)
		}()
	}
}

// settleInterrupted returns the machine to idle after an interrupted
// start, unless the interrupting command already started something.
func (e *Engine) settleInterrupted() {
	e.mu.Lock()
	if e.current == nil {
		e.state = StateIdle
	}
	e.mu.Unlock()
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// CurrentState reports the engine's state for diagnostics.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) stopSinkLocked() {
	e.epoch++
	if e.handle != nil {
		e.handle.Stop()
		e.handle = nil
	}
}

func (e *Engine) startIdleTimerLocked() {
	if e.cfg.IdleTimeout <= 0 {
		return
	}
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(e.cfg.IdleTimeout, e.onIdleTimeout)
}

func (e *Engine) stopIdleTimerLocked() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

func (e *Engine) onIdleTimeout() {
	e.mu.Lock()
	stillIdle := e.state == StateIdle && e.current == nil && e.queue.Len() == 0 && !e.closed
	e.mu.Unlock()
	if !stillIdle {
		return
	}
	e.log.Info("idle timeout, leaving channel")
	e.voice.Disconnect(e.guildID)
	if e.OnIdleTimeout != nil {
		e.OnIdleTimeout(e.guildID)
	}
}

func (e *Engine) emit(action string, data any) {
	if e.events != nil {
		e.events.PublishEvent(e.guildID, action, data)
	}
}

func (e *Engine) emitQueueUpdated() {
	e.emit(trb.EvtQueueUpdated, trb.QueueUpdatedData{Queue: songList(e.queue.Snapshot())})
}

func songList(tracks []Track) []trb.SongData {
	out := make([]trb.SongData, 0, len(tracks))
	for _, track := range tracks {
		out = append(out, track.SongData())
	}
	return out
}

// trackActions adapts the engine to the recovery Actions surface for
// one failed track.
type trackActions struct {
	engine       *Engine
	track        Track
	opts         sink.Options
	fallbackStep int
	notified     bool
}

func (a *trackActions) Retry(ctx context.Context) error {
	return a.engine.startTrack(ctx, a.track, a.opts)
}

func (a *trackActions) Reconnect(ctx context.Context) error {
	a.engine.mu.Lock()
	channelID := a.engine.channelID
	a.engine.mu.Unlock()
	if channelID == 0 {
		return ErrNoChannel
	}
	a.engine.voice.Disconnect(a.engine.guildID)
	if _, err := a.engine.voice.EnsureConnected(ctx, a.engine.guildID, channelID); err != nil {
		return err
	}
	return a.engine.startTrack(ctx, a.track, a.opts)
}

func (a *trackActions) Fallback(ctx context.Context) error {
	chain := sink.FallbackChain()
	a.fallbackStep++
	if a.fallbackStep >= len(chain) {
		return errors.New("fallback options exhausted")
	}
	track, err := a.engine.resolver.PrepareFallback(ctx, a.track)
	if err != nil {
		return err
	}
	a.track = track
	a.opts = chain[a.fallbackStep]
	return a.engine.startTrack(ctx, a.track, a.opts)
}

func (a *trackActions) Skip(ctx context.Context) error { return nil }

func (a *trackActions) Notify(ctx context.Context, err error) {
	a.notified = true
	song := a.track.SongData()
	a.engine.emit(trb.EvtPlayerError, trb.ErrorData{
		ErrorType:    string(Classify(err)),
		ErrorMessage: err.Error(),
		SongData:     &song,
	})
}
