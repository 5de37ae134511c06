// Package sink abstracts the audio output pipeline the playback
// engine streams into.
package sink

import (
	"sync"
	"time"
)

// Options tune a single playback attempt. Recovery hands the sink
// progressively simpler settings when a stream refuses to start.
type Options struct {
	// Reconnect enables transparent reconnection of dropped streams.
	Reconnect bool
	// BufferMS is the pre-roll buffer in milliseconds.
	BufferMS int
	// ForceStereo downmixes to two channels.
	ForceStereo bool
}

// DefaultOptions is the first attempt for every track.
func DefaultOptions() Options {
	return FallbackChain()[0]
}

// FallbackChain returns option sets ordered from preferred to most
// conservative.
func FallbackChain() []Options {
	return []Options{
		{Reconnect: true, BufferMS: 500, ForceStereo: true},
		{Reconnect: true, BufferMS: 2000},
		{BufferMS: 5000},
	}
}

// Handle is an active playback. Stop is idempotent.
type Handle interface {
	Stop()
}

// Sink starts playback of a resolved stream. The done callback is
// invoked exactly once from its own goroutine: nil on natural
// completion (including after Stop), non-nil on pipeline failure.
type Sink interface {
	Play(streamURL string, opts Options, done func(error)) (Handle, error)
}

// NullSink discards audio and reports completion after a fixed delay.
// It stands in for a real pipeline in development builds.
type NullSink struct {
	Delay time.Duration
}

type nullHandle struct {
	once  sync.Once
	timer *time.Timer
	done  func(error)
}

func (h *nullHandle) Stop() {
	h.once.Do(func() {
		h.timer.Stop()
		go h.done(nil)
	})
}

// Play pretends to stream and completes after the configured delay.
func (s *NullSink) Play(streamURL string, opts Options, done func(error)) (Handle, error) {
	h := &nullHandle{done: done}
	delay := s.Delay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	h.timer = time.AfterFunc(delay, func() {
		h.once.Do(func() { done(nil) })
	})
	return h, nil
}
