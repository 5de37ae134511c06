package player

import (
	"errors"
	"fmt"
)

// Sentinel errors for queue and command handling.
var (
	ErrQueueFull      = errors.New("queue is full")
	ErrInvalidIndex   = errors.New("index out of range")
	ErrNothingPlaying = errors.New("nothing playing")
	ErrNoLoopTrack    = errors.New("no track is looping")
)

// ResolutionKind subdivides resolver failures.
type ResolutionKind int

const (
	ResolutionNoResults ResolutionKind = iota
	ResolutionUnavailable
	ResolutionRateLimited
	ResolutionPermission
	ResolutionNetwork
)

// ResolutionError reports a failed query or stream extraction.
type ResolutionError struct {
	Query string
	Kind  ResolutionKind
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("resolve %q failed", e.Query)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ConnectionError reports a transport-level failure. CloseCode is zero
// when the failure was not an observed close.
type ConnectionError struct {
	ChannelID int64
	CloseCode int
	Err       error
}

func (e *ConnectionError) Error() string {
	if e.CloseCode != 0 {
		return fmt.Sprintf("voice connection to channel %d failed (close code %d): %v", e.ChannelID, e.CloseCode, e.Err)
	}
	return fmt.Sprintf("voice connection to channel %d failed: %v", e.ChannelID, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SinkError reports a playback failure from the audio sink.
type SinkError struct {
	StreamURL string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink playback failed: %v", e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
