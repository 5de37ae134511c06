package core

import "github.com/troubadour-audio/troubadour/pkg/trb"

// AddResult reports what an add command queued.
type AddResult struct {
	GuildID int64
	Added   trb.AddedData
}

// SkipResult reports the outcome of a skip.
type SkipResult struct {
	GuildID int64
	Skipped trb.SkippedData
}

// RemoveResult reports the outcome of a queue removal.
type RemoveResult struct {
	GuildID int64
	Removed trb.RemovedData
}

// StateResult holds the full player state for a guild.
type StateResult struct {
	GuildID int64
	State   trb.StateData
}

// StatusResult reports a bare-status outcome (connect, disconnect,
// reset, loop, unloop, play-next).
type StatusResult struct {
	GuildID int64
	Status  trb.StatusData
}

// EventResult wraps one received player event for output.
type EventResult struct {
	Event trb.Message
}

// RawResult holds arbitrary JSON data for output.
type RawResult struct {
	Data any
}
