package core

import (
	"context"
	"encoding/json"

	"github.com/troubadour-audio/troubadour/internal/ports"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

// Service orchestrates trb CLI use cases. Every player command goes
// through command(), which owns correlation ids and reply decoding.
type Service struct {
	Broker ports.Broker
	Clock  ports.Clock
	IDGen  ports.IDGen
	Config Config
}

// Connect joins the player to a voice channel.
func (s Service) Connect(ctx context.Context, guildID int64, channelID int64) (StatusResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StatusResult{}, err
	}
	if channelID <= 0 {
		return StatusResult{}, &CLIError{Code: ExitUsage, Msg: "channel id must be positive"}
	}

	var status trb.StatusData
	if err := s.command(ctx, guild, trb.CmdConnect, trb.ConnectData{ChannelID: channelID}, &status); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{GuildID: guild, Status: status}, nil
}

// Disconnect leaves the voice channel.
func (s Service) Disconnect(ctx context.Context, guildID int64) (StatusResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StatusResult{}, err
	}

	var status trb.StatusData
	if err := s.command(ctx, guild, trb.CmdDisconnect, struct{}{}, &status); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{GuildID: guild, Status: status}, nil
}

// Add queues a query, optionally repeated.
func (s Service) Add(ctx context.Context, guildID int64, query string, repeat int, requester string) (AddResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return AddResult{}, err
	}
	if query == "" {
		return AddResult{}, &CLIError{Code: ExitUsage, Msg: "query is required"}
	}
	if requester == "" {
		requester = s.Config.Identity
	}

	var added trb.AddedData
	data := trb.AddToQueueData{Query: query, RepeatCount: repeat, RequesterName: requester}
	if err := s.command(ctx, guild, trb.CmdAddToQueue, data, &added); err != nil {
		return AddResult{}, err
	}
	return AddResult{GuildID: guild, Added: added}, nil
}

// Skip skips the current track.
func (s Service) Skip(ctx context.Context, guildID int64) (SkipResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return SkipResult{}, err
	}

	var skipped trb.SkippedData
	if err := s.command(ctx, guild, trb.CmdSkipSong, struct{}{}, &skipped); err != nil {
		return SkipResult{}, err
	}
	return SkipResult{GuildID: guild, Skipped: skipped}, nil
}

// PlayNext nudges an idle player into the queue.
func (s Service) PlayNext(ctx context.Context, guildID int64) (StatusResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StatusResult{}, err
	}

	var status trb.StatusData
	if err := s.command(ctx, guild, trb.CmdPlayNext, struct{}{}, &status); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{GuildID: guild, Status: status}, nil
}

// State fetches the full player state.
func (s Service) State(ctx context.Context, guildID int64) (StateResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StateResult{}, err
	}

	var reply trb.StateReplyData
	if err := s.command(ctx, guild, trb.CmdGetState, struct{}{}, &reply); err != nil {
		return StateResult{}, err
	}
	return StateResult{GuildID: guild, State: reply.State}, nil
}

// Reset clears the queue and stops playback.
func (s Service) Reset(ctx context.Context, guildID int64) (StatusResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StatusResult{}, err
	}

	var status trb.StatusData
	if err := s.command(ctx, guild, trb.CmdResetPlayer, struct{}{}, &status); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{GuildID: guild, Status: status}, nil
}

// Remove removes one queue entry by zero-based index.
func (s Service) Remove(ctx context.Context, guildID int64, index int) (RemoveResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return RemoveResult{}, err
	}
	if index < 0 {
		return RemoveResult{}, &CLIError{Code: ExitUsage, Msg: "index must not be negative"}
	}

	var removed trb.RemovedData
	if err := s.command(ctx, guild, trb.CmdRemoveFromQueue, trb.RemoveFromQueueData{SongIndex: index}, &removed); err != nil {
		return RemoveResult{}, err
	}
	if removed.Status == "invalid_index" {
		return RemoveResult{}, &CLIError{Code: ExitNotFound, Msg: "no queue entry at that index"}
	}
	return RemoveResult{GuildID: guild, Removed: removed}, nil
}

// Loop pins the current track for replay.
func (s Service) Loop(ctx context.Context, guildID int64) (StatusResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StatusResult{}, err
	}

	var status trb.StatusData
	if err := s.command(ctx, guild, trb.CmdLoopTrack, struct{}{}, &status); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{GuildID: guild, Status: status}, nil
}

// Unloop releases the pinned track back to the queue front.
func (s Service) Unloop(ctx context.Context, guildID int64) (StatusResult, error) {
	guild, err := s.resolveGuild(guildID)
	if err != nil {
		return StatusResult{}, err
	}

	var status trb.StatusData
	if err := s.command(ctx, guild, trb.CmdUnloopTrack, struct{}{}, &status); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{GuildID: guild, Status: status}, nil
}

// Watch streams player events. A zero guild id falls back to the
// configured default; a negative one watches every guild.
func (s Service) Watch(ctx context.Context, guildID int64) (<-chan trb.Message, <-chan error) {
	if guildID == 0 {
		guildID = s.Config.GuildID
	}
	if guildID < 0 {
		guildID = 0
	}
	return s.Broker.WatchEvents(ctx, guildID)
}

func (s Service) resolveGuild(guildID int64) (int64, error) {
	if guildID == 0 {
		guildID = s.Config.GuildID
	}
	if guildID <= 0 {
		return 0, &CLIError{Code: ExitUsage, Msg: "guild id is required (set --guild or config)"}
	}
	return guildID, nil
}

func (s Service) command(ctx context.Context, guildID int64, action string, data any, out any) error {
	cmd, err := trb.NewCommand(action, guildID, data)
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	cmd.ID = s.IDGen.NewID()
	cmd.Timestamp = float64(s.Clock.NowUnix())

	reply, err := s.Broker.PublishCommand(ctx, cmd)
	if err != nil {
		return WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Status != trb.StatusSuccess {
		return ErrorForReply(reply.Message)
	}
	if out != nil && len(reply.Data) > 0 {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return WrapError(ExitRuntime, "decode reply", err)
		}
	}
	return nil
}
