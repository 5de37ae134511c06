package trb

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "troubadour/v1"

// Message types.
const (
	TypeCommand = "command"
	TypeEvent   = "event"
)

// Command actions (front-end -> player service).
const (
	CmdConnect         = "CONNECT"
	CmdDisconnect      = "DISCONNECT"
	CmdAddToQueue      = "ADD_TO_QUEUE"
	CmdSkipSong        = "SKIP_SONG"
	CmdPlayNext        = "PLAY_NEXT"
	CmdGetState        = "GET_STATE"
	CmdResetPlayer     = "RESET_PLAYER"
	CmdRemoveFromQueue = "REMOVE_FROM_QUEUE"
	CmdLoopTrack       = "LOOP_TRACK"
	CmdUnloopTrack     = "UNLOOP_TRACK"
)

// Event actions (player service -> subscribers).
const (
	EvtSongStarted  = "SONG_STARTED"
	EvtSongEnded    = "SONG_ENDED"
	EvtQueueUpdated = "QUEUE_UPDATED"
	EvtPlayerIdle   = "PLAYER_IDLE"
	EvtPlayerError  = "PLAYER_ERROR"
	EvtStateUpdate  = "STATE_UPDATE"
)

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Message is the common command/event envelope. Timestamp is seconds
// since epoch. ID and ReplyTo are the correlation extension for
// transports without native request/reply pairing; they are omitted
// from events.
type Message struct {
	Type      string          `json:"type"`
	Action    string          `json:"action"`
	GuildID   int64           `json:"guild_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp float64         `json:"timestamp"`
	ID        string          `json:"id,omitempty"`
	ReplyTo   string          `json:"reply_to,omitempty"`
}

// Reply is the response envelope. Exactly one Reply is produced per
// command. ID echoes the command's correlation id.
type Reply struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// NewCommand builds a command envelope with a JSON data payload.
func NewCommand(action string, guildID int64, data any) (Message, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal data: %w", err)
	}
	return Message{
		Type:      TypeCommand,
		Action:    action,
		GuildID:   guildID,
		Data:      payload,
		Timestamp: Now(),
	}, nil
}

// NewEvent builds an event envelope with a JSON data payload.
func NewEvent(action string, guildID int64, data any) (Message, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal data: %w", err)
	}
	return Message{
		Type:      TypeEvent,
		Action:    action,
		GuildID:   guildID,
		Data:      payload,
		Timestamp: Now(),
	}, nil
}

// SuccessReply builds a success reply carrying a JSON data payload.
func SuccessReply(id string, data any) Reply {
	payload, _ := json.Marshal(data)
	return Reply{Status: StatusSuccess, Data: payload, ID: id}
}

// ErrorReply builds an error reply with a user-visible message.
func ErrorReply(id string, message string) Reply {
	return Reply{Status: StatusError, Message: message, ID: id}
}

// Now returns the current time as float seconds since epoch.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ValidateMessage validates required envelope fields.
func ValidateMessage(msg Message) error {
	switch msg.Type {
	case TypeCommand, TypeEvent:
	default:
		return fmt.Errorf("invalid type %q", msg.Type)
	}
	if strings.TrimSpace(msg.Action) == "" {
		return errors.New("action is required")
	}
	if msg.GuildID <= 0 {
		return errors.New("guild_id must be positive")
	}
	if msg.Timestamp <= 0 {
		return errors.New("timestamp must be positive")
	}
	if msg.Type == TypeCommand && strings.TrimSpace(msg.ID) == "" {
		return errors.New("id is required for commands")
	}
	return nil
}

// KnownCommand reports whether action is a valid command action.
func KnownCommand(action string) bool {
	switch action {
	case CmdConnect, CmdDisconnect, CmdAddToQueue, CmdSkipSong,
		CmdPlayNext, CmdGetState, CmdResetPlayer, CmdRemoveFromQueue,
		CmdLoopTrack, CmdUnloopTrack:
		return true
	default:
		return false
	}
}

// TopicCommands builds the player service command topic.
func TopicCommands(topicBase string) string {
	return fmt.Sprintf("%s/player/cmd", topicBase)
}

// TopicReply builds the reply topic for a front-end instance.
func TopicReply(topicBase, clientID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, clientID)
}

// TopicGuildEvents builds the event topic for a guild.
func TopicGuildEvents(topicBase string, guildID int64) string {
	return fmt.Sprintf("%s/guild/%d/evt", topicBase, guildID)
}

// TopicAllEvents is the wildcard subscription matching every guild's
// event topic. Subscribers filter on the guild_id field.
func TopicAllEvents(topicBase string) string {
	return fmt.Sprintf("%s/guild/+/evt", topicBase)
}
