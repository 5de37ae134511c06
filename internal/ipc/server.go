// Package ipc exposes the playback engine over the MQTT command and
// event topics.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/player"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// Sessions is the slice of the registry the server dispatches into.
type Sessions interface {
	Get(guildID int64) *player.Engine
}

// Config configures the IPC server.
type Config struct {
	TopicBase string
	// QueueDepth bounds each guild's pending-command buffer.
	QueueDepth int
}

// Server subscribes to the command topic, dispatches each command on
// a per-guild worker so one guild's slow resolution cannot stall
// another, and publishes events to the guild topics. Every command
// produces exactly one reply, panics included.
type Server struct {
	log      *zap.Logger
	client   mqttClient
	cfg      Config
	sessions Sessions
	cmdTopic string

	mu          sync.Mutex
	dispatchers map[int64]chan trb.Message
	stopped     bool
	wg          sync.WaitGroup
	runCtx      context.Context
}

func NewServer(log *zap.Logger, client mqttClient, cfg Config) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = trb.BaseTopic
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	return &Server{
		log:         log,
		client:      client,
		cfg:         cfg,
		cmdTopic:    trb.TopicCommands(cfg.TopicBase),
		dispatchers: make(map[int64]chan trb.Message),
	}
}

// SetSessions wires the session registry in. Must be called before
// Run; the registry needs the server as its event publisher, so the
// two are constructed in sequence.
func (s *Server) SetSessions(sessions Sessions) {
	s.sessions = sessions
}

// Run subscribes and serves until the context is cancelled, then
// drains the per-guild workers.
func (s *Server) Run(ctx context.Context) error {
	if s.sessions == nil {
		return errors.New("sessions not attached")
	}
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	handler := func(_ paho.Client, msg paho.Message) {
		s.handleMessage(msg.Payload())
	}
	if err := s.client.Subscribe(s.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer s.client.Unsubscribe(s.cmdTopic)

	<-ctx.Done()

	s.mu.Lock()
	s.stopped = true
	for _, ch := range s.dispatchers {
		close(ch)
	}
	s.dispatchers = make(map[int64]chan trb.Message)
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

// PublishEvent implements player.Publisher.
func (s *Server) PublishEvent(guildID int64, action string, data any) {
	event, err := trb.NewEvent(action, guildID, data)
	if err != nil {
		s.log.Warn("unencodable event", zap.String("action", action), zap.Error(err))
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	topic := trb.TopicGuildEvents(s.cfg.TopicBase, guildID)
	if perr := s.client.Publish(topic, 1, false, payload); perr != nil {
		s.log.Warn("event publish failed", zap.String("action", action), zap.Error(perr))
	}
}

func (s *Server) handleMessage(payload []byte) {
	var msg trb.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		// No envelope means no reply address; all we can do is log.
		s.log.Warn("unparsable command payload", zap.Error(err))
		return
	}
	if err := trb.ValidateMessage(msg); err != nil {
		s.replyTo(msg, trb.ErrorReply(msg.ID, err.Error()))
		return
	}
	if msg.Type != trb.TypeCommand {
		return
	}
	if !trb.KnownCommand(msg.Action) {
		s.replyTo(msg, trb.ErrorReply(msg.ID, "unknown action: "+msg.Action))
		return
	}

	switch msg.Action {
	case trb.CmdSkipSong, trb.CmdResetPlayer, trb.CmdDisconnect:
		// These abort whatever is in flight. Commands are serialized
		// per guild, so cancel here, before this one queues behind a
		// slow resolution or connection backoff.
		s.sessions.Get(msg.GuildID).Interrupt()
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.replyTo(msg, trb.ErrorReply(msg.ID, "server shutting down"))
		return
	}
	ch, ok := s.dispatchers[msg.GuildID]
	if !ok {
		ch = make(chan trb.Message, s.cfg.QueueDepth)
		s.dispatchers[msg.GuildID] = ch
		s.wg.Add(1)
		go s.dispatch(msg.GuildID, ch)
	}
	s.mu.Unlock()

	select {
	case ch <- msg:
	default:
		s.replyTo(msg, trb.ErrorReply(msg.ID, "command queue full"))
	}
}

func (s *Server) dispatch(guildID int64, ch <-chan trb.Message) {
	defer s.wg.Done()
	log := s.log.With(zap.Int64("guild_id", guildID))
	for msg := range ch {
		log.Debug("command", zap.String("action", msg.Action))
		reply := s.execute(msg)
		s.replyTo(msg, reply)
	}
}

func (s *Server) replyTo(msg trb.Message, reply trb.Reply) {
	if msg.ReplyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if perr := s.client.Publish(msg.ReplyTo, 1, false, payload); perr != nil {
		s.log.Warn("reply publish failed", zap.Error(perr))
	}
}

// execute runs one command against its engine. A panic anywhere below
// becomes an error reply so the caller never blocks on a lost answer.
func (s *Server) execute(msg trb.Message) (reply trb.Reply) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic handling command",
				zap.String("action", msg.Action),
				zap.Int64("guild_id", msg.GuildID),
				zap.Any("panic", r))
			reply = trb.ErrorReply(msg.ID, "internal error")
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	engine := s.sessions.Get(msg.GuildID)
	switch msg.Action {
	case trb.CmdConnect:
		var body trb.ConnectData
		if err := json.Unmarshal(msg.Data, &body); err != nil || body.ChannelID <= 0 {
			return trb.ErrorReply(msg.ID, "channel_id required")
		}
		data, err := engine.Connect(ctx, body.ChannelID)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		s.PublishEvent(msg.GuildID, trb.EvtStateUpdate, engine.GetState().State)
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdDisconnect:
		data, err := engine.Disconnect(ctx)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		s.PublishEvent(msg.GuildID, trb.EvtStateUpdate, engine.GetState().State)
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdAddToQueue:
		var body trb.AddToQueueData
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			return trb.ErrorReply(msg.ID, "invalid data")
		}
		data, err := engine.AddToQueue(ctx, body)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdSkipSong:
		data, err := engine.Skip(ctx)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdPlayNext:
		data, err := engine.PlayNext(ctx)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdGetState:
		return trb.SuccessReply(msg.ID, engine.GetState())

	case trb.CmdResetPlayer:
		data, err := engine.Reset(ctx)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdRemoveFromQueue:
		var body trb.RemoveFromQueueData
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			return trb.ErrorReply(msg.ID, "invalid data")
		}
		data, err := engine.RemoveFromQueue(body.SongIndex)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdLoopTrack:
		data, err := engine.LoopTrack(ctx)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)

	case trb.CmdUnloopTrack:
		data, err := engine.UnloopTrack(ctx)
		if err != nil {
			return trb.ErrorReply(msg.ID, userMessage(err))
		}
		return trb.SuccessReply(msg.ID, data)
	}
	return trb.ErrorReply(msg.ID, "unknown action: "+msg.Action)
}

// userMessage renders an error for the reply envelope. Typed failures
// keep their descriptive text; everything else passes through.
func userMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, player.ErrQueueFull):
		return "queue is full"
	case errors.Is(err, player.ErrNothingPlaying):
		return "nothing is playing"
	case errors.Is(err, player.ErrNoLoopTrack):
		return "no track is looping"
	case errors.Is(err, player.ErrNoChannel):
		return "join a voice channel first"
	}
	return err.Error()
}
