package player

import (
	"sync"

	"go.uber.org/zap"

	"github.com/troubadour-audio/troubadour/internal/sink"
)

// Registry owns one engine per guild, created lazily on the first
// command and torn down on idle timeout or daemon shutdown.
type Registry struct {
	cfg      Config
	resolver Resolver
	voice    Voice
	sink     sink.Sink
	events   Publisher
	log      *zap.Logger

	mu      sync.Mutex
	engines map[int64]*Engine
	closed  bool
}

func NewRegistry(cfg Config, resolver Resolver, vc Voice, snk sink.Sink, events Publisher, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		cfg:      cfg,
		resolver: resolver,
		voice:    vc,
		sink:     snk,
		events:   events,
		log:      log,
		engines:  make(map[int64]*Engine),
	}
}

// Get returns the engine for a guild, creating it if needed.
func (r *Registry) Get(guildID int64) *Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if engine, ok := r.engines[guildID]; ok {
		return engine
	}
	engine := NewEngine(guildID, r.cfg, r.resolver, r.voice, r.sink, r.events, r.log)
	engine.OnIdleTimeout = r.drop
	r.engines[guildID] = engine
	if !r.closed {
		r.log.Info("session created", zap.Int64("guild_id", guildID))
	}
	return engine
}

// Peek returns the engine for a guild without creating one.
func (r *Registry) Peek(guildID int64) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	engine, ok := r.engines[guildID]
	return engine, ok
}

func (r *Registry) drop(guildID int64) {
	r.mu.Lock()
	engine, ok := r.engines[guildID]
	if ok {
		delete(r.engines, guildID)
	}
	r.mu.Unlock()

	if ok {
		engine.Close()
		r.log.Info("session dropped", zap.Int64("guild_id", guildID))
	}
}

// GuildIDs lists the guilds with live sessions.
func (r *Registry) GuildIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]int64, 0, len(r.engines))
	for id := range r.engines {
		out = append(out, id)
	}
	return out
}

// Close shuts every session down.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	engines := make([]*Engine, 0, len(r.engines))
	for _, engine := range r.engines {
		engines = append(engines, engine)
	}
	r.engines = make(map[int64]*Engine)
	r.mu.Unlock()

	for _, engine := range engines {
		engine.Close()
	}
}
