package voice

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the per-session recovery state.
type State int

const (
	Disconnected State = iota
	Connecting
	Stable
	Retrying
	Cooldown
	ManualRequired
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Stable:
		return "stable"
	case Retrying:
		return "retrying"
	case Cooldown:
		return "cooldown"
	case ManualRequired:
		return "manual_required"
	default:
		return "unknown"
	}
}

// Close codes that indicate transport churn rather than a channel that
// will never accept the connection again.
const (
	CloseNormal = 1000
	CloseMoved  = 4014
)

// Config holds connection recovery tuning.
type Config struct {
	MaxRetries           int
	ConnectTimeout       time.Duration
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	UnexplainedThreshold int
	CooldownCap          time.Duration
	ValidateInterval     time.Duration
}

// DefaultConfig returns the default recovery tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           5,
		ConnectTimeout:       60 * time.Second,
		BackoffBase:          2 * time.Second,
		BackoffCap:           30 * time.Second,
		UnexplainedThreshold: 3,
		CooldownCap:          15 * time.Minute,
		ValidateInterval:     30 * time.Second,
	}
}

type connState struct {
	mu              sync.Mutex
	handle          Handle
	channelID       int64
	attempts        int
	unexplained     int
	cooldownUntil   time.Time
	lastFailure     time.Time
	lastCloseCode   int
	allowAutoRejoin bool
	state           State
	reconnectTimer  *time.Timer
}

// Manager owns the one transport handle per session and performs
// connect, validate, and recover-with-backoff. The handle is never
// mutated outside this type.
type Manager struct {
	transport Transport
	cfg       Config
	log       *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*connState

	// OnReconnected is invoked after a scheduled recovery succeeds so
	// the playback engine can resume. Optional.
	OnReconnected func(guildID int64, channelID int64)
}

// NewManager creates a connection manager over the given transport.
func NewManager(transport Transport, cfg Config, log *zap.Logger) *Manager {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		transport: transport,
		cfg:       cfg,
		log:       log,
		sessions:  map[int64]*connState{},
	}
}

func (m *Manager) state(guildID int64) *connState {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sessions[guildID]
	if !ok {
		cs = &connState{allowAutoRejoin: true}
		m.sessions[guildID] = cs
	}
	return cs
}

// EnsureConnected returns a valid handle bound to channelID, reusing
// the existing one when possible and otherwise connecting with
// bounded, jittered retries. An error return is definitive: the caller
// must surface it rather than queueing forever.
func (m *Manager) EnsureConnected(ctx context.Context, guildID int64, channelID int64) (Handle, error) {
	cs := m.state(guildID)

	cs.mu.Lock()
	if cs.handle != nil && cs.handle.IsConnected() && cs.handle.ChannelID() == channelID {
		handle := cs.handle
		cs.mu.Unlock()
		return handle, nil
	}
	if until := cs.cooldownUntil; time.Now().Before(until) {
		cs.mu.Unlock()
		return nil, fmt.Errorf("voice connection in cooldown until %s", until.Format(time.RFC3339))
	}
	if cs.handle != nil {
		cs.handle.Close()
		cs.handle = nil
	}
	cs.channelID = channelID
	cs.state = Connecting
	cs.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		handle, err := m.transport.Connect(connectCtx, channelID)
		cancel()
		if err == nil && handle != nil && handle.IsConnected() {
			cs.mu.Lock()
			cs.handle = handle
			cs.attempts = 0
			cs.state = Stable
			cs.cooldownUntil = time.Time{}
			cs.mu.Unlock()
			m.log.Info("voice connected",
				zap.Int64("guild_id", guildID),
				zap.Int64("channel_id", channelID),
				zap.Int("attempt", attempt))
			return handle, nil
		}
		if err == nil {
			err = fmt.Errorf("connection validation failed")
			if handle != nil {
				handle.Close()
			}
		}
		lastErr = err
		m.log.Warn("voice connection attempt failed",
			zap.Int64("guild_id", guildID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < m.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				m.markDisconnected(cs)
				return nil, ctx.Err()
			case <-time.After(m.backoffDelay(attempt)):
			}
		}
	}

	m.markDisconnected(cs)
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", m.cfg.MaxRetries, lastErr)
}

func (m *Manager) markDisconnected(cs *connState) {
	cs.mu.Lock()
	cs.state = Disconnected
	cs.lastFailure = time.Now()
	cs.mu.Unlock()
}

// backoffDelay computes base^attempt seconds with uniform jitter in
// [0.7, 1.3], capped.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	base := m.cfg.BackoffBase.Seconds()
	seconds := math.Pow(base, float64(attempt))
	jitter := 0.7 + rand.Float64()*0.6
	delay := time.Duration(seconds * jitter * float64(time.Second))
	if delay > m.cfg.BackoffCap {
		delay = m.cfg.BackoffCap
	}
	return delay
}

// HandleDisconnect reacts to an unexpected transport drop. It returns
// true when a delayed reconnect was scheduled, false when recovery is
// suppressed (breaker open, attempts exhausted, or cooldown).
func (m *Manager) HandleDisconnect(guildID int64, reason string, closeCode int) bool {
	cs := m.state(guildID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.allowAutoRejoin {
		return false
	}

	if cs.handle != nil {
		cs.handle.Close()
		cs.handle = nil
	}
	cs.lastFailure = time.Now()
	cs.lastCloseCode = closeCode
	cs.attempts++

	switch closeCode {
	case CloseNormal, CloseMoved:
		cs.unexplained = 0
	default:
		cs.unexplained++
	}

	if cs.unexplained >= m.cfg.UnexplainedThreshold {
		cs.allowAutoRejoin = false
		cs.state = ManualRequired
		m.stopReconnectLocked(cs)
		m.log.Error("auto rejoin disabled after repeated unexplained disconnects",
			zap.Int64("guild_id", guildID),
			zap.Int("close_code", closeCode),
			zap.Int("unexplained", cs.unexplained),
			zap.String("reason", reason))
		return false
	}

	if cs.attempts > m.cfg.MaxRetries {
		cooldown := time.Duration(30*cs.attempts*cs.attempts) * time.Second
		if cooldown > m.cfg.CooldownCap {
			cooldown = m.cfg.CooldownCap
		}
		cs.cooldownUntil = time.Now().Add(cooldown)
		cs.state = Cooldown
		m.stopReconnectLocked(cs)
		m.log.Warn("voice reconnect attempts exhausted, entering cooldown",
			zap.Int64("guild_id", guildID),
			zap.Duration("cooldown", cooldown))
		return false
	}

	cs.state = Retrying
	delay := m.backoffDelay(cs.attempts)
	m.stopReconnectLocked(cs)
	channelID := cs.channelID
	cs.reconnectTimer = time.AfterFunc(delay, func() {
		m.runScheduledReconnect(guildID, channelID)
	})
	m.log.Info("voice reconnect scheduled",
		zap.Int64("guild_id", guildID),
		zap.Int("close_code", closeCode),
		zap.Int("attempt", cs.attempts),
		zap.Duration("delay", delay),
		zap.String("reason", reason))
	return true
}

func (m *Manager) stopReconnectLocked(cs *connState) {
	if cs.reconnectTimer != nil {
		cs.reconnectTimer.Stop()
		cs.reconnectTimer = nil
	}
}

func (m *Manager) runScheduledReconnect(guildID int64, channelID int64) {
	handle, err := m.EnsureConnected(context.Background(), guildID, channelID)
	if err != nil {
		m.log.Warn("scheduled voice reconnect failed",
			zap.Int64("guild_id", guildID),
			zap.Error(err))
		return
	}
	_ = handle
	if m.OnReconnected != nil {
		m.OnReconnected(guildID, channelID)
	}
}

// EnableAutoRejoin re-arms the recovery breaker. Called on a deliberate
// play or connect request.
func (m *Manager) EnableAutoRejoin(guildID int64) {
	cs := m.state(guildID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.allowAutoRejoin = true
	cs.unexplained = 0
	cs.attempts = 0
	cs.cooldownUntil = time.Time{}
	if cs.state == ManualRequired || cs.state == Cooldown {
		cs.state = Disconnected
	}
}

// Disconnect tears down the session's handle and cancels any pending
// reconnect.
func (m *Manager) Disconnect(guildID int64) {
	cs := m.state(guildID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	m.stopReconnectLocked(cs)
	if cs.handle != nil {
		cs.handle.Close()
		cs.handle = nil
	}
	cs.state = Disconnected
}

// IsConnected reports whether the session has a live handle.
func (m *Manager) IsConnected(guildID int64) bool {
	cs := m.state(guildID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.handle != nil && cs.handle.IsConnected()
}

// ChannelID returns the session's target channel.
func (m *Manager) ChannelID(guildID int64) int64 {
	cs := m.state(guildID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.channelID
}

// StateOf returns the session's recovery state.
func (m *Manager) StateOf(guildID int64) State {
	cs := m.state(guildID)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	return cs.state
}

// ValidateAll sweeps every session and tears down handles that report
// disconnected. A safety net against missed drop notifications.
func (m *Manager) ValidateAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		cs := m.state(id)
		cs.mu.Lock()
		if cs.handle != nil && !cs.handle.IsConnected() {
			m.log.Warn("found stale voice connection", zap.Int64("guild_id", id))
			cs.handle.Close()
			cs.handle = nil
			cs.state = Disconnected
		}
		cs.mu.Unlock()
	}
}

// Run periodically validates all connections until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.ValidateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ValidateAll()
		}
	}
}

// DisconnectAll tears down every session's handle.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Disconnect(id)
	}
}
