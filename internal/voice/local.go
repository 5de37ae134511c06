package voice

import (
	"context"
	"sync"
)

// LoopbackTransport fabricates always-healthy connections for
// deployments where audio plays on a local device and no remote
// gateway exists. Handles stay connected until closed.
type LoopbackTransport struct{}

// Connect returns a handle bound to channelID.
func (LoopbackTransport) Connect(_ context.Context, channelID int64) (Handle, error) {
	return &loopbackHandle{channelID: channelID}, nil
}

type loopbackHandle struct {
	channelID int64

	mu     sync.Mutex
	closed bool
}

func (h *loopbackHandle) ChannelID() int64 { return h.channelID }

func (h *loopbackHandle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.closed
}

func (h *loopbackHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
