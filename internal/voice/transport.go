package voice

import "context"

// Handle is one live transport connection bound to a channel.
type Handle interface {
	ChannelID() int64
	IsConnected() bool
	Close() error
}

// Transport establishes voice connections. Unexpected drops are
// reported out-of-band by the integration layer calling
// Manager.HandleDisconnect with the observed close code.
type Transport interface {
	Connect(ctx context.Context, channelID int64) (Handle, error)
}
