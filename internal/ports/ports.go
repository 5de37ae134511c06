package ports

import (
	"context"

	"github.com/troubadour-audio/troubadour/pkg/trb"
)

// Broker publishes commands and streams guild events.
type Broker interface {
	ReplyTopic() string
	PublishCommand(ctx context.Context, cmd trb.Message) (trb.Reply, error)
	WatchEvents(ctx context.Context, guildID int64) (<-chan trb.Message, <-chan error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}
