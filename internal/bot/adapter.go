// Package bot connects students on a chat platform to the attendance core.
// Platform adapters deliver inbound messages to a Router, which runs them
// through the conversation Machine and sends the reply back.
package bot

import (
	"context"
	"time"

	"github.com/zulandar/rollcall/internal/geo"
)

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string     // e.g. "slack", "discord"
	ChannelID string     // platform-specific channel identifier
	UserID    string     // platform user ID; the messaging token
	UserName  string     // human-readable username
	Text      string     // raw message text
	Location  *geo.Point // shared location, when the platform supplies one
	Direct    bool       // sent in a direct message with the bot
	Timestamp time.Time  // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
// When ChannelID is empty the adapter opens a direct message with UserID.
type OutboundMessage struct {
	ChannelID string
	UserID    string
	Text      string
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}
