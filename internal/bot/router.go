package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Router filters inbound chat messages, runs them through the Machine and
// sends the reply back to where the message came from.
type Router struct {
	machine   *Machine
	adapter   Adapter
	botUserID string // the bot's own user ID (to filter self-messages)
	log       *zap.Logger
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Machine   *Machine
	Adapter   Adapter
	BotUserID string // bot's user ID for self-message filtering
	Log       *zap.Logger
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("bot: router: machine is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: router: adapter is required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		machine:   opts.Machine,
		adapter:   opts.Adapter,
		botUserID: opts.BotUserID,
		log:       log,
	}, nil
}

// Handle routes a single inbound message. Self-messages, messages without
// a sender and empty messages are ignored.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) || msg.UserID == "" {
		return
	}
	if StripMentions(msg.Text) == "" && msg.Location == nil {
		return
	}
	r.log.Debug("recv",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("user", msg.UserID),
	)

	reply := r.machine.Handle(ctx, msg)
	out := OutboundMessage{ChannelID: msg.ChannelID, UserID: msg.UserID, Text: reply}
	if err := r.adapter.Send(ctx, out); err != nil {
		r.log.Warn("send reply", zap.String("user", msg.UserID), zap.Error(err))
	}
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}
