package bot

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Daemon is the bot process. It connects to a chat platform via an Adapter
// and pumps inbound messages through a Router until the context is
// cancelled.
type Daemon struct {
	adapter  Adapter
	machine  *Machine
	announce string // channel for online/offline notices; empty disables them
	log      *zap.Logger
	out      io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter         Adapter
	Machine         *Machine
	AnnounceChannel string
	Log             *zap.Logger
	Out             io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: adapter is required")
	}
	if opts.Machine == nil {
		return nil, fmt.Errorf("bot: machine is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Daemon{
		adapter:  opts.Adapter,
		machine:  opts.Machine,
		announce: opts.AnnounceChannel,
		log:      log,
		out:      out,
	}, nil
}

// Run connects the adapter and blocks until the context is cancelled or
// the adapter closes its inbound channel. Inbound messages are handled one
// at a time. On shutdown it closes the adapter.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Bot connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bot: connect: %w", err)
	}

	// Extract bot user ID if the adapter supports it.
	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		Machine:   d.machine,
		Adapter:   d.adapter,
		BotUserID: botUserID,
		Log:       d.log,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bot: listen: %w", err)
	}

	fmt.Fprintf(d.out, "Bot online\n")
	d.sendAnnouncement(ctx, "Rollcall online")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Bot shutting down...\n")
			d.sendAnnouncement(context.Background(), "Rollcall shutting down")
			if err := d.adapter.Close(); err != nil {
				d.log.Warn("close adapter", zap.Error(err))
			}
			fmt.Fprintf(d.out, "Bot stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Bot inbound channel closed\n")
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// sendAnnouncement posts text to the announce channel (best-effort).
func (d *Daemon) sendAnnouncement(ctx context.Context, text string) {
	if d.announce == "" {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{ChannelID: d.announce, Text: text}); err != nil {
		d.log.Warn("send announcement", zap.Error(err))
	}
}
