package bot

import (
	"context"
	"fmt"
)

// AdapterNotifier delivers notifications as direct messages through a chat
// adapter. It satisfies attendance.Notifier.
type AdapterNotifier struct {
	adapter Adapter
}

// NewAdapterNotifier creates an AdapterNotifier.
func NewAdapterNotifier(adapter Adapter) *AdapterNotifier {
	return &AdapterNotifier{adapter: adapter}
}

// Push sends text to the user identified by token.
func (n *AdapterNotifier) Push(ctx context.Context, token, text string) error {
	if token == "" {
		return fmt.Errorf("bot: push: empty token")
	}
	if err := n.adapter.Send(ctx, OutboundMessage{UserID: token, Text: text}); err != nil {
		return fmt.Errorf("bot: push to %s: %w", token, err)
	}
	return nil
}
