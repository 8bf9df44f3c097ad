package amqp

import (
	"context"
	"log/slog"
)

// Notifier adapts the client to the transaction writer's notification
// hook. Publish failures are logged and swallowed: writes must not
// fail because the broker is down, and the pending-sync sweep covers
// the gap.
type Notifier struct {
	client *Client
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) TransactionChanged(ctx context.Context, id int64) {
	if err := n.client.PublishTransactionSync(ctx, id); err != nil {
		slog.WarnContext(ctx, "Sync notification dropped", "transaction_id", id, "error", err)
	}
}

func (n *Notifier) TransactionDeleted(ctx context.Context, id int64) {
	if err := n.client.PublishTransactionDelete(ctx, id); err != nil {
		slog.WarnContext(ctx, "Delete notification dropped", "transaction_id", id, "error", err)
	}
}
