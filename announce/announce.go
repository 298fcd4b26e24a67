// Package announce emits system chat rows as a side effect of successful
// reconciliation. Messages produced during a workflow are buffered, written
// to the chat table inside the workflow's transaction in program order, and
// optionally mirrored to the streamer's Twitch channel after commit.
package announce

import (
	"context"

	"github.com/onnwee/tip-tender/backend/db"
	"github.com/onnwee/tip-tender/backend/ledger"
)

// Sayer mirrors a committed announcement somewhere else (Twitch chat).
// Implementations must be non-blocking best-effort; a mirror failure never
// fails reconciliation.
type Sayer interface {
	Say(message string)
}

// Buffer collects announcements produced by one workflow invocation.
// The zero value is ready to use.
type Buffer struct {
	msgs []string
}

// Add queues a message. Ordering follows program order.
func (b *Buffer) Add(message string) {
	b.msgs = append(b.msgs, message)
}

// Flush writes the queued messages to the chat table. Call inside the
// workflow transaction, before commit.
func (b *Buffer) Flush(ctx context.Context, q db.DBTX) error {
	for _, m := range b.msgs {
		if err := ledger.InsertSystemMessage(ctx, q, m); err != nil {
			return err
		}
	}
	return nil
}

// Messages returns the queued messages for post-commit mirroring.
func (b *Buffer) Messages() []string { return b.msgs }
