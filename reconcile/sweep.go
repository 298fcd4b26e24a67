package reconcile

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/tip-tender/backend/announce"
	"github.com/onnwee/tip-tender/backend/ledger"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

const sweepBatchSize = 20

// StartGiftSweep launches a goroutine that periodically re-runs gift orders
// still unprocessed after minAge. A checkout whose webhook never completed
// (crash mid-distribution, provider gave up retrying) is eventually picked up
// here; re-running the allocator is safe because each grant step is
// idempotent within its transaction.
func StartGiftSweep(ctx context.Context, e *Engine, interval, minAge time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if minAge <= 0 {
		minAge = 10 * time.Minute
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			sweepOnce(ctx, e, minAge)
			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}

func sweepOnce(ctx context.Context, e *Engine, minAge time.Duration) {
	ids, err := ledger.UnprocessedGiftOrders(ctx, e.DB, minAge, sweepBatchSize)
	if err != nil {
		slog.Warn("gift sweep query failed", slog.Any("err", err), slog.String("component", "gift_sweep"))
		return
	}
	telemetry.SetUnprocessedGifts(len(ids))
	for _, id := range ids {
		orderID := id
		err := e.inTx(ctx, func(tx *sql.Tx, buf *announce.Buffer) error {
			return e.runGiftOrder(ctx, tx, orderID, buf)
		})
		if err != nil {
			slog.Warn("gift sweep order failed, will retry next cycle",
				slog.String("order_id", orderID), slog.Any("err", err),
				slog.String("component", "gift_sweep"))
			continue
		}
		slog.Info("gift sweep distributed stale order",
			slog.String("order_id", orderID), slog.String("component", "gift_sweep"))
	}
}
