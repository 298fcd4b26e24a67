package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/tip-tender/backend/announce"
	"github.com/onnwee/tip-tender/backend/db"
	"github.com/onnwee/tip-tender/backend/ledger"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

// runGiftOrder distributes a purchased quantity of subscriptions across the
// order's named recipients and then a community fallback pool. The order's
// processed flag is the terminal step of the same transaction; if anything
// fails partway the order stays unprocessed and a retry re-runs the whole
// allocator, which is safe because every grant is individually idempotent
// (extend-or-create against the one-active-row invariant).
func (e *Engine) runGiftOrder(ctx context.Context, q db.DBTX, orderID string, buf *announce.Buffer) error {
	log := telemetry.LoggerWithCorr(ctx)

	order, err := ledger.GetGiftOrder(ctx, q, orderID)
	if err != nil {
		return err
	}
	if order.Processed {
		log.Info("gift order already processed, no-op",
			slog.String("order_id", orderID), slog.String("component", "reconcile"))
		return nil
	}
	if order.Quantity <= 0 {
		return fmt.Errorf("gift order %q has non-positive quantity %d", orderID, order.Quantity)
	}

	gifter, err := ledger.GetUser(ctx, q, order.UserID)
	if err != nil {
		return err
	}
	perUnitCents := order.AmountCents / int64(order.Quantity)

	// Named-recipient pass: explicit recipients first, up to the purchased
	// quantity. Unknown usernames are skipped; their units fall through to
	// the community pass.
	granted := make([]int64, 0, order.Quantity)
	for _, name := range order.Recipients {
		if len(granted) >= order.Quantity {
			break
		}
		recipient, err := ledger.GetUserByUsername(ctx, q, name)
		if errors.Is(err, ledger.ErrNotFound) {
			log.Warn("gift recipient not found, skipping",
				slog.String("order_id", orderID), slog.String("recipient", name),
				slog.String("component", "reconcile"))
			continue
		}
		if err != nil {
			return err
		}

		existing, err := ledger.ActiveSubscription(ctx, q, recipient.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			newEnd := existing.EndDate.AddDate(0, order.BillingCycle.Months(), 0)
			if err := ledger.ExtendSubscription(ctx, q, existing.ID, newEnd); err != nil {
				return err
			}
			buf.Add(fmt.Sprintf("🎁 %s extended %s's subscription!", gifter.Username, recipient.Username))
		} else {
			if err := e.grantNewSubscription(ctx, q, recipient.ID, order, perUnitCents); err != nil {
				return err
			}
			msg := fmt.Sprintf("🎁 %s gifted a subscription to %s!", gifter.Username, recipient.Username)
			if order.GiftMessage != "" {
				msg += fmt.Sprintf(" \"%s\"", order.GiftMessage)
			}
			buf.Add(msg)
		}
		granted = append(granted, recipient.ID)
		telemetry.GiftGrants.WithLabelValues("named").Inc()
	}

	// Community fallback pass: spread the remainder across eligible users,
	// non-subscribers first, then soonest-expiring. One aggregate chat row
	// instead of one per recipient.
	remaining := order.Quantity - len(granted)
	if remaining > 0 {
		candidates, err := ledger.CommunityCandidates(ctx, q, order.UserID, granted, remaining)
		if err != nil {
			return err
		}
		communityGranted := 0
		for _, c := range candidates {
			if c.SubID.Valid {
				newEnd := c.EndDate.Time.AddDate(0, order.BillingCycle.Months(), 0)
				if err := ledger.ExtendSubscription(ctx, q, c.SubID.Int64, newEnd); err != nil {
					return err
				}
			} else {
				if err := e.grantNewSubscription(ctx, q, c.UserID, order, perUnitCents); err != nil {
					return err
				}
			}
			communityGranted++
			telemetry.GiftGrants.WithLabelValues("community").Inc()
		}
		if communityGranted > 0 {
			buf.Add(fmt.Sprintf("🎁 %s gifted %d subscriptions to the community!", gifter.Username, communityGranted))
		}
	}

	done, err := ledger.MarkGiftOrderProcessed(ctx, q, orderID)
	if err != nil {
		return err
	}
	if !done {
		// Lost a race with a concurrent delivery of the same order; its
		// transaction owns the grants.
		return fmt.Errorf("gift order %q concurrently processed", orderID)
	}

	log.Info("gift order distributed",
		slog.String("order_id", orderID), slog.Int("quantity", order.Quantity),
		slog.Int("named", len(granted)), slog.String("gifter", gifter.Username),
		slog.String("component", "reconcile"))
	return nil
}

func (e *Engine) grantNewSubscription(ctx context.Context, q db.DBTX, userID int64, order ledger.GiftOrder, amountCents int64) error {
	start := nowUTC()
	return ledger.InsertSubscription(ctx, q, ledger.Subscription{
		UserID:       userID,
		PlanType:     order.PlanType,
		BillingCycle: order.BillingCycle,
		AmountCents:  amountCents,
		StartDate:    start,
		EndDate:      start.Add(order.BillingCycle.InitialTerm()),
	})
}
