package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/tip-tender/backend/announce"
	"github.com/onnwee/tip-tender/backend/db"
	"github.com/onnwee/tip-tender/backend/ledger"
	"github.com/onnwee/tip-tender/backend/reftoken"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

// activateSubscription creates an active subscription for a direct purchase.
// A user already holding an active row is a no-op: retried webhooks must not
// stack subscriptions. The amount comes from the plan catalog, not from the
// captured payment.
func (e *Engine) activateSubscription(ctx context.Context, q db.DBTX, ev Event, ref reftoken.Ref, buf *announce.Buffer) error {
	log := telemetry.LoggerWithCorr(ctx)

	existing, err := ledger.ActiveSubscription(ctx, q, ref.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Info("user already subscribed, no-op",
			slog.Int64("user_id", ref.UserID), slog.String("capture_id", ev.CaptureID),
			slog.String("component", "reconcile"))
		return nil
	}

	user, err := ledger.GetUser(ctx, q, ref.UserID)
	if err != nil {
		return err
	}

	start := nowUTC()
	sub := ledger.Subscription{
		UserID:       ref.UserID,
		PlanType:     ref.PlanType,
		BillingCycle: ref.BillingCycle,
		AmountCents:  PlanPriceCents(ref.BillingCycle),
		StartDate:    start,
		EndDate:      start.Add(ref.BillingCycle.InitialTerm()),
	}
	if err := ledger.InsertSubscription(ctx, q, sub); err != nil {
		return err
	}

	buf.Add(fmt.Sprintf("🎉 %s just subscribed (%s %s)! Welcome to the crew!", user.Username, ref.PlanType, ref.BillingCycle))
	log.Info("subscription activated",
		slog.Int64("user_id", ref.UserID), slog.String("plan", ref.PlanType),
		slog.String("cycle", string(ref.BillingCycle)), slog.String("capture_id", ev.CaptureID),
		slog.String("component", "reconcile"))
	return nil
}
