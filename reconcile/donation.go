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

// completeDonation transitions a pending donation to completed. The
// transition is one-directional: re-delivery on an already-completed row is
// a no-op and emits no second announcement. Name substitution and amount
// formatting happen here, at completion time, not at creation time.
func (e *Engine) completeDonation(ctx context.Context, q db.DBTX, ev Event, ref reftoken.Ref, buf *announce.Buffer) error {
	d, applied, err := ledger.CompleteDonation(ctx, q, ref.DonationID, ev.Provider, ev.CaptureID)
	if err != nil {
		return err
	}
	log := telemetry.LoggerWithCorr(ctx)
	if !applied {
		log.Info("donation already completed, no-op",
			slog.Int64("donation_id", ref.DonationID), slog.String("capture_id", ev.CaptureID),
			slog.String("component", "reconcile"))
		return nil
	}

	buf.Add(DonationAnnouncement(d))
	log.Info("donation completed",
		slog.Int64("donation_id", d.ID), slog.String("amount", formatCents(d.AmountCents)),
		slog.String("capture_id", ev.CaptureID), slog.String("component", "reconcile"))
	return nil
}

// DonationAnnouncement renders the system chat row for a completed donation:
// `💰 {donor or Anonymous} donated $X.XX[: "message"]`.
func DonationAnnouncement(d ledger.Donation) string {
	name := d.DonorName
	if d.IsAnonymous || name == "" {
		name = "Anonymous"
	}
	msg := fmt.Sprintf("💰 %s donated $%s", name, formatCents(d.AmountCents))
	if d.Message != "" {
		msg += fmt.Sprintf(": \"%s\"", d.Message)
	}
	return msg
}
