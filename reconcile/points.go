package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/onnwee/tip-tender/backend/db"
	"github.com/onnwee/tip-tender/backend/ledger"
	"github.com/onnwee/tip-tender/backend/reftoken"
	"github.com/onnwee/tip-tender/backend/telemetry"
)

// creditPoints applies a points purchase: one balance/lifetime increment plus
// one append-only transaction row. The capture id lands in the description
// for audit. No chat announcement is emitted for points purchases.
func (e *Engine) creditPoints(ctx context.Context, q db.DBTX, ev Event, ref reftoken.Ref) error {
	pkg, err := LookupPackage(ref.PackageID)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownPackage, ref.PackageID)
	}

	desc := fmt.Sprintf("Purchased %s: %d points", ref.PackageID, pkg.Base)
	if pkg.Bonus > 0 {
		desc = fmt.Sprintf("Purchased %s: %d points (+%d bonus)", ref.PackageID, pkg.Base, pkg.Bonus)
	}
	desc += fmt.Sprintf(" [%s capture %s]", ev.Provider, ev.CaptureID)

	if err := ledger.CreditPoints(ctx, q, ref.UserID, pkg.Total(), desc); err != nil {
		return err
	}

	telemetry.LoggerWithCorr(ctx).Info("points credited",
		slog.Int64("user_id", ref.UserID), slog.String("package", ref.PackageID),
		slog.Int64("points", pkg.Total()), slog.String("capture_id", ev.CaptureID),
		slog.String("component", "reconcile"))
	return nil
}
